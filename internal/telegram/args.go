package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"smart-health/internal/planner"
)

// parseProfile reads "key=value" pairs separated by ";" or new lines and
// applies them on top of the default profile.
func parseProfile(args string) (planner.Profile, error) {
	p := planner.DefaultProfile()

	fields := strings.FieldsFunc(args, func(r rune) bool { return r == ';' || r == '\n' })
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return p, fmt.Errorf("expected key=value, got %q", field)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "name":
			p.Name = value
		case "age":
			p.Age, err = strconv.Atoi(value)
		case "gender":
			p.Gender, err = planner.ParseGender(value)
		case "weight", "weight_kg":
			p.WeightKG, err = strconv.ParseFloat(value, 64)
		case "height", "height_cm":
			p.HeightCM, err = strconv.ParseFloat(value, 64)
		case "activity", "activity_level":
			p.ActivityLevel, err = planner.ParseActivityLevel(value)
		case "goal", "fitness_goal":
			p.FitnessGoal, err = planner.ParseFitnessGoal(value)
		case "diet", "dietary_preference":
			p.DietaryPreference, err = planner.ParseDietaryPreference(value)
		default:
			return p, fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return p, fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return p, p.Validate()
}
