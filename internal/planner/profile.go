package planner

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidProfile wraps every validation failure reported by Profile.Validate.
var ErrInvalidProfile = errors.New("invalid profile")

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

type ActivityLevel string

const (
	ActivitySedentary        ActivityLevel = "Sedentary"
	ActivityLightlyActive    ActivityLevel = "Lightly Active"
	ActivityModeratelyActive ActivityLevel = "Moderately Active"
	ActivityVeryActive       ActivityLevel = "Very Active"
	ActivityExtraActive      ActivityLevel = "Extra Active"
)

type FitnessGoal string

const (
	GoalWeightLoss    FitnessGoal = "Weight Loss"
	GoalMuscleGain    FitnessGoal = "Muscle Gain"
	GoalEndurance     FitnessGoal = "Endurance"
	GoalFlexibility   FitnessGoal = "Flexibility"
	GoalGeneralHealth FitnessGoal = "General Health"
)

type DietaryPreference string

const (
	DietNoPreference  DietaryPreference = "No Preference"
	DietKeto          DietaryPreference = "Keto"
	DietVegan         DietaryPreference = "Vegan"
	DietVegetarian    DietaryPreference = "Vegetarian"
	DietPaleo         DietaryPreference = "Paleo"
	DietMediterranean DietaryPreference = "Mediterranean"
)

var (
	Genders            = []Gender{GenderMale, GenderFemale, GenderOther}
	ActivityLevels     = []ActivityLevel{ActivitySedentary, ActivityLightlyActive, ActivityModeratelyActive, ActivityVeryActive, ActivityExtraActive}
	FitnessGoals       = []FitnessGoal{GoalWeightLoss, GoalMuscleGain, GoalEndurance, GoalFlexibility, GoalGeneralHealth}
	DietaryPreferences = []DietaryPreference{DietNoPreference, DietKeto, DietVegan, DietVegetarian, DietPaleo, DietMediterranean}
)

// Collector ranges.
const (
	MinAge      = 18
	MaxAge      = 100
	MinWeightKG = 30
	MaxWeightKG = 200
	MinHeightCM = 100
	MaxHeightCM = 250
)

// Profile is the user's body metrics and goals. It is read-only once built.
type Profile struct {
	Name              string            `json:"name"`
	Age               int               `json:"age"`
	Gender            Gender            `json:"gender"`
	WeightKG          float64           `json:"weight_kg"`
	HeightCM          float64           `json:"height_cm"`
	ActivityLevel     ActivityLevel     `json:"activity_level"`
	FitnessGoal       FitnessGoal       `json:"fitness_goal"`
	DietaryPreference DietaryPreference `json:"dietary_preference"`
}

// DefaultProfile mirrors the defaults of the input form.
func DefaultProfile() Profile {
	return Profile{
		Name:              "Alex",
		Age:               25,
		Gender:            GenderMale,
		WeightKG:          70,
		HeightCM:          175,
		ActivityLevel:     ActivitySedentary,
		FitnessGoal:       GoalWeightLoss,
		DietaryPreference: DietNoPreference,
	}
}

// Validate checks the profile against the collector ranges.
func (p Profile) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	case p.Age < MinAge || p.Age > MaxAge:
		return fmt.Errorf("%w: age must be between %d and %d", ErrInvalidProfile, MinAge, MaxAge)
	case !inRange(p.WeightKG, MinWeightKG, MaxWeightKG):
		return fmt.Errorf("%w: weight must be between %d and %d kg", ErrInvalidProfile, MinWeightKG, MaxWeightKG)
	case !inRange(p.HeightCM, MinHeightCM, MaxHeightCM):
		return fmt.Errorf("%w: height must be between %d and %d cm", ErrInvalidProfile, MinHeightCM, MaxHeightCM)
	}
	if _, err := ParseGender(string(p.Gender)); err != nil {
		return err
	}
	if _, err := ParseActivityLevel(string(p.ActivityLevel)); err != nil {
		return err
	}
	if _, err := ParseFitnessGoal(string(p.FitnessGoal)); err != nil {
		return err
	}
	if _, err := ParseDietaryPreference(string(p.DietaryPreference)); err != nil {
		return err
	}
	return nil
}

// inRange is false for NaN, which fails every comparison.
func inRange(v float64, lo, hi int) bool {
	return v >= float64(lo) && v <= float64(hi)
}

// BMI returns the body-mass index rounded to two decimals.
func (p Profile) BMI() float64 {
	if p.HeightCM <= 0 {
		return 0
	}
	m := p.HeightCM / 100
	return math.Round(p.WeightKG/(m*m)*100) / 100
}

// BMICategory classifies a body-mass index.
func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal weight"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}

func ParseGender(s string) (Gender, error) {
	return parseEnum(s, "gender", Genders)
}

func ParseActivityLevel(s string) (ActivityLevel, error) {
	return parseEnum(s, "activity level", ActivityLevels)
}

func ParseFitnessGoal(s string) (FitnessGoal, error) {
	return parseEnum(s, "fitness goal", FitnessGoals)
}

func ParseDietaryPreference(s string) (DietaryPreference, error) {
	return parseEnum(s, "dietary preference", DietaryPreferences)
}

// parseEnum matches case-insensitively and treats '_' and '-' as spaces,
// so "moderately_active" and "Moderately Active" are the same value.
func parseEnum[T ~string](s, field string, allowed []T) (T, error) {
	norm := normalize(s)
	for _, v := range allowed {
		if normalize(string(v)) == norm {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown %s %q", ErrInvalidProfile, field, s)
}

func normalize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
