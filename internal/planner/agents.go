package planner

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"smart-health/internal/llm"
)

//go:embed meal_prompt.md
var mealPrompt string

//go:embed fitness_prompt.md
var fitnessPrompt string

//go:embed strategy_prompt.md
var strategyPrompt string

var (
	mealTmpl     = template.Must(template.New("meal").Parse(mealPrompt))
	fitnessTmpl  = template.Must(template.New("fitness").Parse(fitnessPrompt))
	strategyTmpl = template.Must(template.New("strategy").Parse(strategyPrompt))
)

// Stage is one step of the nutrition → fitness → synthesis pipeline.
type Stage string

const (
	StageNutrition Stage = "nutrition"
	StageFitness   Stage = "fitness"
	StageSynthesis Stage = "synthesis"
)

// Agent is a role applied to a single backend call: a system prompt plus the
// tools the model may use. It carries no state between calls.
type Agent struct {
	Name         string
	Description  string
	Instructions []string
	Tools        []llm.Tool
	// Progress is the status line shown when the agent starts working.
	Progress string
}

// SystemPrompt renders the agent's description and instructions.
func (a Agent) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(a.Description)
	sb.WriteString("\n\n## Instructions\n")
	for _, in := range a.Instructions {
		sb.WriteString("- ")
		sb.WriteString(in)
		sb.WriteString("\n")
	}
	sb.WriteString("- Use markdown to format your answers.\n")
	return sb.String()
}

// Nutritionist builds the meal-plan agent.
func Nutritionist(tools ...llm.Tool) Agent {
	return Agent{
		Name:        "Nutritionist",
		Description: "Expert Nutritionist creating personalized meal plans.",
		Instructions: []string{
			"Generate a detailed daily meal plan (Breakfast, Lunch, Dinner, Snacks).",
			"Focus on the user's dietary preferences and caloric needs.",
			"Include macronutrient estimates for each meal.",
			"Suggest hydration strategies.",
			"Format the output with clear Markdown headings and bullet points.",
		},
		Tools:    tools,
		Progress: "Nutritionist is analyzing your needs...",
	}
}

// Trainer builds the workout agent.
func Trainer(tools ...llm.Tool) Agent {
	return Agent{
		Name:        "Trainer",
		Description: "Elite Fitness Coach designing workout routines.",
		Instructions: []string{
			"Create a comprehensive workout session or weekly plan.",
			"Include Warm-up, Main Workout (Sets/Reps), and Cool-down.",
			"Tailor intensity to the user's fitness level.",
			"Provide form tips and safety warnings.",
			"Format the output with clear Markdown headings and tables where appropriate.",
		},
		Tools:    tools,
		Progress: "Trainer is designing your workout...",
	}
}

// Strategist builds the synthesis agent. It never uses tools.
func Strategist() Agent {
	return Agent{
		Name:        "Strategist",
		Description: "Holistic Health Strategist.",
		Instructions: []string{
			"Synthesize the meal and workout plans into a cohesive lifestyle strategy.",
			"Explain how the diet supports the training and vice versa.",
			"Provide 3 actionable daily habits for success.",
			"Write in a motivating, encouraging tone.",
		},
		Progress: "Strategist is finalizing the strategy...",
	}
}

type promptData struct {
	Profile
	BMI         float64
	BMICategory string
	MealPlan    string
	FitnessPlan string
}

func newPromptData(p Profile) promptData {
	bmi := p.BMI()
	return promptData{Profile: p, BMI: bmi, BMICategory: BMICategory(bmi)}
}

func buildMealPrompt(p Profile) (string, error) {
	return render(mealTmpl, newPromptData(p))
}

func buildFitnessPrompt(p Profile) (string, error) {
	return render(fitnessTmpl, newPromptData(p))
}

func buildStrategyPrompt(p Profile, mealPlan, fitnessPlan string) (string, error) {
	data := newPromptData(p)
	data.MealPlan = mealPlan
	data.FitnessPlan = fitnessPlan
	return render(strategyTmpl, data)
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
