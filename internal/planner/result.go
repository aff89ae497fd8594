package planner

import (
	"github.com/google/uuid"

	"smart-health/internal/shared"
)

// StageResult is the text produced by one stage on one candidate.
type StageResult struct {
	Stage     Stage            `json:"stage"`
	Model     string           `json:"model"`
	Text      string           `json:"text"`
	Succeeded bool             `json:"succeeded"`
	Meta      shared.AgentMeta `json:"-"`
}

type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeAborted      Outcome = "aborted"
	OutcomeExhausted    Outcome = "exhausted"
	OutcomeNoCandidates Outcome = "no_candidates"
)

// PlanResult is the outcome of one GeneratePlan call. All present stage
// results come from the same candidate.
type PlanResult struct {
	ID             uuid.UUID     `json:"id"`
	MealPlan       *StageResult  `json:"meal_plan,omitempty"`
	FitnessPlan    *StageResult  `json:"fitness_plan,omitempty"`
	Strategy       *StageResult  `json:"strategy,omitempty"`
	Model          string        `json:"model,omitempty"`
	OverallSuccess bool          `json:"overall_success"`
	Outcome        Outcome       `json:"outcome"`
	StatusLog      []StatusEntry `json:"status_log"`
	// Err is the fatal cause when Outcome is OutcomeAborted.
	Err error `json:"-"`
	// Metas holds one entry per successful stage call, abandoned candidates included.
	Metas []shared.AgentMeta `json:"-"`
}

// Messages returns the status log as plain strings.
func (r *PlanResult) Messages() []string {
	out := make([]string, len(r.StatusLog))
	for i, e := range r.StatusLog {
		out[i] = e.Message
	}
	return out
}

// Tab is one rendered section of a plan.
type Tab struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Placeholder bool   `json:"placeholder"`
}

// Tabs maps the three stage results to displayable sections, substituting a
// placeholder for any stage that is missing.
func (r *PlanResult) Tabs() []Tab {
	return []Tab{
		tab("Meal Plan", r.MealPlan, "Could not generate meal plan."),
		tab("Workout", r.FitnessPlan, "Could not generate workout plan."),
		tab("Holistic Strategy", r.Strategy, "Could not generate strategy."),
	}
}

func tab(title string, sr *StageResult, placeholder string) Tab {
	if sr == nil || !sr.Succeeded || sr.Text == "" {
		return Tab{Title: title, Body: placeholder, Placeholder: true}
	}
	return Tab{Title: title, Body: sr.Text}
}
