package planner

import (
	"context"
	"strings"
	"testing"

	"smart-health/internal/config"
	"smart-health/internal/llm"
)

// TestGeneratePlan_LiveEval runs the full pipeline against the configured backends.
// Run with: go test -v ./internal/planner -run TestGeneratePlan_LiveEval
func TestGeneratePlan_LiveEval(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping live eval in short mode")
	}

	ctx := context.Background()
	cfg, err := config.NewFromEnv()
	if err != nil {
		t.Skip("Skipping: No API keys found in environment")
	}
	if cfg.GroqAPIKey == "" {
		t.Skip("Skipping: GROQ_API_KEY not set")
	}

	p := NewPlanner(llm.NewRouter(llm.NewGroqClient(cfg), nil), Options{
		Retry:         LinearBackoff(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		StageInterval: cfg.StageInterval,
	})

	result := p.GeneratePlan(ctx, alex(), cfg.ModelCandidates, func(e StatusEntry) {
		t.Logf("[%s] %s", e.Level, e.Message)
	})

	if result.Outcome == OutcomeExhausted {
		t.Skip("Skipping: every candidate is rate limited right now")
	}
	if !result.OverallSuccess {
		t.Fatalf("Expected a plan, got outcome %s: %v", result.Outcome, result.Err)
	}

	// Quality assertions
	meal := strings.ToLower(result.MealPlan.Text)
	for _, want := range []string{"breakfast", "lunch", "dinner"} {
		if !strings.Contains(meal, want) {
			t.Errorf("Expected the meal plan to mention %q", want)
		}
	}
	if !strings.Contains(strings.ToLower(result.FitnessPlan.Text), "warm") {
		t.Error("Expected the workout to include a warm-up")
	}
	if !strings.Contains(result.Strategy.Text, "Alex") {
		t.Log("Strategy does not address the user by name")
	}
}
