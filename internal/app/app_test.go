package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-health/internal/config"
	"smart-health/internal/database"
	"smart-health/internal/llm"
	"smart-health/internal/metrics"
	"smart-health/internal/planner"
	"smart-health/internal/shared"
)

type mockTextGen struct {
	quotaModels map[string]bool
}

func (m *mockTextGen) GenerateContent(ctx context.Context, req llm.Request) (llm.ContentResponse, error) {
	if m.quotaModels[req.Model] {
		return llm.ContentResponse{}, &llm.Error{Kind: llm.KindQuotaExceeded, Model: req.Model, StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}
	}
	return llm.ContentResponse{
		Content: "content from " + req.Model,
		Usage:   shared.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Model: req.Model},
	}, nil
}

func newTestApp(t *testing.T, gen llm.TextGenerator, candidates []string) (*App, *metrics.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "app.db")
	db, err := database.NewDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{ModelCandidates: candidates, DatabasePath: dbPath}
	store := metrics.NewStore(db.SQL)
	p := planner.NewPlanner(gen, planner.Options{Retry: planner.LinearBackoff(2, time.Millisecond)})
	return NewApp(cfg, p, store), store
}

func TestGeneratePlanRecordsUsage(t *testing.T) {
	ctx := context.Background()
	a, store := newTestApp(t, &mockTextGen{quotaModels: map[string]bool{"model-a": true}}, []string{"model-a", "model-b"})

	result, err := a.GeneratePlan(ctx, planner.DefaultProfile(), nil)
	require.NoError(t, err)
	require.True(t, result.OverallSuccess)
	assert.Equal(t, "model-b", result.Model)

	_, models, err := a.Usage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, metrics.ModelUsage{Model: "model-b", Calls: 3, TotalTokens: 45, AvgLatencyMS: models[0].AvgLatencyMS}, models[0])

	deleted, err := store.Cleanup(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestGeneratePlanRejectsInvalidProfile(t *testing.T) {
	a, _ := newTestApp(t, &mockTextGen{}, []string{"model-a"})

	profile := planner.DefaultProfile()
	profile.Age = 12

	result, err := a.GeneratePlan(context.Background(), profile, nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, planner.ErrInvalidProfile)
}

func TestPrintPlan(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var buf bytes.Buffer
		PrintPlan(&buf, &planner.PlanResult{
			MealPlan:    &planner.StageResult{Text: "Oats", Succeeded: true},
			FitnessPlan: &planner.StageResult{Text: "Squats", Succeeded: true},
			Strategy:    &planner.StageResult{Text: "Sleep", Succeeded: true},
			Model:       "model-b",
			Outcome:     planner.OutcomeSuccess,
		})
		out := buf.String()
		assert.Contains(t, out, "=== MEAL PLAN ===\nOats")
		assert.Contains(t, out, "=== HOLISTIC STRATEGY ===\nSleep")
		assert.Contains(t, out, "Plan generated successfully with model-b.")
	})

	t.Run("ExhaustedShowsPlaceholders", func(t *testing.T) {
		var buf bytes.Buffer
		PrintPlan(&buf, &planner.PlanResult{Outcome: planner.OutcomeExhausted})
		out := buf.String()
		assert.Contains(t, out, "Could not generate meal plan.")
		assert.Contains(t, out, "Could not generate workout plan.")
		assert.Contains(t, out, "Could not generate strategy.")
		assert.Contains(t, out, "due to API limits")
	})
}
