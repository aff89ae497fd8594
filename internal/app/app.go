package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"smart-health/internal/config"
	"smart-health/internal/database"
	"smart-health/internal/llm"
	"smart-health/internal/metrics"
	"smart-health/internal/planner"
	"smart-health/internal/websearch"
)

// App holds the application's dependencies and is shared by every front end.
type App struct {
	cfg          *config.Config
	planner      *planner.Planner
	metricsStore *metrics.Store
	closers      []llm.Closer
}

// NewApp creates and initializes a new App instance. metricsStore may be nil.
func NewApp(cfg *config.Config, p *planner.Planner, metricsStore *metrics.Store) *App {
	return &App{
		cfg:          cfg,
		planner:      p,
		metricsStore: metricsStore,
	}
}

// Build wires the backends, the search tool, the planner and the metrics
// database from cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	var groq, gemini llm.TextGenerator
	var closers []llm.Closer
	if cfg.GroqAPIKey != "" {
		groq = llm.NewGroqClient(cfg)
	}
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		gemini = client
		closers = append(closers, client)
	}

	opts := planner.Options{
		Retry:         planner.LinearBackoff(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		StageInterval: cfg.StageInterval,
	}
	if cfg.WebSearchEnabled {
		opts.SearchTool = websearch.NewClient()
	}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	closers = append(closers, db)

	a := NewApp(cfg, planner.NewPlanner(llm.NewRouter(groq, gemini), opts), metrics.NewStore(db.SQL))
	a.closers = closers
	return a, nil
}

// Close releases the backends and the database.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// GeneratePlan validates the profile, runs the planner over the configured
// candidates and records usage for every completed stage call.
// The returned error is only about the input; backend failures live in the result.
func (a *App) GeneratePlan(ctx context.Context, profile planner.Profile, report planner.StatusFunc) (*planner.PlanResult, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	result := a.planner.GeneratePlan(ctx, profile, a.cfg.ModelCandidates, report)

	logger := log.Ctx(ctx)
	if a.metricsStore != nil {
		// The request may be gone by now; usage is still worth keeping.
		recordCtx := context.WithoutCancel(ctx)
		for _, meta := range result.Metas {
			if err := a.metricsStore.RecordMeta(recordCtx, result.ID.String(), meta); err != nil {
				logger.Warn().Err(err).Str("agent", meta.AgentName).Msg("failed to record metrics")
			}
		}
	}

	logger.Info().
		Str("plan_id", result.ID.String()).
		Str("outcome", string(result.Outcome)).
		Str("model", result.Model).
		Int("stage_calls", len(result.Metas)).
		Msg("plan finished")
	return result, nil
}

// Usage reports daily and per-model usage for the last N days.
func (a *App) Usage(ctx context.Context, days int) ([]metrics.DailyUsage, []metrics.ModelUsage, error) {
	if a.metricsStore == nil {
		return nil, nil, nil
	}
	daily, err := a.metricsStore.GetDailyUsage(ctx, days)
	if err != nil {
		return nil, nil, err
	}
	models, err := a.metricsStore.GetModelUsage(ctx, days)
	if err != nil {
		return nil, nil, err
	}
	return daily, models, nil
}

// CleanupMetrics removes usage rows older than the given number of days.
func (a *App) CleanupMetrics(ctx context.Context, olderThanDays int) (int64, error) {
	if a.metricsStore == nil {
		return 0, nil
	}
	return a.metricsStore.Cleanup(ctx, olderThanDays)
}

// Health returns a runtime snapshot including the size of the data directory.
func (a *App) Health() metrics.SysHealth {
	return metrics.GetSysHealth(filepath.Dir(a.cfg.DatabasePath))
}

// PrintPlan writes the three sections of a plan, with placeholders for
// missing stages, followed by a one-line outcome.
func PrintPlan(w io.Writer, result *planner.PlanResult) {
	for _, tab := range result.Tabs() {
		fmt.Fprintf(w, "\n=== %s ===\n", strings.ToUpper(tab.Title))
		fmt.Fprintln(w, tab.Body)
	}
	fmt.Fprintln(w)
	switch result.Outcome {
	case planner.OutcomeSuccess:
		fmt.Fprintf(w, "Plan generated successfully with %s.\n", result.Model)
	case planner.OutcomeAborted:
		fmt.Fprintf(w, "Failed to generate plan: %v\n", result.Err)
	case planner.OutcomeNoCandidates:
		fmt.Fprintln(w, "No models configured.")
	default:
		fmt.Fprintln(w, "Could not generate plan with any available model due to API limits. Please try again later.")
	}
}
