package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"smart-health/internal/llm"
	"smart-health/internal/shared"
)

// Options configures a Planner. The zero value disables web search, retries
// once per stage and does not pace stage calls.
type Options struct {
	// SearchTool is offered to the nutrition and fitness stages. Nil disables it.
	SearchTool llm.Tool
	Retry      RetryPolicy
	// StageInterval is the minimum gap between two stage calls of one request.
	StageInterval time.Duration
}

// Planner runs the nutrition → fitness → synthesis pipeline with model fallback.
// It holds read-only configuration only and is safe for concurrent use.
type Planner struct {
	textGen       llm.TextGenerator
	nutritionist  Agent
	trainer       Agent
	strategist    Agent
	retry         RetryPolicy
	stageInterval time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewPlanner creates a new Planner instance.
func NewPlanner(textGen llm.TextGenerator, opts Options) *Planner {
	var tools []llm.Tool
	if opts.SearchTool != nil {
		tools = append(tools, opts.SearchTool)
	}
	return &Planner{
		textGen:       textGen,
		nutritionist:  Nutritionist(tools...),
		trainer:       Trainer(tools...),
		strategist:    Strategist(),
		retry:         opts.Retry,
		stageInterval: opts.StageInterval,
		sleep:         sleepCtx,
	}
}

// candidateRun holds the stages one candidate completed before it stopped.
type candidateRun struct {
	meal     *StageResult
	fitness  *StageResult
	strategy *StageResult
	// failed is the stage that returned the error, if any.
	failed Stage
}

// GeneratePlan tries each candidate in order until one completes all three
// stages. A quota error abandons the candidate after the local retries; any
// other error, including ctx cancellation, aborts the whole plan.
// report may be nil.
func (p *Planner) GeneratePlan(ctx context.Context, profile Profile, candidates []string, report StatusFunc) *PlanResult {
	result := &PlanResult{ID: uuid.New()}
	status := &statusLog{
		result: result,
		logger: log.Ctx(ctx).With().Str("plan_id", result.ID.String()).Logger(),
		report: report,
	}

	if len(candidates) == 0 {
		result.Outcome = OutcomeNoCandidates
		status.add(StatusEntry{Level: LevelError, Event: EventAbort, Message: "No models configured."})
		return result
	}

	// Per request, so concurrent plans never wait on each other.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.stageInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(p.stageInterval), 1)
	}

	var last candidateRun
	for _, model := range candidates {
		status.add(StatusEntry{
			Level:   LevelInfo,
			Event:   EventAttempt,
			Model:   model,
			Message: fmt.Sprintf("Attempting with model: %s...", model),
		})

		run, err := p.runCandidate(ctx, status, limiter, profile, model)
		if err == nil {
			result.setStages(run)
			result.Model = model
			result.OverallSuccess = true
			result.Outcome = OutcomeSuccess
			status.add(StatusEntry{
				Level:   LevelInfo,
				Event:   EventSuccess,
				Model:   model,
				Message: "Plan generated successfully!",
			})
			return result
		}

		if llm.IsQuotaExceeded(err) && ctx.Err() == nil {
			last = run
			status.add(StatusEntry{
				Level:   LevelWarn,
				Event:   EventAbandon,
				Model:   model,
				Stage:   run.failed,
				Message: fmt.Sprintf("Quota exceeded for %s. Switching model...", model),
			})
			continue
		}

		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		result.setStages(run)
		result.Model = model
		result.Outcome = OutcomeAborted
		result.Err = err
		status.add(StatusEntry{
			Level:   LevelError,
			Event:   EventAbort,
			Model:   model,
			Stage:   run.failed,
			Message: fmt.Sprintf("Error generating %s: %v", stageLabel(run.failed), err),
		})
		return result
	}

	result.setStages(last)
	result.Outcome = OutcomeExhausted
	status.add(StatusEntry{
		Level:   LevelError,
		Event:   EventExhausted,
		Message: "Could not generate plan with any available model due to API limits. Please try again later.",
	})
	return result
}

func (r *PlanResult) setStages(run candidateRun) {
	r.MealPlan = run.meal
	r.FitnessPlan = run.fitness
	r.Strategy = run.strategy
}

func (p *Planner) runCandidate(
	ctx context.Context,
	status *statusLog,
	limiter *rate.Limiter,
	profile Profile,
	model string,
) (candidateRun, error) {
	var run candidateRun

	run.failed = StageNutrition
	prompt, err := buildMealPrompt(profile)
	if err != nil {
		return run, fmt.Errorf("failed to build meal prompt: %w", err)
	}
	if run.meal, err = p.runStage(ctx, status, limiter, p.nutritionist, StageNutrition, model, prompt); err != nil {
		return run, err
	}

	run.failed = StageFitness
	if prompt, err = buildFitnessPrompt(profile); err != nil {
		return run, fmt.Errorf("failed to build fitness prompt: %w", err)
	}
	if run.fitness, err = p.runStage(ctx, status, limiter, p.trainer, StageFitness, model, prompt); err != nil {
		return run, err
	}

	run.failed = StageSynthesis
	if prompt, err = buildStrategyPrompt(profile, run.meal.Text, run.fitness.Text); err != nil {
		return run, fmt.Errorf("failed to build strategy prompt: %w", err)
	}
	if run.strategy, err = p.runStage(ctx, status, limiter, p.strategist, StageSynthesis, model, prompt); err != nil {
		return run, err
	}

	run.failed = ""
	return run, nil
}

// runStage invokes one agent on one candidate, retrying locally on quota errors.
func (p *Planner) runStage(
	ctx context.Context,
	status *statusLog,
	limiter *rate.Limiter,
	agent Agent,
	stage Stage,
	model string,
	prompt string,
) (*StageResult, error) {
	if err := limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline would pass before the next token.
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	status.add(StatusEntry{Level: LevelInfo, Event: EventStage, Model: model, Stage: stage, Message: agent.Progress})

	maxAttempts := p.retry.attempts()
	req := llm.Request{
		Model:  model,
		System: agent.SystemPrompt(),
		Prompt: prompt,
		Tools:  agent.Tools,
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		resp, err := p.textGen.GenerateContent(ctx, req)
		if err == nil {
			meta := shared.AgentMeta{
				AgentName: agent.Name,
				Stage:     string(stage),
				Usage:     resp.Usage,
				Latency:   time.Since(start),
				Attempts:  attempt,
			}
			if meta.Usage.Model == "" {
				meta.Usage.Model = model
			}
			status.result.Metas = append(status.result.Metas, meta)
			return &StageResult{Stage: stage, Model: model, Text: resp.Content, Succeeded: true, Meta: meta}, nil
		}

		if !llm.IsQuotaExceeded(err) || attempt >= maxAttempts {
			return nil, err
		}

		delay := p.retry.delay(attempt)
		status.add(StatusEntry{
			Level:   LevelWarn,
			Event:   EventRetry,
			Model:   model,
			Stage:   stage,
			Message: fmt.Sprintf("Rate limited on %s (attempt %d/%d), retrying in %s...", model, attempt, maxAttempts, delay),
		})
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func stageLabel(s Stage) string {
	switch s {
	case StageNutrition:
		return "meal plan"
	case StageFitness:
		return "fitness plan"
	case StageSynthesis:
		return "strategy"
	default:
		return "plan"
	}
}
