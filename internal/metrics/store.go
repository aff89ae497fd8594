package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smart-health/internal/database"
	"smart-health/internal/shared"
)

// ExecutionMetric records metadata for a single stage call.
type ExecutionMetric struct {
	PlanID           string
	AgentName        string
	Stage            string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Attempts         int
	LatencyMS        int64
	Timestamp        time.Time
}

// Store handles persistence of metrics to SQLite. It stores no profile data.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	attempts := m.Attempts
	if attempts < 1 {
		attempts = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_metrics
			(plan_id, agent_name, stage, model, prompt_tokens, completion_tokens, attempts, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.PlanID, m.AgentName, m.Stage, m.Model,
		m.PromptTokens, m.CompletionTokens, attempts, m.LatencyMS,
		ts.UTC().Format(database.TimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}
	return nil
}

// RecordMeta records metrics directly from shared.AgentMeta.
func (s *Store) RecordMeta(ctx context.Context, planID string, meta shared.AgentMeta) error {
	if meta.Usage.PromptTokens == 0 && meta.Usage.CompletionTokens == 0 {
		return nil
	}
	m := MapUsage(meta.AgentName, meta.Usage, meta.Latency)
	m.PlanID = planID
	m.Stage = meta.Stage
	m.Attempts = meta.Attempts
	return s.Record(ctx, m)
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string `json:"date"`
	TotalPrompt     int    `json:"total_prompt"`
	TotalCompletion int    `json:"total_completion"`
	TotalExecution  int    `json:"total_execution"`
}

// GetDailyUsage retrieves usage for the last N days, most recent first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(database.TimeFormat)
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(timestamp, 1, 10) AS day,
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COUNT(*)
		FROM execution_metrics
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.TotalPrompt, &u.TotalCompletion, &u.TotalExecution); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// ModelUsage aggregates calls per model.
type ModelUsage struct {
	Model        string  `json:"model"`
	Calls        int     `json:"calls"`
	TotalTokens  int     `json:"total_tokens"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	Retries      int     `json:"retries"`
}

// GetModelUsage reports per-model totals for the last N days.
func (s *Store) GetModelUsage(ctx context.Context, days int) ([]ModelUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(database.TimeFormat)
	rows, err := s.db.QueryContext(ctx, `
		SELECT model,
		       COUNT(*),
		       COALESCE(SUM(prompt_tokens + completion_tokens), 0),
		       COALESCE(AVG(latency_ms), 0),
		       COALESCE(SUM(attempts - 1), 0)
		FROM execution_metrics
		WHERE timestamp >= ?
		GROUP BY model
		ORDER BY COUNT(*) DESC, model`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query model usage: %w", err)
	}
	defer rows.Close()

	var results []ModelUsage
	for rows.Next() {
		var u ModelUsage
		if err := rows.Scan(&u.Model, &u.Calls, &u.TotalTokens, &u.AvgLatencyMS, &u.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan model usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(database.TimeFormat)
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up metrics: %w", err)
	}
	return res.RowsAffected()
}

// MapUsage helper to convert shared.TokenUsage to ExecutionMetric.
func MapUsage(agentName string, usage shared.TokenUsage, latency time.Duration) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        agentName,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		LatencyMS:        latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	}
}
