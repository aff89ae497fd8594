package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// AgentMeta holds operational metadata for an agent execution.
type AgentMeta struct {
	AgentName string
	Stage     string
	Usage     TokenUsage
	Latency   time.Duration
	// Number of backend invocations, including quota retries.
	Attempts int
}
