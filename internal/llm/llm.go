package llm

import (
	"context"

	"smart-health/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// Request is a single prompt addressed to one model.
type Request struct {
	Model  string
	System string
	Prompt string
	// Tools the model may call while answering. Empty means plain completion.
	Tools []Tool
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, req Request) (ContentResponse, error)
}

// ToolParam describes one string argument of a Tool.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// Tool is a function the model can invoke during generation.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParam
	Call(ctx context.Context, args map[string]string) (string, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

func findTool(tools []Tool, name string) Tool {
	for _, t := range tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// callTool runs a tool requested by the model. Failures are reported back to
// the model as text so that a flaky tool never fails the whole generation.
func callTool(ctx context.Context, tools []Tool, name string, args map[string]string) string {
	t := findTool(tools, name)
	if t == nil {
		return "error: unknown tool " + name
	}
	out, err := t.Call(ctx, args)
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}
