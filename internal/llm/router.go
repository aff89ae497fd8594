package llm

import (
	"context"
	"fmt"
	"strings"
)

// Router dispatches each request to the backend that serves its model.
// Model identifiers starting with "gemini-" go to Gemini, everything else to Groq.
type Router struct {
	groq   TextGenerator
	gemini TextGenerator
}

// NewRouter creates a Router. Either backend may be nil when it is not configured.
func NewRouter(groq, gemini TextGenerator) *Router {
	return &Router{groq: groq, gemini: gemini}
}

// GenerateContent forwards the request to the matching backend.
func (r *Router) GenerateContent(ctx context.Context, req Request) (ContentResponse, error) {
	backend, name := r.groq, "groq"
	if IsGeminiModel(req.Model) {
		backend, name = r.gemini, "gemini"
	}
	if backend == nil {
		return ContentResponse{}, fatalError(req.Model, fmt.Errorf("no %s backend configured", name))
	}
	return backend.GenerateContent(ctx, req)
}

// IsGeminiModel reports whether the identifier names a Gemini model.
func IsGeminiModel(model string) bool {
	return strings.HasPrefix(model, "gemini-")
}
