package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smart-health/internal/config"
	"smart-health/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient is a TextGenerator backed by the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, cfg *config.Config) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// GenerateContent sends a prompt to the requested Gemini model and returns the generated text.
func (c *GeminiClient) GenerateContent(ctx context.Context, req Request) (ContentResponse, error) {
	model := c.client.GenerativeModel(req.Model)
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(req.Tools)}}
	}

	usage := shared.TokenUsage{Model: req.Model}
	session := model.StartChat()

	parts := []genai.Part{genai.Text(req.Prompt)}
	for round := 0; ; round++ {
		if round == maxToolRounds {
			// Out of tool budget: ask for the final answer without tools.
			model.Tools = nil
		}

		resp, err := session.SendMessage(ctx, parts...)
		if err != nil {
			return ContentResponse{Usage: usage}, classifyGoogle(req.Model, err)
		}
		if resp.UsageMetadata != nil {
			usage.PromptTokens += int(resp.UsageMetadata.PromptTokenCount)
			usage.CompletionTokens += int(resp.UsageMetadata.CandidatesTokenCount)
			usage.TotalTokens += int(resp.UsageMetadata.TotalTokenCount)
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return ContentResponse{Usage: usage}, fatalError(req.Model, errors.New("no content generated"))
		}

		var text strings.Builder
		var calls []genai.FunctionCall
		for _, part := range resp.Candidates[0].Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				calls = append(calls, p)
			}
		}

		if len(calls) == 0 || round >= maxToolRounds {
			if text.Len() == 0 {
				return ContentResponse{Usage: usage}, fatalError(req.Model, errors.New("generated content is not text"))
			}
			return ContentResponse{Content: text.String(), Usage: usage}, nil
		}

		// The session keeps the previous parts in its history.
		parts = make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			args := make(map[string]string, len(call.Args))
			for k, v := range call.Args {
				args[k] = fmt.Sprint(v)
			}
			parts = append(parts, genai.FunctionResponse{
				Name:     call.Name,
				Response: map[string]any{"result": callTool(ctx, req.Tools, call.Name, args)},
			})
		}
	}
}

// Close closes the underlying Gemini client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func geminiDeclarations(tools []Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		for _, p := range t.Parameters() {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schema,
		})
	}
	return decls
}
