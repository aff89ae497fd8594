package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"smart-health/internal/config"
	"smart-health/internal/shared"
)

const (
	groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"

	groqTemperature = 0.7
	// Tool-call rounds before the model is forced to answer in plain text.
	maxToolRounds = 3
)

// groqClient is a client for the Groq API.
type groqClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

// NewGroqClient creates a new Groq API client. The model is chosen per request.
func NewGroqClient(cfg *config.Config) TextGenerator {
	url := groqAPIURL
	if cfg.GroqBaseURL != "" {
		url = cfg.GroqBaseURL
	}
	return newGroqClient(cfg.GroqAPIKey, url)
}

func newGroqClient(apiKey, url string) *groqClient {
	return &groqClient{
		apiKey: apiKey,
		url:    url,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type groqMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []groqToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type groqToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type groqTool struct {
	Type     string           `json:"type"`
	Function groqToolFunction `json:"function"`
}

type groqToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Tools       []groqTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type groqResponse struct {
	Choices []struct {
		Message      groqMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type groqErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// GenerateContent sends a prompt to the requested Groq model and returns the generated text.
// When tools are attached the model may call them for up to maxToolRounds rounds.
func (c *groqClient) GenerateContent(ctx context.Context, req Request) (ContentResponse, error) {
	messages := make([]groqMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, groqMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, groqMessage{Role: "user", Content: req.Prompt})

	usage := shared.TokenUsage{Model: req.Model}
	tools := groqTools(req.Tools)

	for round := 0; ; round++ {
		body := groqRequest{
			Model:       req.Model,
			Messages:    messages,
			Temperature: groqTemperature,
		}
		if len(tools) > 0 {
			body.Tools = tools
			body.ToolChoice = "auto"
			if round >= maxToolRounds {
				body.ToolChoice = "none"
			}
		}

		resp, err := c.send(ctx, body)
		if err != nil {
			return ContentResponse{Usage: usage}, err
		}

		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.Choices) == 0 {
			return ContentResponse{Usage: usage}, fatalError(req.Model, errors.New("no content generated"))
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 || round >= maxToolRounds {
			if msg.Content == "" {
				return ContentResponse{Usage: usage}, fatalError(req.Model, errors.New("no content generated"))
			}
			return ContentResponse{Content: msg.Content, Usage: usage}, nil
		}

		messages = append(messages, groqMessage{Role: "assistant", Content: msg.Content, ToolCalls: msg.ToolCalls})
		for _, call := range msg.ToolCalls {
			messages = append(messages, groqMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    callTool(ctx, req.Tools, call.Function.Name, parseToolArgs(call.Function.Arguments)),
			})
		}
	}
}

func (c *groqClient) send(ctx context.Context, body groqRequest) (*groqResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fatalError(body.Model, fmt.Errorf("failed to marshal request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fatalError(body.Model, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fatalError(body.Model, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var errBody groqErrorBody
		_ = json.Unmarshal(bodyBytes, &errBody)
		return nil, classifyHTTP(
			body.Model,
			resp.StatusCode,
			errBody.Error.Code,
			fmt.Errorf("groq api error: %s", string(bodyBytes)),
		)
	}

	var groqResp groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return nil, fatalError(body.Model, fmt.Errorf("failed to decode response: %w", err))
	}
	return &groqResp, nil
}

func groqTools(tools []Tool) []groqTool {
	out := make([]groqTool, 0, len(tools))
	for _, t := range tools {
		props := map[string]any{}
		required := []string{}
		for _, p := range t.Parameters() {
			props[p.Name] = map[string]any{"type": "string", "description": p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, groqTool{
			Type: "function",
			Function: groqToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return out
}

// parseToolArgs decodes the JSON argument object of a tool call. Malformed
// arguments yield an empty map and the tool reports the missing values.
func parseToolArgs(raw string) map[string]string {
	args := map[string]string{}
	if raw == "" {
		return args
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return args
	}
	for k, v := range decoded {
		if s, ok := v.(string); ok {
			args[k] = s
			continue
		}
		args[k] = fmt.Sprint(v)
	}
	return args
}
