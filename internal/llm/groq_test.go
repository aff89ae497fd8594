package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type stubTool struct {
	calls    int
	lastArgs map[string]string
}

func (s *stubTool) Name() string        { return "web_search" }
func (s *stubTool) Description() string { return "search the web" }
func (s *stubTool) Parameters() []ToolParam {
	return []ToolParam{{Name: "query", Description: "search terms", Required: true}}
}
func (s *stubTool) Call(ctx context.Context, args map[string]string) (string, error) {
	s.calls++
	s.lastArgs = args
	return "oats are high in fibre", nil
}

func TestGroqGenerateContent(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test_key" {
				t.Errorf("Expected bearer auth header, got '%s'", got)
			}
			var body groqRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode request: %v", err)
			}
			if body.Model != "llama-3.1-8b-instant" {
				t.Errorf("Expected model 'llama-3.1-8b-instant', got '%s'", body.Model)
			}
			if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
				t.Errorf("Expected system + user messages, got %+v", body.Messages)
			}
			if len(body.Tools) != 0 {
				t.Errorf("Expected no tools, got %d", len(body.Tools))
			}
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Eat oats."}}],
				"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
		}))
		defer server.Close()

		client := newGroqClient("test_key", server.URL)
		resp, err := client.GenerateContent(ctx, Request{
			Model:  "llama-3.1-8b-instant",
			System: "You are a nutritionist.",
			Prompt: "Plan my breakfast.",
		})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if resp.Content != "Eat oats." {
			t.Errorf("Expected 'Eat oats.', got '%s'", resp.Content)
		}
		if resp.Usage.TotalTokens != 15 || resp.Usage.Model != "llama-3.1-8b-instant" {
			t.Errorf("Unexpected usage %+v", resp.Usage)
		}
	})

	t.Run("RateLimited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`)
		}))
		defer server.Close()

		client := newGroqClient("test_key", server.URL)
		_, err := client.GenerateContent(ctx, Request{Model: "m", Prompt: "p"})
		if err == nil {
			t.Fatal("Expected an error, got nil")
		}
		if !IsQuotaExceeded(err) {
			t.Errorf("Expected quota classification, got %v", err)
		}
	})

	t.Run("RateLimitCodeWithoutStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`)
		}))
		defer server.Close()

		client := newGroqClient("test_key", server.URL)
		_, err := client.GenerateContent(ctx, Request{Model: "m", Prompt: "p"})
		if !IsQuotaExceeded(err) {
			t.Errorf("Expected quota classification, got %v", err)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"boom"}}`)
		}))
		defer server.Close()

		client := newGroqClient("test_key", server.URL)
		_, err := client.GenerateContent(ctx, Request{Model: "m", Prompt: "p"})
		if err == nil {
			t.Fatal("Expected an error, got nil")
		}
		if IsQuotaExceeded(err) {
			t.Error("Expected a fatal classification for a 500")
		}
		if !strings.Contains(err.Error(), "status 500") {
			t.Errorf("Expected status in error, got %v", err)
		}
	})

	t.Run("ToolCallRound", func(t *testing.T) {
		var requests int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&requests, 1)
			var body groqRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode request: %v", err)
			}
			if len(body.Tools) != 1 || body.Tools[0].Function.Name != "web_search" {
				t.Errorf("Expected web_search tool to be offered, got %+v", body.Tools)
			}
			if n == 1 {
				fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"",
					"tool_calls":[{"id":"call_1","type":"function","function":{"name":"web_search","arguments":"{\"query\":\"oats fibre\"}"}}]}}],
					"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
				return
			}
			last := body.Messages[len(body.Messages)-1]
			if last.Role != "tool" || last.ToolCallID != "call_1" || last.Content != "oats are high in fibre" {
				t.Errorf("Expected tool result message, got %+v", last)
			}
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Oats for breakfast."}}],
				"usage":{"prompt_tokens":20,"completion_tokens":4,"total_tokens":24}}`)
		}))
		defer server.Close()

		tool := &stubTool{}
		client := newGroqClient("test_key", server.URL)
		resp, err := client.GenerateContent(ctx, Request{Model: "m", Prompt: "p", Tools: []Tool{tool}})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if resp.Content != "Oats for breakfast." {
			t.Errorf("Unexpected content '%s'", resp.Content)
		}
		if tool.calls != 1 || tool.lastArgs["query"] != "oats fibre" {
			t.Errorf("Expected one tool call with query 'oats fibre', got %d calls, args %v", tool.calls, tool.lastArgs)
		}
		if resp.Usage.TotalTokens != 39 {
			t.Errorf("Expected usage summed across rounds (39), got %d", resp.Usage.TotalTokens)
		}
	})
}

func TestParseToolArgs(t *testing.T) {
	args := parseToolArgs(`{"query":"vegan protein","max_results":5}`)
	if args["query"] != "vegan protein" {
		t.Errorf("Expected query 'vegan protein', got '%s'", args["query"])
	}
	if args["max_results"] != "5" {
		t.Errorf("Expected max_results '5', got '%s'", args["max_results"])
	}
	if got := parseToolArgs("not json"); len(got) != 0 {
		t.Errorf("Expected empty args for malformed JSON, got %v", got)
	}
}
