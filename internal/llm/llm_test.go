package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{provider: "openai", wantName: "openai"},
		{provider: "openrouter", wantName: "openrouter"},
		{provider: "deepseek", wantName: "deepseek"},
		{provider: "OpenAI", wantName: "openai"},
		{provider: "llamafarm", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := NewClient(ClientConfig{Provider: tt.provider, APIKey: "k"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for provider %q", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if c.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", c.Name(), tt.wantName)
			}
		})
	}
}

func TestOpenAIClient_Chat(t *testing.T) {
	var gotReq openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"resp-1","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, "")
	resp, err := c.Chat(context.Background(), &ChatRequest{
		Model:        "gpt-4o-mini",
		Messages:     []Message{{Role: "user", Content: "hi"}},
		SystemPrompt: "You are terse.",
		MaxTokens:    100,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Content != "hello" {
		t.Errorf("Content = %q, want %q", resp.Content, "hello")
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("expected system message first, got %+v", gotReq.Messages)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("expected response_format json_object, got %+v", gotReq.ResponseFormat)
	}
}

func TestOpenAIClient_ChatJSONModeFallback(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"response_format is not supported by this model"}}`))
			return
		}
		w.Write([]byte(`{"id":"r","model":"m","choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}],"usage":{}}`))
	}))
	defer server.Close()

	c := NewOpenAIClient("k", server.URL, "")
	resp, err := c.Chat(context.Background(), &ChatRequest{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "x"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (retry without response_format), got %d", calls)
	}
	if !strings.Contains(resp.Content, "ok") {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestOpenAIClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req openaiEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 2 {
			t.Errorf("expected 2 inputs, got %d", len(req.Input))
		}
		if strings.Contains(req.Input[0], "\n") {
			t.Errorf("newlines should be flattened, got %q", req.Input[0])
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}]}`))
	}))
	defer server.Close()

	c := NewOpenAIClient("k", server.URL, "custom-embed")
	vecs, err := c.Embed(context.Background(), []string{"line\nbreak", "plain"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected vectors %v", vecs)
	}
	if vecs[1][1] != 0.4 {
		t.Errorf("vecs[1][1] = %v, want 0.4", vecs[1][1])
	}
}

func TestOpenAIClient_EmbedEmpty(t *testing.T) {
	c := NewOpenAIClient("k", "http://unused", "")
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs != nil {
		t.Errorf("expected nil for empty input, got %v", vecs)
	}
}

func TestIsResponseFormatUnsupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "matching 400",
			err:  &APIError{StatusCode: 400, Body: `{"error":{"message":"response_format is not supported"}}`},
			want: true,
		},
		{
			name: "other 400",
			err:  &APIError{StatusCode: 400, Body: "bad model"},
			want: false,
		},
		{
			name: "500 with same body",
			err:  &APIError{StatusCode: 500, Body: "response_format is not supported"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("response_format not supported"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isResponseFormatUnsupported(tt.err); got != tt.want {
				t.Errorf("isResponseFormatUnsupported() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantKey string
		wantErr bool
	}{
		{name: "plain", text: `{"a": 1}`, wantKey: "a"},
		{name: "fenced", text: "```json\n{\"plan\": []}\n```", wantKey: "plan"},
		{name: "fence no lang", text: "```\n{\"x\": true}\n```", wantKey: "x"},
		{name: "prose around object", text: "Here you go: {\"y\": 2} hope that helps", wantErr: true},
		{name: "garbage", text: "no json here", wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := DecodeJSONObject(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", obj)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSONObject: %v", err)
			}
			if _, ok := obj[tt.wantKey]; !ok {
				t.Errorf("missing key %q in %v", tt.wantKey, obj)
			}
		})
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "auth", err: errors.New("API error 401: Unauthorized"), contains: "Authentication error"},
		{name: "rate limit", err: errors.New("API error 429: Too Many Requests"), contains: "Rate limit"},
		{name: "timeout", err: errors.New("context deadline exceeded"), contains: "Connection timeout"},
		{name: "no host", err: errors.New("dial tcp: lookup api.openai.com: no such host"), contains: "Network error"},
		{name: "balance", err: errors.New("insufficient_balance"), contains: "Insufficient balance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TranslateError(tt.err)
			if !strings.Contains(got, tt.contains) {
				t.Errorf("TranslateError() = %q, want substring %q", got, tt.contains)
			}
		})
	}

	if TranslateError(nil) != "" {
		t.Errorf("TranslateError(nil) should be empty")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
	n := EstimateTokens("The quick brown fox jumps over the lazy dog.")
	if n <= 0 {
		t.Errorf("expected positive token count, got %d", n)
	}
	if b := EstimateBudgetedTokens("The quick brown fox jumps over the lazy dog."); b < n {
		t.Errorf("budgeted estimate %d should be >= raw %d", b, n)
	}
}
