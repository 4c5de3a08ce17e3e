package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/igoryan-dao/quill/internal/breaker"
)

type fakeClient struct {
	chatCalls   int
	embedCalls  int
	lastEmbed   []string
	chatContent string
	chatErr     error
	embedDim    int
	embedErr    error
}

func (f *fakeClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &ChatResponse{
		Model:   req.Model,
		Content: f.chatContent,
		Usage:   Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (f *fakeClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	f.lastEmbed = append([]string(nil), texts...)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	dim := f.embedDim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}

func (f *fakeClient) Name() string { return "fake" }

func chatReq(content string) *ChatRequest {
	return &ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: content}},
	}
}

func TestResilientChatCachesResponses(t *testing.T) {
	inner := &fakeClient{chatContent: "hello"}
	c := NewResilientClient(inner, ResilientConfig{})

	first, err := c.Chat(context.Background(), chatReq("hi"))
	if err != nil {
		t.Fatalf("first chat: %v", err)
	}
	second, err := c.Chat(context.Background(), chatReq("hi"))
	if err != nil {
		t.Fatalf("second chat: %v", err)
	}

	if inner.chatCalls != 1 {
		t.Errorf("backend calls = %d, want 1 (second should hit the cache)", inner.chatCalls)
	}
	if first.Content != "hello" || second.Content != "hello" {
		t.Errorf("contents = %q / %q, want hello", first.Content, second.Content)
	}
	if second.Usage.InputTokens != 0 {
		t.Errorf("cached response should carry no usage, got %+v", second.Usage)
	}
}

func TestResilientChatDistinctPromptsMiss(t *testing.T) {
	inner := &fakeClient{chatContent: "hello"}
	c := NewResilientClient(inner, ResilientConfig{})

	if _, err := c.Chat(context.Background(), chatReq("one")); err != nil {
		t.Fatalf("chat one: %v", err)
	}
	if _, err := c.Chat(context.Background(), chatReq("two")); err != nil {
		t.Fatalf("chat two: %v", err)
	}
	if inner.chatCalls != 2 {
		t.Errorf("backend calls = %d, want 2", inner.chatCalls)
	}
}

func TestResilientChatBreakerOpens(t *testing.T) {
	inner := &fakeClient{chatErr: errors.New("boom")}
	c := NewResilientClient(inner, ResilientConfig{})

	for i := 0; i < 3; i++ {
		if _, err := c.Chat(context.Background(), chatReq(fmt.Sprintf("p%d", i))); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if inner.chatCalls != 3 {
		t.Fatalf("backend calls = %d, want 3", inner.chatCalls)
	}

	_, err := c.Chat(context.Background(), chatReq("p3"))
	var oe *breaker.OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OpenError once tripped, got %v", err)
	}
	if inner.chatCalls != 3 {
		t.Errorf("backend must not be called while the breaker is open, calls = %d", inner.chatCalls)
	}
}

func TestResilientEmbedCachesPerText(t *testing.T) {
	inner := &fakeClient{}
	c := NewResilientClient(inner, ResilientConfig{EmbedModel: "emb-model"})

	first, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if len(first) != 2 || first[0] == nil || first[1] == nil {
		t.Fatalf("unexpected first result %v", first)
	}

	second, err := c.Embed(context.Background(), []string{"alpha", "gamma"})
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if inner.embedCalls != 2 {
		t.Fatalf("backend embed calls = %d, want 2", inner.embedCalls)
	}
	if len(inner.lastEmbed) != 1 || inner.lastEmbed[0] != "gamma" {
		t.Errorf("second call should only embed the miss, got %v", inner.lastEmbed)
	}
	if len(second) != 2 || second[0] == nil || second[1] == nil {
		t.Errorf("unexpected second result %v", second)
	}
}

func TestResilientEmbedFullCacheHitSkipsBackend(t *testing.T) {
	inner := &fakeClient{}
	c := NewResilientClient(inner, ResilientConfig{})

	if _, err := c.Embed(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if _, err := c.Embed(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if inner.embedCalls != 1 {
		t.Errorf("backend embed calls = %d, want 1", inner.embedCalls)
	}
}

func TestResilientEmbedCountMismatch(t *testing.T) {
	c := NewResilientClient(&shortEmbedClient{}, ResilientConfig{})
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for mismatched embedding count")
	}
}

type shortEmbedClient struct{ fakeClient }

func (s *shortEmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"circuit open", &breaker.OpenError{Name: "llm"}, "circuit_open"},
		{"api error", &APIError{StatusCode: 429, Body: "slow down"}, "api_error"},
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"network", &net.DNSError{Err: "no such host"}, "network_error"},
		{"wrapped api error", fmt.Errorf("chat: %w", &APIError{StatusCode: 500}), "api_error"},
		{"other", errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(tt.err); got != tt.want {
				t.Errorf("errorTypeLabel(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
