package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSummarizerExecute(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{content: "  short summary  "}}}
	s := NewSummarizer(client, Config{})

	out := s.Execute(context.Background(), "one two three four five", 100)
	if out["summary"] != "short summary" {
		t.Errorf("summary = %q", out["summary"])
	}
	if out["original_length"] != 5 {
		t.Errorf("original_length = %v, want 5", out["original_length"])
	}
	if out["summary_length"] != 2 {
		t.Errorf("summary_length = %v, want 2", out["summary_length"])
	}

	req := client.reqs[0]
	if !strings.Contains(req.SystemPrompt, "at most 100 words") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.MaxTokens != 150 {
		t.Errorf("MaxTokens = %d, want 150", req.MaxTokens)
	}
	if req.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", req.Temperature)
	}
	if !strings.Contains(req.Messages[0].Content, "<UNTRUSTED_DATA>") {
		t.Error("text not boxed as untrusted")
	}
}

func TestSummarizerDefaultsMaxWords(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{content: "s"}}}
	s := NewSummarizer(client, Config{})

	s.Execute(context.Background(), "text", 0)
	if !strings.Contains(client.reqs[0].SystemPrompt, "at most 300 words") {
		t.Errorf("system prompt = %q", client.reqs[0].SystemPrompt)
	}
}

func TestSummarizerFallbackTruncates(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{err: errors.New("backend down")}}}
	s := NewSummarizer(client, Config{})

	long := strings.Repeat("x", 800)
	out := s.Execute(context.Background(), long, 100)
	summary := out["summary"].(string)
	if len(summary) != 503 {
		t.Errorf("fallback length = %d, want 500 + ellipsis", len(summary))
	}
	if !strings.HasSuffix(summary, "...") {
		t.Errorf("fallback = %q, want ellipsis suffix", summary[490:])
	}
}

func TestSummarizerFallbackShortText(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{err: errors.New("backend down")}}}
	s := NewSummarizer(client, Config{})

	out := s.Execute(context.Background(), "tiny text", 100)
	if out["summary"] != "tiny text..." {
		t.Errorf("fallback = %q", out["summary"])
	}
}
