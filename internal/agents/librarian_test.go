package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/igoryan-dao/quill/internal/retrieval"
)

func TestLibrarianBlueprintFromContext(t *testing.T) {
	store := &scriptStore{responses: [][]retrieval.Match{{
		{ID: "ctx-1", Score: 0.9, Metadata: map[string]any{
			"description": "Research memo conventions",
			"blueprint":   map[string]any{"tone": "dry"},
		}},
	}}}
	client := &scriptClient{chats: []chatReply{
		{content: `{"purpose": "memo_assistant", "tone": "dry"}`},
	}}
	lib := NewLibrarian(client, store, Config{ContextNamespace: "ContextLibrary"})

	out, err := lib.Execute(context.Background(), "write a memo", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["purpose"] != "memo_assistant" {
		t.Errorf("purpose = %v", out["purpose"])
	}
	// Missing keys are filled with defaults.
	if _, ok := out["format"]; !ok {
		t.Error("format default not applied")
	}
	if _, ok := out["constraints"]; !ok {
		t.Error("constraints default not applied")
	}

	if len(store.reqs) != 1 {
		t.Fatalf("made %d queries, want 1", len(store.reqs))
	}
	if store.reqs[0].Namespace != "ContextLibrary" || store.reqs[0].TopK != 3 {
		t.Errorf("query = %+v", store.reqs[0])
	}

	req := client.reqs[0]
	if !req.JSONMode || req.MaxTokens != 700 {
		t.Errorf("chat request = maxTokens %d jsonMode %v", req.MaxTokens, req.JSONMode)
	}
	user := req.Messages[0].Content
	if !strings.Contains(user, "Blueprint source:") {
		t.Error("user prompt missing blueprint source section")
	}
	if !strings.Contains(user, "Research memo conventions\nBlueprint:\n") {
		t.Error("context should combine description with blueprint JSON")
	}
	if !strings.Contains(user, "<UNTRUSTED_DATA>") {
		t.Error("context not boxed as untrusted")
	}
}

func TestLibrarianWithoutStore(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{content: `{"tone": "neutral"}`}}}
	lib := NewLibrarian(client, nil, Config{})

	out, err := lib.Execute(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["tone"] != "neutral" {
		t.Errorf("tone = %v", out["tone"])
	}
	if !strings.Contains(client.reqs[0].Messages[0].Content, "No context available - use defaults.") {
		t.Error("user prompt should state that no context is available")
	}
}

func TestLibrarianInvalidJSONFallsBackToDefaults(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{content: "definitely not json"}}}
	lib := NewLibrarian(client, nil, Config{})

	out, err := lib.Execute(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["purpose"] != "paper_qa_assistant" {
		t.Errorf("purpose = %v, want default", out["purpose"])
	}
	format, _ := out["format"].([]any)
	if len(format) != 4 {
		t.Errorf("default format = %v, want 4 entries", format)
	}
}

func TestLibrarianChatErrorPropagates(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{err: errors.New("backend down")}}}
	lib := NewLibrarian(client, nil, Config{})

	if _, err := lib.Execute(context.Background(), "anything", nil); err == nil {
		t.Fatal("expected error from chat backend")
	}
}

func TestLibrarianContextTypeRetry(t *testing.T) {
	store := &scriptStore{responses: [][]retrieval.Match{
		{}, // filtered query finds nothing
		{{ID: "ctx-1", Score: 0.5, Metadata: map[string]any{"text": "style notes"}}},
	}}
	client := &scriptClient{chats: []chatReply{{content: `{}`}}}
	lib := NewLibrarian(client, store, Config{})

	if _, err := lib.Execute(context.Background(), "memo", []string{"voice"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(store.reqs) != 2 {
		t.Fatalf("made %d queries, want filtered then unfiltered", len(store.reqs))
	}
	if store.reqs[0].Filter == nil {
		t.Error("first query should carry the context_type filter")
	}
	if store.reqs[1].Filter != nil {
		t.Error("retry should drop the filter")
	}
	if !strings.Contains(client.reqs[0].Messages[0].Content, "style notes") {
		t.Error("retry result should feed the prompt")
	}
}

func TestLibrarianPicksBestScoringContext(t *testing.T) {
	store := &scriptStore{responses: [][]retrieval.Match{{
		{ID: "low", Score: 0.2, Metadata: map[string]any{"text": "weak match"}},
		{ID: "high", Score: 0.8, Metadata: map[string]any{"text": "strong match"}},
		{ID: "empty", Score: 0.95, Metadata: map[string]any{}},
	}}}
	client := &scriptClient{chats: []chatReply{{content: `{}`}}}
	lib := NewLibrarian(client, store, Config{})

	if _, err := lib.Execute(context.Background(), "memo", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	user := client.reqs[0].Messages[0].Content
	if !strings.Contains(user, "strong match") {
		t.Error("best scoring non-empty context not selected")
	}
	if strings.Contains(user, "weak match") {
		t.Error("lower scoring context leaked into the prompt")
	}
}

func TestDefaultBlueprintShape(t *testing.T) {
	bp := DefaultBlueprint()
	for _, key := range []string{"purpose", "tone", "format", "constraints"} {
		if _, ok := bp[key]; !ok {
			t.Errorf("default blueprint missing %q", key)
		}
	}
}
