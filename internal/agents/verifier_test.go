package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestVerifierValidDraft(t *testing.T) {
	client := &scriptClient{chats: []chatReply{
		{content: `{"is_valid": true, "issues": [], "suggestions": ["tighten intro"]}`},
	}}
	v := NewVerifier(client, Config{})

	out := v.Execute(context.Background(), "The draft.", "The reference.", "")
	if out["is_valid"] != true {
		t.Errorf("is_valid = %v", out["is_valid"])
	}
	if len(out["issues"].([]any)) != 0 {
		t.Errorf("issues = %v", out["issues"])
	}
	if out["revision"] != nil {
		t.Errorf("revision = %v, want nil without issues", out["revision"])
	}
	suggestions := out["suggestions"].([]any)
	if len(suggestions) != 1 || suggestions[0] != "tighten intro" {
		t.Errorf("suggestions = %v", suggestions)
	}

	// Only one call: no revision pass for a clean verdict.
	if len(client.reqs) != 1 {
		t.Fatalf("made %d chat calls, want 1", len(client.reqs))
	}
	req := client.reqs[0]
	if !req.JSONMode || req.MaxTokens != 500 {
		t.Errorf("verify request = maxTokens %d jsonMode %v", req.MaxTokens, req.JSONMode)
	}
	if !strings.Contains(req.Messages[0].Content, "Objective: Verify accuracy, consistency, and evidence alignment.") {
		t.Error("default objective missing")
	}
}

func TestVerifierIssuesTriggerRevision(t *testing.T) {
	client := &scriptClient{chats: []chatReply{
		{content: `{"is_valid": false, "issues": ["claim 2 unsupported"], "suggestions": []}`},
		{content: "  Revised draft.  "},
	}}
	v := NewVerifier(client, Config{})

	out := v.Execute(context.Background(), "The draft.", "The reference.", "check citations")
	if out["is_valid"] != false {
		t.Errorf("is_valid = %v", out["is_valid"])
	}
	if out["revision"] != "Revised draft." {
		t.Errorf("revision = %v", out["revision"])
	}

	if len(client.reqs) != 2 {
		t.Fatalf("made %d chat calls, want 2", len(client.reqs))
	}
	if !strings.Contains(client.reqs[0].Messages[0].Content, "Objective: check citations") {
		t.Error("caller objective not used")
	}
	revisionPrompt := client.reqs[1].Messages[0].Content
	if !strings.Contains(revisionPrompt, "- claim 2 unsupported") {
		t.Errorf("revision prompt = %q", revisionPrompt)
	}
	if client.reqs[1].MaxTokens != 1500 || client.reqs[1].Temperature != 0.2 {
		t.Errorf("revision request = %+v", client.reqs[1])
	}
}

func TestVerifierRevisionPromptCapsIssues(t *testing.T) {
	issues := `["a1", "a2", "a3", "a4", "a5", "a6", "a7"]`
	client := &scriptClient{chats: []chatReply{
		{content: `{"is_valid": false, "issues": ` + issues + `}`},
		{content: "rev"},
	}}
	v := NewVerifier(client, Config{})

	v.Execute(context.Background(), "Draft.", "Ref.", "")
	prompt := client.reqs[1].Messages[0].Content
	if !strings.Contains(prompt, "- a5") {
		t.Error("fifth issue missing")
	}
	if strings.Contains(prompt, "- a6") {
		t.Error("issues beyond five should be dropped")
	}
}

func TestVerifierBackendFailureAccepts(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{err: errors.New("backend down")}}}
	v := NewVerifier(client, Config{})

	out := v.Execute(context.Background(), "Draft.", "Ref.", "")
	if out["is_valid"] != true {
		t.Errorf("is_valid = %v, want true on failure", out["is_valid"])
	}
	if len(out["issues"].([]any)) != 0 || out["revision"] != nil {
		t.Errorf("failure verdict = %v", out)
	}
}

func TestVerifierBadJSONAccepts(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{content: "not json"}}}
	v := NewVerifier(client, Config{})

	out := v.Execute(context.Background(), "Draft.", "Ref.", "")
	if out["is_valid"] != true {
		t.Errorf("is_valid = %v, want true on parse failure", out["is_valid"])
	}
}

func TestVerifierRevisionFailureKeepsDraft(t *testing.T) {
	client := &scriptClient{chats: []chatReply{
		{content: `{"is_valid": false, "issues": ["x is wrong"]}`},
		{err: errors.New("backend down")},
	}}
	v := NewVerifier(client, Config{})

	out := v.Execute(context.Background(), "Original draft text.", "Ref.", "")
	if out["revision"] != "Original draft text." {
		t.Errorf("revision = %v, want original draft", out["revision"])
	}
}

func TestVerifierClampsLongInputs(t *testing.T) {
	client := &scriptClient{chats: []chatReply{{content: `{"is_valid": true}`}}}
	v := NewVerifier(client, Config{})

	longDraft := strings.Repeat("d", 3000)
	longRef := strings.Repeat("r", 6000)
	v.Execute(context.Background(), longDraft, longRef, "")

	user := client.reqs[0].Messages[0].Content
	if strings.Contains(user, strings.Repeat("d", 2001)) {
		t.Error("draft not clamped to 2000 chars")
	}
	if strings.Contains(user, strings.Repeat("r", 5001)) {
		t.Error("reference not clamped to 5000 chars")
	}
}
