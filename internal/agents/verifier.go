package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/resolve"
	"github.com/igoryan-dao/quill/internal/textutil"
)

const verifierSystemPrompt = "You are a content verifier. Check if a draft aligns with reference material.\n" +
	"Return a JSON object with:\n" +
	"- \"is_valid\": boolean\n" +
	"- \"issues\": list of problems found\n" +
	"- \"suggestions\": list of improvements\n"

const reviserSystemPrompt = "You are an editor. Revise a draft to address the specified issues.\n" +
	"Keep the core message but improve accuracy and clarity.\n"

// Verifier checks a draft against reference material and proposes a
// revision when it finds issues.
type Verifier struct {
	client llm.Client
	cfg    Config
}

func NewVerifier(client llm.Client, cfg Config) *Verifier {
	return &Verifier{client: client, cfg: cfg.withDefaults()}
}

// Execute verifies the draft. Verification never fails the step: backend
// or parse errors yield a passing verdict with no issues.
func (a *Verifier) Execute(ctx context.Context, draft, reference, objective string) map[string]any {
	isValid, issues, suggestions := a.verify(ctx, draft, reference, objective)

	out := map[string]any{
		"is_valid":    isValid,
		"issues":      issues,
		"suggestions": suggestions,
		"revision":    nil,
	}
	if len(issues) > 0 {
		out["revision"] = a.suggestRevision(ctx, draft, issues)
	}
	return out
}

func (a *Verifier) verify(ctx context.Context, draft, reference, objective string) (bool, []any, []any) {
	draft = textutil.Clamp(draft, 2000)
	reference = textutil.Clamp(reference, 5000)
	if objective == "" {
		objective = "Verify accuracy, consistency, and evidence alignment."
	}

	resp, err := a.client.Chat(ctx, &llm.ChatRequest{
		Model:        a.cfg.GenerationModel,
		SystemPrompt: verifierSystemPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Objective: %s\n\nDraft:\n%s\n\nReference:\n%s\n\nVerify and return JSON.",
				objective, textutil.BoxUntrusted(draft), textutil.BoxUntrusted(reference)),
		}},
		MaxTokens:   500,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		log.Printf("[Verifier] Failed to verify: %v", err)
		return true, []any{}, []any{}
	}

	obj, err := llm.DecodeJSONObject(resp.Content)
	if err != nil {
		log.Printf("[Verifier] Failed to verify: %v", err)
		return true, []any{}, []any{}
	}

	isValid := true
	if v, ok := obj["is_valid"].(bool); ok {
		isValid = v
	}
	return isValid, listField(obj, "issues"), listField(obj, "suggestions")
}

// suggestRevision rewrites the draft to address up to five issues. On
// failure the (clamped) draft is returned unchanged.
func (a *Verifier) suggestRevision(ctx context.Context, draft string, issues []any) string {
	draft = textutil.Clamp(draft, 2000)

	limit := issues
	if len(limit) > 5 {
		limit = limit[:5]
	}
	lines := make([]string, len(limit))
	for i, issue := range limit {
		lines[i] = "- " + resolve.Stringify(issue)
	}

	resp, err := a.client.Chat(ctx, &llm.ChatRequest{
		Model:        a.cfg.GenerationModel,
		SystemPrompt: reviserSystemPrompt,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Original draft:\n%s\n\nIssues to fix:\n%s\n\nProvide revised version.",
				textutil.BoxUntrusted(draft), strings.Join(lines, "\n")),
		}},
		MaxTokens:   1500,
		Temperature: 0.2,
	})
	if err != nil {
		log.Printf("[Verifier] Failed to suggest revision: %v", err)
		return draft
	}
	return strings.TrimSpace(resp.Content)
}

func listField(m map[string]any, key string) []any {
	if list, ok := m[key].([]any); ok {
		return list
	}
	return []any{}
}
