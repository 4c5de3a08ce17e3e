package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/resolve"
)

// Writer renders the final output from a blueprint and gathered facts.
type Writer struct {
	client llm.Client
	cfg    Config
}

func NewWriter(client llm.Client, cfg Config) *Writer {
	return &Writer{client: client, cfg: cfg.withDefaults()}
}

// Execute generates output following the blueprint. Generation never fails
// the step; backend errors yield a fixed failure sentence in "final".
func (a *Writer) Execute(ctx context.Context, blueprint, facts map[string]any, styleNotes string) map[string]any {
	return map[string]any{
		"final":             a.writeOutput(ctx, blueprint, facts, styleNotes),
		"blueprint_applied": true,
	}
}

func (a *Writer) writeOutput(ctx context.Context, blueprint, facts map[string]any, styleNotes string) string {
	purpose := stringOr(blueprint, "purpose", "Generate a clear response")
	tone := stringOr(blueprint, "tone", "professional")
	formatItems := stringListOr(blueprint, "format", []string{"summary"})
	constraints := stringListOr(blueprint, "constraints", nil)

	resp, err := a.client.Chat(ctx, &llm.ChatRequest{
		Model:        a.cfg.GenerationModel,
		SystemPrompt: writerSystemPrompt(purpose, tone, formatItems, constraints),
		Messages: []llm.Message{{
			Role:    "user",
			Content: writerUserPrompt(facts, styleNotes),
		}},
		MaxTokens:   min(a.cfg.MaxTokensPerCall, 2000),
		Temperature: 0.2,
	})
	if err != nil {
		log.Printf("[Writer] Failed to generate output: %v", err)
		return "Failed to generate output."
	}
	return strings.TrimSpace(resp.Content)
}

func writerSystemPrompt(purpose, tone string, formatItems, constraints []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Purpose: %s\nTone: %s\n", purpose, tone)
	if len(formatItems) > 0 {
		fmt.Fprintf(&b, "Format: Include %s\n", strings.Join(formatItems, ", "))
	}
	if len(constraints) > 0 {
		b.WriteString("Constraints:\n")
		for _, c := range constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}

func writerUserPrompt(facts map[string]any, styleNotes string) string {
	var b strings.Builder
	b.WriteString("Facts and evidence:\n")
	b.WriteString(resolve.Stringify(facts))
	if styleNotes != "" {
		b.WriteString("\n\nAdditional style guidance:\n")
		b.WriteString(styleNotes)
	}
	b.WriteString("\n\nGenerate the output now.")
	return b.String()
}

func stringOr(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return resolve.Stringify(v)
}

func stringListOr(m map[string]any, key string, def []string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, resolve.Stringify(item))
		}
		return out
	case string:
		return []string{list}
	default:
		return def
	}
}
