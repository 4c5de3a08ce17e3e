package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/textutil"
)

// Summarizer condenses long texts to a word budget.
type Summarizer struct {
	client llm.Client
	cfg    Config
}

func NewSummarizer(client llm.Client, cfg Config) *Summarizer {
	return &Summarizer{client: client, cfg: cfg.withDefaults()}
}

// Execute summarizes text to at most maxWords words. Summarization never
// fails the step: on backend errors the head of the text stands in.
func (a *Summarizer) Execute(ctx context.Context, text string, maxWords int) map[string]any {
	if maxWords <= 0 {
		maxWords = 300
	}
	summary := a.summarize(ctx, text, maxWords)
	return map[string]any{
		"summary":         summary,
		"original_length": len(strings.Fields(text)),
		"summary_length":  len(strings.Fields(summary)),
	}
}

func (a *Summarizer) summarize(ctx context.Context, text string, maxWords int) string {
	text = textutil.Clamp(text, a.cfg.MaxContextChars)

	system := fmt.Sprintf("You are a text summarizer. Condense the provided text to at most %d words.\n"+
		"Keep key facts and remove redundancy. Be precise.\n", maxWords)

	resp, err := a.client.Chat(ctx, &llm.ChatRequest{
		Model:        a.cfg.GenerationModel,
		SystemPrompt: system,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Text to summarize:\n%s\n\nProvide summary now.", textutil.BoxUntrusted(text)),
		}},
		MaxTokens:   int(float64(maxWords) * 1.5),
		Temperature: 0.3,
	})
	if err != nil {
		log.Printf("[Summarizer] Failed to summarize: %v", err)
		if r := []rune(text); len(r) > 500 {
			return string(r[:500]) + "..."
		}
		return text + "..."
	}
	return strings.TrimSpace(resp.Content)
}
