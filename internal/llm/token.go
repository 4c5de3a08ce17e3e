package llm

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenFudgeFactor is a safety margin to account for differences in tokenization
// between models. With precise tokenization a small margin is enough.
const TokenFudgeFactor = 1.05

var (
	tkm     *tiktoken.Tiktoken
	tkmOnce sync.Once
)

func getTokenizer() *tiktoken.Tiktoken {
	tkmOnce.Do(func() {
		var err error
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("Warning: failed to load tiktoken encoding: %v. Falling back to heuristic.", err)
		}
	})
	return tkm
}

// EstimateTokens provides an estimation of tokens in a string.
// It uses tiktoken if available, otherwise falls back to a 1:4 heuristic.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	tokenizer := getTokenizer()
	if tokenizer != nil {
		tokens := tokenizer.Encode(text, nil, nil)
		return len(tokens)
	}

	// Rule of thumb: 1 token ~= 4 characters for English text.
	return len(text) / 4
}

// EstimateBudgetedTokens applies the safety margin to the estimation.
func EstimateBudgetedTokens(text string) int {
	return int(float64(EstimateTokens(text)) * TokenFudgeFactor)
}

// EstimateMessageTokens estimates tokens for one chat message, including a
// small per-message overhead for role tags.
func EstimateMessageTokens(msg Message) int {
	// Approximately 4 tokens per message in ChatML and similar formats.
	return EstimateTokens(msg.Content) + 4
}

// EstimateTotalTokens counts tokens for a list of messages.
func EstimateTotalTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessageTokens(msg)
	}
	return total
}
