// Package moderation gates engine input and output. There is no dedicated
// moderation endpoint on OpenRouter-style providers, so the check is a
// one-token probe request: providers with built-in safety reject flagged
// content with a 403 whose body names the refusal reasons.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/metrics"
	"github.com/igoryan-dao/quill/internal/textutil"
)

// maxModerationChars bounds the text sent to the probe.
const maxModerationChars = 20000

// Categories lists every category a report covers, in stable order.
var Categories = []string{
	"hate",
	"hate_threatening",
	"harassment",
	"harassment_threatening",
	"self_harm",
	"self_harm_intent",
	"self_harm_instructions",
	"sexual",
	"sexual_minors",
	"violence",
	"violence_graphic",
}

// Report is the compact result of one moderation pass.
type Report struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Model          string             `json:"model"`
}

// Moderator screens text through the provider probe plus an optional local
// policy overlay. It takes the raw client on purpose: probe responses are a
// single token and refusals must reach us as errors, so neither the response
// cache nor the circuit breaker may sit in between.
type Moderator struct {
	client  llm.Client
	model   string
	policy  *Policy
	metrics metrics.Recorder
}

func NewModerator(client llm.Client, model string, policy *Policy, rec metrics.Recorder) *Moderator {
	if policy == nil {
		policy = &Policy{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Moderator{client: client, model: model, policy: policy, metrics: rec}
}

// ModerateText clamps the text, applies the local policy, and runs the
// provider probe. Probe failures other than a safety refusal are returned as
// errors so callers can decide whether to fail open or closed.
func (m *Moderator) ModerateText(ctx context.Context, text string) (*Report, error) {
	text = textutil.Clamp(text, maxModerationChars)

	if term := m.policy.matchBlockedTerm(text); term != "" {
		log.Printf("[Moderation] Local policy matched blocked term %q", term)
		return &Report{
			Flagged:        true,
			Categories:     emptyCategories(),
			CategoryScores: emptyScores(),
			Model:          m.modelName(),
		}, nil
	}

	report, err := m.probe(ctx, text)
	if err != nil {
		return nil, err
	}
	if report.Flagged && m.policy.tolerates(report.Categories) {
		log.Printf("[Moderation] Flag tolerated by policy allow list")
		report.Flagged = false
	}
	return report, nil
}

// probe makes a minimal one-token chat request. A clean completion means the
// provider accepted the content; a 403 carries refusal reasons in the error
// body and maps to a flagged report. Anything else is a real failure.
func (m *Moderator) probe(ctx context.Context, text string) (*Report, error) {
	model := m.modelName()
	start := time.Now()
	_, err := m.client.Chat(ctx, &llm.ChatRequest{
		Model:     model,
		Messages:  []llm.Message{{Role: "user", Content: text}},
		MaxTokens: 1,
	})
	duration := time.Since(start)

	if err == nil {
		m.metrics.ObserveLLMRequest(model, "moderation", "success", duration)
		if prompt := llm.EstimateTokens(text); prompt > 0 {
			m.metrics.ObserveLLMTokens(model, prompt, 0, prompt)
		}
		return &Report{
			Flagged:        false,
			Categories:     emptyCategories(),
			CategoryScores: emptyScores(),
			Model:          model,
		}, nil
	}

	m.metrics.ObserveLLMRequest(model, "moderation", "error", duration)
	m.metrics.ObserveLLMError(model, "moderation", probeErrorLabel(err))

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
		cats := mapReasonsToCategories(refusalReasons(apiErr.Body))
		scores := make(map[string]float64, len(cats))
		for name, on := range cats {
			if on {
				scores[name] = 1.0
			} else {
				scores[name] = 0.0
			}
		}
		return &Report{
			Flagged:        true,
			Categories:     cats,
			CategoryScores: scores,
			Model:          model,
		}, nil
	}
	return nil, err
}

// modelName resolves the probe model, letting the environment override the
// configured one.
func (m *Moderator) modelName() string {
	if v := os.Getenv("MODERATION_MODEL"); v != "" {
		return v
	}
	return m.model
}

// refusalReasons pulls error.metadata.reasons out of a 403 body. Malformed
// bodies yield no reasons; the refusal itself still flags.
func refusalReasons(body string) []any {
	var payload struct {
		Error struct {
			Metadata struct {
				Reasons []any `json:"reasons"`
			} `json:"metadata"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil
	}
	return payload.Error.Metadata.Reasons
}

// mapReasonsToCategories translates provider refusal reasons into the fixed
// category set. Each reason sets at most one category; the checks are ordered
// so the most specific wording wins.
func mapReasonsToCategories(reasons []any) map[string]bool {
	cats := emptyCategories()
	for _, reason := range reasons {
		r := strings.ToLower(reasonString(reason))
		switch {
		case strings.Contains(r, "violence"):
			cats["violence"] = true
		case strings.Contains(r, "hate"):
			cats["hate"] = true
		case strings.Contains(r, "sexual"):
			cats["sexual"] = true
		case strings.Contains(r, "harass"):
			cats["harassment"] = true
		case strings.Contains(r, "self") && strings.Contains(r, "harm"):
			cats["self_harm"] = true
		}
	}
	return cats
}

func reasonString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func emptyCategories() map[string]bool {
	cats := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		cats[c] = false
	}
	return cats
}

func emptyScores() map[string]float64 {
	scores := make(map[string]float64, len(Categories))
	for _, c := range Categories {
		scores[c] = 0.0
	}
	return scores
}

// probeErrorLabel buckets a probe error into a low-cardinality metric label.
func probeErrorLabel(err error) string {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return "api_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network_error"
	}
	return "other"
}
