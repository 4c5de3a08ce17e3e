package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/igoryan-dao/quill/internal/llm"
	"github.com/igoryan-dao/quill/internal/textutil"
)

// Config bounds the planner's inputs and LLM calls.
type Config struct {
	Model            string
	MaxSteps         int
	MaxInputChars    int
	MaxTokensPerCall int
	RequestTimeout   time.Duration
}

// Planner turns a free-text goal into a validated Plan by prompting an LLM
// for JSON and self-repairing once on parse or shape failure.
type Planner struct {
	client llm.Client
	cfg    Config
}

// NewPlanner returns a Planner backed by client.
func NewPlanner(client llm.Client, cfg Config) *Planner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 6
	}
	if cfg.MaxTokensPerCall <= 0 {
		cfg.MaxTokensPerCall = 1500
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Planner{client: client, cfg: cfg}
}

func (p *Planner) systemPrompt() string {
	return "You are a planning system that outputs ONLY valid JSON.\n" +
		"You must produce a plan for a document Q&A pipeline using these agents:\n" +
		"- Librarian: input {intent_query} -> output dict with {purpose, tone, format, constraints}\n" +
		"- Researcher: input {topic_query, top_k, doc_id?} -> output dict with {answer, evidence, claims}\n" +
		"- Summarizer: input {text_to_summarize, max_words} -> output dict with {summary}\n" +
		"- Writer: input {blueprint_json, facts, style_notes} -> output dict with {draft}\n" +
		"- Verifier: input {draft, reference, verification_objective?} -> output dict with {verified_draft, is_valid, issues, suggestions}\n" +
		"  reference should be the Researcher output dict (containing answer, evidence, claims) - the agent will format it internally.\n\n" +
		"Rules:\n" +
		fmt.Sprintf("- Max steps: %d\n", p.cfg.MaxSteps) +
		"- Output JSON schema: {\"plan\": [{\"step\": 1, \"agent\": \"...\", \"input\": {...}}, ...]}\n" +
		"- Use placeholders to reference prior outputs: $$STEP_1_OUTPUT$$ refers to the entire output dict.\n" +
		"- To extract a field from prior output, use: $$STEP_1_OUTPUT.fieldname$$ or just $$STEP_1_OUTPUT$$ if passing the whole dict.\n" +
		"- IMPORTANT: topic_query for Researcher MUST be a STRING (the user question or search topic), NOT a dict.\n" +
		"- For Writer: blueprint_json=$$STEP_1_OUTPUT$$ passes the entire Librarian blueprint dict.\n" +
		"- Keep inputs minimal and properly typed.\n" +
		"- Typical flow: Librarian -> Researcher -> Writer -> Verifier.\n" +
		"- Use Summarizer only if you have a long draft or long references.\n"
}

func userPrompt(goal string) string {
	return "Goal:\n" + goal + "\n\n" +
		"Create a plan that:\n" +
		"1) Gets a blueprint (Librarian)\n" +
		"2) Retrieves evidence (Researcher)\n" +
		"3) Writes final output (Writer)\n" +
		"4) Verifies the draft vs evidence (Verifier)\n" +
		"If the verifier needs changes, it should produce a suggested revision.\n"
}

// Plan produces a validated Plan for goal. The goal is length-clamped before
// use. On parse or shape failure it issues exactly one repair call with the
// broken output and the error; a second failure propagates to the caller.
func (p *Planner) Plan(ctx context.Context, goal string) (*Plan, error) {
	goal = textutil.Clamp(goal, p.cfg.MaxInputChars)

	maxTokens := p.cfg.MaxTokensPerCall
	if maxTokens > 900 {
		maxTokens = 900
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	resp, err := p.client.Chat(callCtx, &llm.ChatRequest{
		Model:        p.cfg.Model,
		SystemPrompt: p.systemPrompt(),
		Messages:     []llm.Message{{Role: "user", Content: userPrompt(goal)}},
		MaxTokens:    maxTokens,
		Temperature:  0.1,
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("planner call: %w", err)
	}

	validated, parseErr := p.parse(resp.Content)
	if parseErr == nil {
		return validated, nil
	}
	return p.repair(ctx, resp.Content, parseErr, maxTokens)
}

func (p *Planner) parse(raw string) (*Plan, error) {
	obj, err := llm.DecodeJSONObject(raw)
	if err != nil {
		return nil, err
	}
	pl, err := FromObject(obj)
	if err != nil {
		return nil, err
	}
	if err := ValidateShape(pl, p.cfg.MaxSteps); err != nil {
		return nil, err
	}
	return pl, nil
}

func (p *Planner) repair(ctx context.Context, broken string, cause error, maxTokens int) (*Plan, error) {
	system := "You repair JSON to match the schema strictly.\n" +
		"Return ONLY valid JSON for the schema: {\"plan\": [ {\"step\": int, \"agent\": str, \"input\": object} ] }.\n"
	user := fmt.Sprintf("Broken JSON:\n%s\n\nError: %s\n\nReturn repaired JSON only.", broken, cause)

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	resp, err := p.client.Chat(callCtx, &llm.ChatRequest{
		Model:        p.cfg.Model,
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
		MaxTokens:    maxTokens,
		Temperature:  0.0,
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("planner repair call: %w", err)
	}
	return p.parse(resp.Content)
}
