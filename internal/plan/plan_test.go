package plan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/igoryan-dao/quill/internal/llm"
)

type mockClient struct {
	responses []string
	requests  []*llm.ChatRequest
	err       error
}

func (m *mockClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	i := len(m.requests) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return &llm.ChatResponse{Content: m.responses[i]}, nil
}

func (m *mockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (m *mockClient) Name() string { return "mock" }

func TestFromObject(t *testing.T) {
	obj := map[string]any{
		"plan": []any{
			map[string]any{"step": float64(1), "agent": "Librarian", "input": map[string]any{"intent_query": "q"}},
			map[string]any{"step": float64(2), "agent": "Writer"},
		},
	}
	p, err := FromObject(obj)
	if err != nil {
		t.Fatalf("FromObject: %v", err)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("steps = %d", len(p.Steps))
	}
	if p.Steps[0].Agent != "Librarian" || p.Steps[0].Step != 1 {
		t.Errorf("step 0 = %+v", p.Steps[0])
	}
	if p.Steps[1].Input == nil || len(p.Steps[1].Input) != 0 {
		t.Errorf("missing input should default to empty map, got %v", p.Steps[1].Input)
	}
}

func TestFromObjectRejects(t *testing.T) {
	cases := []struct {
		name string
		obj  map[string]any
	}{
		{"extra top-level key", map[string]any{"plan": []any{}, "notes": "x"}},
		{"missing plan", map[string]any{}},
		{"plan not a list", map[string]any{"plan": "Librarian"}},
		{"unknown step field", map[string]any{"plan": []any{
			map[string]any{"step": float64(1), "agent": "Writer", "why": "because"},
		}}},
		{"unknown agent", map[string]any{"plan": []any{
			map[string]any{"step": float64(1), "agent": "Oracle"},
		}}},
		{"fractional step", map[string]any{"plan": []any{
			map[string]any{"step": 1.5, "agent": "Writer"},
		}}},
		{"zero step", map[string]any{"plan": []any{
			map[string]any{"step": float64(0), "agent": "Writer"},
		}}},
		{"string input", map[string]any{"plan": []any{
			map[string]any{"step": float64(1), "agent": "Writer", "input": "{}"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromObject(tc.obj); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestValidateShape(t *testing.T) {
	mk := func(nums ...int) *Plan {
		p := &Plan{}
		for _, n := range nums {
			p.Steps = append(p.Steps, Step{Step: n, Agent: "Writer", Input: map[string]any{}})
		}
		return p
	}

	if err := ValidateShape(mk(1, 2, 3), 6); err != nil {
		t.Errorf("valid plan rejected: %v", err)
	}

	err := ValidateShape(mk(), 6)
	if err == nil || err.Error() != "Plan must include at least one step" {
		t.Errorf("empty plan error = %v", err)
	}

	err = ValidateShape(mk(1, 2, 3, 4, 5, 6, 7), 6)
	if err == nil || err.Error() != "Plan too long: 7 > 6" {
		t.Errorf("too-long error = %v", err)
	}

	err = ValidateShape(mk(1, 3), 6)
	if err == nil || err.Error() != "Plan steps must be sequential starting at 1 (expected 2, got 3)" {
		t.Errorf("gap error = %v", err)
	}

	err = ValidateShape(mk(2, 3), 6)
	if err == nil || !strings.Contains(err.Error(), "expected 1, got 2") {
		t.Errorf("offset error = %v", err)
	}
}

const validPlanJSON = `{"plan": [
	{"step": 1, "agent": "Librarian", "input": {"intent_query": "summarize"}},
	{"step": 2, "agent": "Researcher", "input": {"topic_query": "solar", "top_k": 5}},
	{"step": 3, "agent": "Writer", "input": {"blueprint_json": "$$STEP_1_OUTPUT$$", "facts": "$$STEP_2_OUTPUT$$"}}
]}`

func TestPlannerHappyPath(t *testing.T) {
	client := &mockClient{responses: []string{validPlanJSON}}
	p := NewPlanner(client, Config{Model: "gpt-4o-mini", MaxSteps: 6, MaxInputChars: 12000, MaxTokensPerCall: 1500})

	got, err := p.Plan(context.Background(), "Summarize the solar report")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("steps = %d", len(got.Steps))
	}
	if len(client.requests) != 1 {
		t.Errorf("calls = %d, want 1", len(client.requests))
	}
	req := client.requests[0]
	if !req.JSONMode {
		t.Errorf("planner should request JSON mode")
	}
	if req.MaxTokens != 900 {
		t.Errorf("max tokens = %d, want 900", req.MaxTokens)
	}
	if !strings.Contains(req.SystemPrompt, "Max steps: 6") {
		t.Errorf("system prompt missing step cap")
	}
}

func TestPlannerRepairPass(t *testing.T) {
	client := &mockClient{responses: []string{"not json at all", validPlanJSON}}
	p := NewPlanner(client, Config{Model: "m", MaxSteps: 6, MaxInputChars: 12000})

	got, err := p.Plan(context.Background(), "goal")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(got.Steps) != 3 {
		t.Errorf("steps = %d", len(got.Steps))
	}
	if len(client.requests) != 2 {
		t.Fatalf("calls = %d, want 2", len(client.requests))
	}
	repair := client.requests[1]
	if !strings.Contains(repair.Messages[0].Content, "Broken JSON:") {
		t.Errorf("repair prompt missing broken payload: %q", repair.Messages[0].Content)
	}
	if repair.Temperature != 0.0 {
		t.Errorf("repair temperature = %v, want 0", repair.Temperature)
	}
}

func TestPlannerRepairFailure(t *testing.T) {
	client := &mockClient{responses: []string{`{"plan": []}`, "still broken"}}
	p := NewPlanner(client, Config{Model: "m", MaxSteps: 6, MaxInputChars: 12000})

	if _, err := p.Plan(context.Background(), "goal"); err == nil {
		t.Fatalf("expected error after failed repair")
	}
	if len(client.requests) != 2 {
		t.Errorf("calls = %d, want exactly 2 (no further retries)", len(client.requests))
	}
}

func TestPlannerCallFailure(t *testing.T) {
	client := &mockClient{err: errors.New("provider down")}
	p := NewPlanner(client, Config{Model: "m", MaxSteps: 6, MaxInputChars: 12000})

	if _, err := p.Plan(context.Background(), "goal"); err == nil {
		t.Fatalf("expected error")
	}
	if len(client.requests) != 1 {
		t.Errorf("calls = %d, want 1 (no repair for transport failure)", len(client.requests))
	}
}
