// Package plan defines the execution plan produced by the planner: an
// ordered, bounded sequence of agent steps with structured inputs.
package plan

import (
	"errors"
	"fmt"

	"github.com/igoryan-dao/quill/internal/schema"
)

// Step is one plan entry: a 1-based position, an agent variant name and the
// structured input for that agent. Input values may contain placeholder
// strings referencing prior step outputs.
type Step struct {
	Step  int            `json:"step"`
	Agent string         `json:"agent"`
	Input map[string]any `json:"input"`
}

// Plan is the ordered sequence of steps for one engine run. Immutable once
// validated.
type Plan struct {
	Steps []Step `json:"plan"`
}

// FromObject builds a Plan from a decoded model response, enforcing the
// strict shape: only a "plan" key at the top level, only step/agent/input
// per entry, positive integer steps and known agent names.
func FromObject(obj map[string]any) (*Plan, error) {
	for k := range obj {
		if k != "plan" {
			return nil, fmt.Errorf("unknown field %q in plan object", k)
		}
	}
	rawList, ok := obj["plan"]
	if !ok {
		return nil, errors.New("missing \"plan\" field")
	}
	list, ok := rawList.([]any)
	if !ok {
		return nil, fmt.Errorf("\"plan\" must be a list, got %T", rawList)
	}

	p := &Plan{Steps: make([]Step, 0, len(list))}
	for i, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("plan[%d] must be an object, got %T", i, raw)
		}
		step, err := stepFromObject(i, entry)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

func stepFromObject(i int, entry map[string]any) (Step, error) {
	for k := range entry {
		switch k {
		case "step", "agent", "input":
		default:
			return Step{}, fmt.Errorf("plan[%d]: unknown field %q", i, k)
		}
	}

	var s Step

	num, ok := entry["step"]
	if !ok {
		return Step{}, fmt.Errorf("plan[%d]: missing \"step\"", i)
	}
	switch n := num.(type) {
	case float64:
		if n != float64(int(n)) {
			return Step{}, fmt.Errorf("plan[%d]: \"step\" must be an integer, got %v", i, n)
		}
		s.Step = int(n)
	case int:
		s.Step = n
	default:
		return Step{}, fmt.Errorf("plan[%d]: \"step\" must be an integer, got %T", i, num)
	}
	if s.Step < 1 {
		return Step{}, fmt.Errorf("plan[%d]: \"step\" must be >= 1, got %d", i, s.Step)
	}

	agent, ok := entry["agent"].(string)
	if !ok {
		return Step{}, fmt.Errorf("plan[%d]: missing or non-string \"agent\"", i)
	}
	if !schema.IsKnownAgent(agent) {
		return Step{}, fmt.Errorf("plan[%d]: unknown agent %q", i, agent)
	}
	s.Agent = agent

	if raw, ok := entry["input"]; ok && raw != nil {
		input, ok := raw.(map[string]any)
		if !ok {
			return Step{}, fmt.Errorf("plan[%d]: \"input\" must be an object, got %T", i, raw)
		}
		s.Input = input
	} else {
		s.Input = map[string]any{}
	}
	return s, nil
}

// ValidateShape enforces the plan invariants: non-empty, at most maxSteps
// entries, step numbers strictly sequential starting at 1.
func ValidateShape(p *Plan, maxSteps int) error {
	if len(p.Steps) == 0 {
		return errors.New("Plan must include at least one step")
	}
	if len(p.Steps) > maxSteps {
		return fmt.Errorf("Plan too long: %d > %d", len(p.Steps), maxSteps)
	}
	expected := 1
	for _, s := range p.Steps {
		if s.Step != expected {
			return fmt.Errorf("Plan steps must be sequential starting at 1 (expected %d, got %d)", expected, s.Step)
		}
		expected++
	}
	return nil
}
