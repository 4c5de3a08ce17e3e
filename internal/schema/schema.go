// Package schema validates agent inputs against the strict per-variant field
// sets before any capability is invoked. Unknown fields are rejected, bounds
// are enforced, and mapping-typed fields are coerced from encoded strings.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Agent variant names understood by the planner and the execution engine.
const (
	Librarian  = "Librarian"
	Researcher = "Researcher"
	Summarizer = "Summarizer"
	Writer     = "Writer"
	Verifier   = "Verifier"
)

// AgentNames lists every valid agent variant in canonical order.
var AgentNames = []string{Librarian, Researcher, Summarizer, Writer, Verifier}

// IsKnownAgent reports whether name is one of the five agent variants.
func IsKnownAgent(name string) bool {
	for _, a := range AgentNames {
		if name == a {
			return true
		}
	}
	return false
}

// DefaultVerificationObjective is used when a plan omits the Verifier's
// verification_objective field.
const DefaultVerificationObjective = "Check for factual inaccuracies, unsupported claims, missing citations, and contradictions."

// Validate checks payload against the strict input schema for the agent
// variant and returns the typed input with defaults applied. It fails on
// unknown fields, missing required fields, out-of-range values and
// un-coercible types.
func Validate(agent string, payload map[string]any) (map[string]any, error) {
	switch agent {
	case Librarian:
		return validateLibrarian(payload)
	case Researcher:
		return validateResearcher(payload)
	case Summarizer:
		return validateSummarizer(payload)
	case Writer:
		return validateWriter(payload)
	case Verifier:
		return validateVerifier(payload)
	default:
		return nil, fmt.Errorf("unsupported agent: %s", agent)
	}
}

func validateLibrarian(p map[string]any) (map[string]any, error) {
	if err := rejectUnknown(Librarian, p, "intent_query"); err != nil {
		return nil, err
	}
	q, err := requireString(Librarian, p, "intent_query", 1, 5000)
	if err != nil {
		return nil, err
	}
	return map[string]any{"intent_query": q}, nil
}

func validateResearcher(p map[string]any) (map[string]any, error) {
	if err := rejectUnknown(Researcher, p, "topic_query", "top_k", "doc_id"); err != nil {
		return nil, err
	}
	q, err := requireString(Researcher, p, "topic_query", 1, 5000)
	if err != nil {
		return nil, err
	}
	topK, err := optionalInt(Researcher, p, "top_k", 1, 20, 6)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"topic_query": q, "top_k": topK}
	if docID, present, err := optionalString(Researcher, p, "doc_id", 200); err != nil {
		return nil, err
	} else if present {
		out["doc_id"] = docID
	}
	return out, nil
}

func validateSummarizer(p map[string]any) (map[string]any, error) {
	if err := rejectUnknown(Summarizer, p, "text_to_summarize", "max_words"); err != nil {
		return nil, err
	}
	text, err := requireString(Summarizer, p, "text_to_summarize", 1, 300000)
	if err != nil {
		return nil, err
	}
	maxWords, err := optionalInt(Summarizer, p, "max_words", 50, 2000, 300)
	if err != nil {
		return nil, err
	}
	return map[string]any{"text_to_summarize": text, "max_words": maxWords}, nil
}

func validateWriter(p map[string]any) (map[string]any, error) {
	if err := rejectUnknown(Writer, p, "blueprint_json", "facts", "style_notes"); err != nil {
		return nil, err
	}
	blueprint, err := requireMap(Writer, p, "blueprint_json")
	if err != nil {
		return nil, err
	}
	facts, err := requireMap(Writer, p, "facts")
	if err != nil {
		return nil, err
	}
	out := map[string]any{"blueprint_json": blueprint, "facts": facts}
	if notes, present, err := optionalString(Writer, p, "style_notes", 0); err != nil {
		return nil, err
	} else if present {
		out["style_notes"] = notes
	}
	return out, nil
}

func validateVerifier(p map[string]any) (map[string]any, error) {
	if err := rejectUnknown(Verifier, p, "draft", "reference", "verification_objective"); err != nil {
		return nil, err
	}
	draft, err := requireString(Verifier, p, "draft", 1, 200000)
	if err != nil {
		return nil, err
	}

	// The reference may be a prior Researcher output passed whole; the engine
	// formats mappings into an evidence string at dispatch.
	refVal, ok := p["reference"]
	if !ok || refVal == nil {
		return nil, fmt.Errorf("%s: missing required field %q", Verifier, "reference")
	}
	var reference any
	switch r := refVal.(type) {
	case string:
		if _, err := boundString(Verifier, "reference", r, 1, 50000); err != nil {
			return nil, err
		}
		reference = r
	case map[string]any:
		reference = r
	default:
		return nil, fmt.Errorf("%s: field %q must be a string or mapping, got %T", Verifier, "reference", refVal)
	}

	out := map[string]any{"draft": draft, "reference": reference}
	if obj, present, err := optionalString(Verifier, p, "verification_objective", 5000); err != nil {
		return nil, err
	} else if present {
		out["verification_objective"] = obj
	} else {
		out["verification_objective"] = DefaultVerificationObjective
	}
	return out, nil
}

func rejectUnknown(agent string, p map[string]any, allowed ...string) error {
	for k := range p {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%s: unknown field %q", agent, k)
		}
	}
	return nil
}

func requireString(agent string, p map[string]any, field string, min, max int) (string, error) {
	v, ok := p[field]
	if !ok || v == nil {
		return "", fmt.Errorf("%s: missing required field %q", agent, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: field %q must be a string, got %T", agent, field, v)
	}
	return boundString(agent, field, s, min, max)
}

// optionalString returns (value, present, error). A nil value counts as absent.
func optionalString(agent string, p map[string]any, field string, max int) (string, bool, error) {
	v, ok := p[field]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%s: field %q must be a string, got %T", agent, field, v)
	}
	if _, err := boundString(agent, field, s, 0, max); err != nil {
		return "", false, err
	}
	return s, true, nil
}

func boundString(agent, field, s string, min, max int) (string, error) {
	n := len([]rune(s))
	if n < min {
		return "", fmt.Errorf("%s: field %q must be at least %d character(s)", agent, field, min)
	}
	if max > 0 && n > max {
		return "", fmt.Errorf("%s: field %q exceeds %d characters", agent, field, max)
	}
	return s, nil
}

func optionalInt(agent string, p map[string]any, field string, min, max, def int) (int, error) {
	v, ok := p[field]
	if !ok || v == nil {
		return def, nil
	}
	n, err := coerceInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: field %q: %w", agent, field, err)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s: field %q must be between %d and %d", agent, field, min, max)
	}
	return n, nil
}

func coerceInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("expected an integer, got %v", t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func requireMap(agent string, p map[string]any, field string) (map[string]any, error) {
	v, ok := p[field]
	if !ok || v == nil {
		return nil, fmt.Errorf("%s: missing required field %q", agent, field)
	}
	m, err := CoerceMap(v)
	if err != nil {
		return nil, fmt.Errorf("%s: field %q: %w", agent, field, err)
	}
	return m, nil
}
