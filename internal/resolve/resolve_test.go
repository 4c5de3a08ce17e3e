package resolve

import (
	"reflect"
	"testing"
)

func TestResolveExactMatchPreservesType(t *testing.T) {
	state := map[string]any{
		"STEP_1_OUTPUT": map[string]any{"purpose": "inform", "tone": "neutral"},
	}
	got := Resolve("$$STEP_1_OUTPUT$$", state)
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if m["purpose"] != "inform" {
		t.Errorf("purpose = %v", m["purpose"])
	}
}

func TestResolveFieldPath(t *testing.T) {
	state := map[string]any{
		"STEP_1_OUTPUT": map[string]any{"purpose": "inform", "count": float64(3)},
	}
	if got := Resolve("$$STEP_1_OUTPUT$$.purpose", state); got != "inform" {
		t.Errorf("field path = %v, want inform", got)
	}
	// The form planners actually emit, with the dot inside the token.
	if got := Resolve("$$STEP_1_OUTPUT.purpose$$", state); got != "inform" {
		t.Errorf("inner field path = %v, want inform", got)
	}
	// Non-string field values keep their type.
	if got := Resolve("$$STEP_1_OUTPUT$$.count", state); got != float64(3) {
		t.Errorf("count = %v (%T)", got, got)
	}
}

func TestResolveFieldPathMissFallsThrough(t *testing.T) {
	// A missing field falls through to substring substitution, leaving the
	// field suffix attached to the stringified value.
	state := map[string]any{"STEP_1_OUTPUT": "hello"}
	got := Resolve("$$STEP_1_OUTPUT$$.purpose", state)
	if got != "hello.purpose" {
		t.Errorf("got %v, want hello.purpose", got)
	}
}

func TestResolveSubstring(t *testing.T) {
	state := map[string]any{"DOC_ID": "doc-42"}
	got := Resolve("Summarize document $$DOC_ID$$ briefly", state)
	if got != "Summarize document doc-42 briefly" {
		t.Errorf("got %v", got)
	}
}

func TestResolveMultiplePlaceholders(t *testing.T) {
	state := map[string]any{
		"STEP_1_OUTPUT": "alpha",
		"STEP_2_OUTPUT": "beta",
	}
	got := Resolve("$$STEP_1_OUTPUT$$ then $$STEP_2_OUTPUT$$", state)
	if got != "alpha then beta" {
		t.Errorf("got %v", got)
	}
}

func TestResolveNestedStructures(t *testing.T) {
	state := map[string]any{"STEP_1_OUTPUT": map[string]any{"answer": "42"}}
	in := map[string]any{
		"facts": "$$STEP_1_OUTPUT$$",
		"meta": []any{
			"$$STEP_1_OUTPUT$$.answer",
			float64(7),
			true,
		},
	}
	got := Resolve(in, state).(map[string]any)

	facts, ok := got["facts"].(map[string]any)
	if !ok || facts["answer"] != "42" {
		t.Errorf("facts = %v", got["facts"])
	}
	meta := got["meta"].([]any)
	if meta[0] != "42" {
		t.Errorf("meta[0] = %v", meta[0])
	}
	if meta[1] != float64(7) || meta[2] != true {
		t.Errorf("non-string leaves changed: %v", meta)
	}
}

func TestResolveNonStringLeavesUnchanged(t *testing.T) {
	state := map[string]any{"STEP_1_OUTPUT": "x"}
	for _, v := range []any{float64(1), true, nil} {
		if got := Resolve(v, state); !reflect.DeepEqual(got, v) {
			t.Errorf("Resolve(%v) = %v", v, got)
		}
	}
}

func TestResolveUnknownPlaceholderUntouched(t *testing.T) {
	got := Resolve("$$STEP_9_OUTPUT$$", map[string]any{"STEP_1_OUTPUT": "x"})
	if got != "$$STEP_9_OUTPUT$$" {
		t.Errorf("got %v", got)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: "plain", want: "plain"},
		{in: float64(42), want: "42"},
		{in: true, want: "true"},
		{in: nil, want: ""},
		{in: map[string]any{"a": float64(1)}, want: `{"a":1}`},
		{in: []any{"x"}, want: `["x"]`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
