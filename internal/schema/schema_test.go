package schema

import (
	"strings"
	"testing"
)

func TestValidateLibrarian(t *testing.T) {
	out, err := Validate(Librarian, map[string]any{"intent_query": "write a summary"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out["intent_query"] != "write a summary" {
		t.Errorf("intent_query = %v", out["intent_query"])
	}

	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"missing required", map[string]any{}},
		{"unknown field", map[string]any{"intent_query": "x", "extra": 1}},
		{"wrong type", map[string]any{"intent_query": 42}},
		{"empty string", map[string]any{"intent_query": ""}},
		{"too long", map[string]any{"intent_query": strings.Repeat("a", 5001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Validate(Librarian, tc.payload); err == nil {
				t.Errorf("expected error for %v", tc.payload)
			}
		})
	}
}

func TestValidateResearcherDefaults(t *testing.T) {
	out, err := Validate(Researcher, map[string]any{"topic_query": "solar panels"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out["top_k"] != 6 {
		t.Errorf("top_k default = %v, want 6", out["top_k"])
	}
	if _, ok := out["doc_id"]; ok {
		t.Errorf("doc_id should be absent when not provided")
	}
}

func TestValidateResearcherBounds(t *testing.T) {
	// JSON numbers arrive as float64; integral values must coerce.
	out, err := Validate(Researcher, map[string]any{"topic_query": "q", "top_k": float64(10)})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out["top_k"] != 10 {
		t.Errorf("top_k = %v, want 10", out["top_k"])
	}

	if _, err := Validate(Researcher, map[string]any{"topic_query": "q", "top_k": 21}); err == nil {
		t.Errorf("top_k over range should fail")
	}
	if _, err := Validate(Researcher, map[string]any{"topic_query": "q", "top_k": 0}); err == nil {
		t.Errorf("top_k under range should fail")
	}
	if _, err := Validate(Researcher, map[string]any{"topic_query": "q", "top_k": 2.5}); err == nil {
		t.Errorf("fractional top_k should fail")
	}
	if _, err := Validate(Researcher, map[string]any{"topic_query": "q", "doc_id": strings.Repeat("d", 201)}); err == nil {
		t.Errorf("doc_id over 200 chars should fail")
	}
}

func TestValidateSummarizer(t *testing.T) {
	out, err := Validate(Summarizer, map[string]any{"text_to_summarize": "some text"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out["max_words"] != 300 {
		t.Errorf("max_words default = %v, want 300", out["max_words"])
	}

	if _, err := Validate(Summarizer, map[string]any{"text_to_summarize": "t", "max_words": 49}); err == nil {
		t.Errorf("max_words under 50 should fail")
	}
	if _, err := Validate(Summarizer, map[string]any{"text_to_summarize": "t", "max_words": 2001}); err == nil {
		t.Errorf("max_words over 2000 should fail")
	}
}

func TestValidateWriterCoercion(t *testing.T) {
	tests := []struct {
		name      string
		blueprint any
	}{
		{"native map", map[string]any{"purpose": "inform"}},
		{"json string", `{"purpose": "inform"}`},
		{"python literal", `{'purpose': 'inform', 'nested': {'n': 1}, 'flags': [True, False, None]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Validate(Writer, map[string]any{
				"blueprint_json": tt.blueprint,
				"facts":          map[string]any{"answer": "42"},
			})
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			bp, ok := out["blueprint_json"].(map[string]any)
			if !ok {
				t.Fatalf("blueprint_json type %T", out["blueprint_json"])
			}
			if bp["purpose"] != "inform" {
				t.Errorf("purpose = %v", bp["purpose"])
			}
		})
	}

	if _, err := Validate(Writer, map[string]any{"blueprint_json": "not a dict", "facts": map[string]any{}}); err == nil {
		t.Errorf("un-coercible blueprint should fail")
	}
	if _, err := Validate(Writer, map[string]any{"blueprint_json": map[string]any{}, "facts": 7}); err == nil {
		t.Errorf("numeric facts should fail")
	}
	if _, err := Validate(Writer, map[string]any{"facts": map[string]any{}}); err == nil {
		t.Errorf("missing blueprint_json should fail")
	}
}

func TestValidateVerifier(t *testing.T) {
	out, err := Validate(Verifier, map[string]any{"draft": "text", "reference": "evidence"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out["verification_objective"] != DefaultVerificationObjective {
		t.Errorf("objective default = %v", out["verification_objective"])
	}

	// A whole Researcher output may be passed as the reference.
	out, err = Validate(Verifier, map[string]any{
		"draft":     "text",
		"reference": map[string]any{"answer": "a", "evidence": []any{}},
	})
	if err != nil {
		t.Fatalf("Validate with mapping reference: %v", err)
	}
	if _, ok := out["reference"].(map[string]any); !ok {
		t.Errorf("mapping reference should be preserved, got %T", out["reference"])
	}

	if _, err := Validate(Verifier, map[string]any{"reference": "r"}); err == nil {
		t.Errorf("missing draft should fail")
	}
	if _, err := Validate(Verifier, map[string]any{"draft": "d", "reference": strings.Repeat("r", 50001)}); err == nil {
		t.Errorf("reference over 50000 chars should fail")
	}
	if _, err := Validate(Verifier, map[string]any{"draft": "d", "reference": 9}); err == nil {
		t.Errorf("numeric reference should fail")
	}
}

func TestValidateUnknownAgent(t *testing.T) {
	if _, err := Validate("Oracle", map[string]any{}); err == nil {
		t.Errorf("unknown agent should fail")
	}
}

func TestCoerceMap(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		wantKey string
		wantErr bool
	}{
		{name: "map", in: map[string]any{"k": 1}, wantKey: "k"},
		{name: "json", in: `{"k": "v"}`, wantKey: "k"},
		{name: "single quotes", in: `{'k': 'it\'s fine'}`, wantKey: "k"},
		{name: "trailing comma", in: `{'k': 1,}`, wantKey: "k"},
		{name: "json null", in: `null`, wantErr: true},
		{name: "list", in: `[1, 2]`, wantErr: true},
		{name: "number", in: 3, wantErr: true},
		{name: "garbage", in: `{'k': }`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CoerceMap(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", m)
				}
				return
			}
			if err != nil {
				t.Fatalf("CoerceMap: %v", err)
			}
			if _, ok := m[tt.wantKey]; !ok {
				t.Errorf("missing key %q in %v", tt.wantKey, m)
			}
		})
	}
}

func TestParseLiteralValues(t *testing.T) {
	m, err := CoerceMap(`{'s': 'a', 'n': -2.5, 'e': 1e3, 'b': True, 'f': False, 'z': None, 'l': ['x', 2], 'd': {'inner': 'y'}}`)
	if err != nil {
		t.Fatalf("CoerceMap: %v", err)
	}
	if m["s"] != "a" {
		t.Errorf("s = %v", m["s"])
	}
	if m["n"] != -2.5 {
		t.Errorf("n = %v", m["n"])
	}
	if m["e"] != 1000.0 {
		t.Errorf("e = %v", m["e"])
	}
	if m["b"] != true || m["f"] != false {
		t.Errorf("booleans = %v %v", m["b"], m["f"])
	}
	if m["z"] != nil {
		t.Errorf("z = %v", m["z"])
	}
	l, ok := m["l"].([]any)
	if !ok || len(l) != 2 || l[0] != "x" {
		t.Errorf("l = %v", m["l"])
	}
	d, ok := m["d"].(map[string]any)
	if !ok || d["inner"] != "y" {
		t.Errorf("d = %v", m["d"])
	}
}
