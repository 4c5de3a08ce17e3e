package ingest

import "testing"

func TestNormalizeWS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a\r\nb", "a\nb"},
		{"a\rb", "a\nb"},
		{"a \t  b", "a b"},
		{"a\n\n\n\nb", "a\n\nb"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeWS(tt.in); got != tt.want {
			t.Errorf("normalizeWS(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStableDocID(t *testing.T) {
	a := StableDocID([]byte("same bytes"))
	b := StableDocID([]byte("same bytes"))
	c := StableDocID([]byte("other bytes"))

	if a != b {
		t.Errorf("same bytes produced different ids: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different bytes produced the same id %q", a)
	}
	if len(a) != 40 {
		t.Errorf("id length = %d, want 40 hex chars", len(a))
	}
}

func TestRuneWindows(t *testing.T) {
	if got := headRunes("héllo", 2); got != "hé" {
		t.Errorf("headRunes = %q, want hé", got)
	}
	if got := tailRunes("héllo", 2); got != "lo" {
		t.Errorf("tailRunes = %q, want lo", got)
	}
	if got := headRunes("ab", 5); got != "ab" {
		t.Errorf("headRunes beyond length = %q, want ab", got)
	}
	if got := tailRunes("ab", 0); got != "" {
		t.Errorf("tailRunes zero = %q, want empty", got)
	}
}
