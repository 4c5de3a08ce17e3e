// Package textutil holds small text helpers shared by the planner, engine,
// retrieval and ingestion: length clamping, lexical tokenization and
// untrusted-content handling.
package textutil

import (
	"regexp"
	"strings"
)

// TruncationMarker is appended whenever Clamp cuts a string.
const TruncationMarker = "\n...[TRUNCATED]"

// Clamp truncates s to maxChars characters, appending a truncation marker
// when anything was cut.
func Clamp(s string, maxChars int) string {
	if maxChars < 0 {
		maxChars = 0
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars]) + TruncationMarker
}

var wordRE = regexp.MustCompile(`[A-Za-z0-9]+`)

// Tokenize lowercases and splits text into alphanumeric words of three or
// more characters. Retrieval scoring and BM25 statistics share this
// tokenizer so query vectors line up with indexed documents.
func Tokenize(text string) []string {
	words := wordRE.FindAllString(text, -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= 3 {
			out = append(out, strings.ToLower(w))
		}
	}
	return out
}

// LexicalOverlapScore is a simple overlap score in [0,1]:
// |tokens(query) ∩ tokens(text)| / |tokens(query)|.
func LexicalOverlapScore(query, text string) float64 {
	q := tokenSet(query)
	if len(q) == 0 {
		return 0
	}
	t := tokenSet(text)
	n := 0
	for w := range q {
		if _, ok := t[w]; ok {
			n++
		}
	}
	return float64(n) / float64(len(q))
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range Tokenize(text) {
		set[w] = struct{}{}
	}
	return set
}

// BoxUntrusted puts untrusted content in a delimited block; models should
// treat it as data only. Use when injecting retrieved chunks or uploaded
// document snippets into prompts.
func BoxUntrusted(text string) string {
	return "<UNTRUSTED_DATA>\n" + text + "\n</UNTRUSTED_DATA>"
}

var injectionRE = regexp.MustCompile(`(?i)` +
	`ignore (all|any|previous) instructions` +
	`|system prompt` +
	`|developer message` +
	`|reveal (the )?prompt` +
	`|exfiltrate` +
	`|do not follow` +
	`|jailbreak` +
	`|you are now` +
	`|BEGIN SYSTEM PROMPT` +
	`|###\s*SYSTEM`)

// SanitizeUntrusted flags suspicious content without altering it. Cleaning
// is lossy and dangerous; callers decide whether to drop flagged chunks.
func SanitizeUntrusted(text string) (string, []string) {
	var flags []string
	if injectionRE.MatchString(text) {
		flags = append(flags, "possible_prompt_injection")
	}
	return text, flags
}
