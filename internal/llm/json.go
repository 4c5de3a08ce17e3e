package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripJSONFences removes a surrounding markdown code fence from model output.
// Models in JSON mode occasionally still wrap the object in ```json ... ```.
func StripJSONFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// Drop an optional language tag (json, yaml, ...).
	i := 0
	for i < len(t) && (isAlnum(t[i]) || t[i] == '_' || t[i] == '-') {
		i++
	}
	t = strings.TrimLeft(t[i:], " \t\r\n")
	t = strings.TrimRight(t, " \t\r\n")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// DecodeJSONObject parses a JSON object out of model output after stripping
// code fences. Anything other than a single valid object is an error; callers
// are expected to fall back or repair rather than guess.
func DecodeJSONObject(text string) (map[string]any, error) {
	t := StripJSONFences(text)
	if t == "" {
		return nil, fmt.Errorf("empty response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(t), &obj); err != nil {
		return nil, fmt.Errorf("parse JSON object: %w", err)
	}
	return obj, nil
}
