package moderation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is a local overlay on provider moderation. Blocked terms force a
// flag without spending a probe call; allow categories tolerate provider
// flags for corpora that legitimately discuss the material (violence in a
// military-history knowledge base, say). A zero policy changes nothing.
type Policy struct {
	BlockedTerms    []string `yaml:"blocked_terms"`
	AllowCategories []string `yaml:"allow_categories"`
}

// LoadPolicy reads a policy file. An empty path or a missing file yields the
// zero policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Policy{}, nil
		}
		return nil, fmt.Errorf("failed to read moderation policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse moderation policy: %w", err)
	}
	return &p, nil
}

// matchBlockedTerm returns the first configured term found in the text,
// case-insensitively, or "".
func (p *Policy) matchBlockedTerm(text string) string {
	if len(p.BlockedTerms) == 0 {
		return ""
	}
	lower := strings.ToLower(text)
	for _, term := range p.BlockedTerms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			return term
		}
	}
	return ""
}

// tolerates reports whether every flagged category is on the allow list. A
// refusal that names no category cannot be tolerated: there is nothing to
// allow.
func (p *Policy) tolerates(cats map[string]bool) bool {
	if len(p.AllowCategories) == 0 {
		return false
	}
	allowed := make(map[string]bool, len(p.AllowCategories))
	for _, c := range p.AllowCategories {
		allowed[strings.ToLower(strings.TrimSpace(c))] = true
	}

	flagged := false
	for name, on := range cats {
		if !on {
			continue
		}
		flagged = true
		if !allowed[name] {
			return false
		}
	}
	return flagged
}
