// Package eval runs golden question-answering cases against the full
// pipeline and checks the outputs. It is the regression harness for prompt
// and retrieval changes that unit tests cannot catch.
package eval

import (
	"time"
)

// TestCase defines a single evaluation scenario
type TestCase struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Goal        string     `json:"goal"`
	DocID       string     `json:"doc_id,omitempty"`
	Fixtures    []Fixture  `json:"fixtures,omitempty"`
	Expected    Assertions `json:"expected"`
}

// Fixture is a document ingested into the knowledge store before the run.
type Fixture struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Assertions are checks to run after the pipeline finishes
type Assertions struct {
	Contains    []string `json:"contains,omitempty"`
	NotContains []string `json:"not_contains,omitempty"`
	// Status is ok, blocked or error; empty means ok.
	Status string `json:"status,omitempty"`
	// Agents is the exact agent sequence the run must have executed.
	Agents []string `json:"agents,omitempty"`
	// MinOutputChars rejects degenerate one-liner answers.
	MinOutputChars int `json:"min_output_chars,omitempty"`
}

// Result represents the outcome of a test case
type Result struct {
	TestCaseID string        `json:"test_case_id"`
	Success    bool          `json:"success"`
	TraceID    string        `json:"trace_id,omitempty"`
	Status     string        `json:"status,omitempty"`
	Duration   time.Duration `json:"duration"`
	Errors     []string      `json:"errors,omitempty"`
}

// Summary is a collection of results
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Results  []Result      `json:"results"`
}
