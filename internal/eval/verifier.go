package eval

import (
	"fmt"
	"strings"

	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/trace"
)

// verify checks the run result against the case's assertions and returns
// one message per failed check.
func verify(expected Assertions, run *engine.Result) []string {
	var errors []string

	wantStatus := expected.Status
	if wantStatus == "" {
		wantStatus = trace.StatusOK
	}
	gotStatus := ""
	if run.Trace != nil {
		gotStatus = run.Trace.Status
	}
	if gotStatus != wantStatus {
		errors = append(errors, fmt.Sprintf("status: expected %q, got %q", wantStatus, gotStatus))
	}

	lower := strings.ToLower(run.Output)
	for _, want := range expected.Contains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			errors = append(errors, fmt.Sprintf("output does not contain %q", want))
		}
	}
	for _, forbidden := range expected.NotContains {
		if strings.Contains(lower, strings.ToLower(forbidden)) {
			errors = append(errors, fmt.Sprintf("output contains forbidden %q", forbidden))
		}
	}

	if expected.MinOutputChars > 0 && len(run.Output) < expected.MinOutputChars {
		errors = append(errors, fmt.Sprintf("output too short: %d chars, expected at least %d", len(run.Output), expected.MinOutputChars))
	}

	if len(expected.Agents) > 0 {
		got := executedAgents(run)
		if !equalStrings(got, expected.Agents) {
			errors = append(errors, fmt.Sprintf("agent sequence: expected %v, got %v", expected.Agents, got))
		}
	}

	return errors
}

func executedAgents(run *engine.Result) []string {
	if run.Trace == nil {
		return nil
	}
	agents := make([]string, 0, len(run.Trace.Steps))
	for _, step := range run.Trace.Steps {
		agents = append(agents, step.Agent)
	}
	return agents
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
