// Package trace records the structured execution log of one engine run: the
// validated plan, a snapshot per completed step and a terminal status.
package trace

import (
	"encoding/json"
	"fmt"
	"time"
)

// Run statuses. running is the only non-terminal state.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusBlocked = "blocked"
	StatusError   = "error"
)

// snapshotLimit bounds serialized step payloads kept in the trace.
const snapshotLimit = 4000

// StepRecord is the snapshot of one completed step.
type StepRecord struct {
	Step     int     `json:"step"`
	Agent    string  `json:"agent"`
	Input    any     `json:"input"`
	Output   any     `json:"output"`
	Duration float64 `json:"duration_s"`
}

// Trace is the execution log for a single run. It is owned by one goroutine
// for the lifetime of the run and finalized exactly once.
type Trace struct {
	TraceID   string       `json:"trace_id"`
	StartedAt float64      `json:"started_at"`
	EndedAt   *float64     `json:"ended_at"`
	Status    string       `json:"status"`
	Error     *string      `json:"error"`
	Plan      any          `json:"plan"`
	Steps     []StepRecord `json:"steps"`
}

// New starts a running trace with the given id.
func New(traceID string) *Trace {
	return &Trace{
		TraceID:   traceID,
		StartedAt: nowUnix(),
		Status:    StatusRunning,
		Steps:     []StepRecord{},
	}
}

// AddStep appends one completed step. Payloads are snapshotted: anything that
// serializes past the snapshot limit is replaced by a size-only placeholder.
func (t *Trace) AddStep(step int, agent string, input, output any, duration time.Duration) {
	t.Steps = append(t.Steps, StepRecord{
		Step:     step,
		Agent:    agent,
		Input:    Snapshot(input),
		Output:   Snapshot(output),
		Duration: duration.Seconds(),
	})
}

// Finalize sets the terminal status and the end timestamp.
func (t *Trace) Finalize(status string, errMsg string) {
	t.Status = status
	if errMsg != "" {
		t.Error = &errMsg
	}
	end := nowUnix()
	t.EndedAt = &end
}

// TotalDuration is the elapsed run time in seconds, up to now for a trace
// that has not ended.
func (t *Trace) TotalDuration() float64 {
	if t.EndedAt != nil {
		return *t.EndedAt - t.StartedAt
	}
	return nowUnix() - t.StartedAt
}

// MarshalJSON includes the computed total duration alongside the fields.
func (t *Trace) MarshalJSON() ([]byte, error) {
	type plain Trace
	return json.Marshal(struct {
		*plain
		TotalDuration float64 `json:"total_duration_s"`
	}{(*plain)(t), t.TotalDuration()})
}

// Snapshot keeps structure and size without logging huge prompts or
// documents: values serializing past the limit collapse to
// {"_type": ..., "_note": "truncated", "_len": n}.
func Snapshot(x any) any {
	b, err := json.Marshal(x)
	if err != nil {
		return map[string]any{"_type": fmt.Sprintf("%T", x)}
	}
	if len(b) > snapshotLimit {
		return map[string]any{
			"_type": fmt.Sprintf("%T", x),
			"_note": "truncated",
			"_len":  len(b),
		}
	}
	return x
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
