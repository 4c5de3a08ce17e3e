// Package engine runs one planned pipeline end to end: moderation gates,
// planning, placeholder resolution, per-step validation and dispatch, and
// the execution trace. A run always terminates in exactly one of three
// states — ok, blocked or error — and callers always receive a well-formed
// Result; nothing escapes the Run boundary.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/igoryan-dao/quill/internal/agents"
	"github.com/igoryan-dao/quill/internal/moderation"
	"github.com/igoryan-dao/quill/internal/plan"
	"github.com/igoryan-dao/quill/internal/resolve"
	"github.com/igoryan-dao/quill/internal/schema"
	"github.com/igoryan-dao/quill/internal/textutil"
	"github.com/igoryan-dao/quill/internal/trace"
)

// Fixed terminal outputs. Callers never see internal failure detail.
const (
	blockedRequestOutput = "Request blocked by safety policy."
	blockedOutputOutput  = "Output blocked by safety policy."
	internalErrorOutput  = "Internal error while processing request."
)

// Planner produces a validated plan for a goal.
type Planner interface {
	Plan(ctx context.Context, goal string) (*plan.Plan, error)
}

// SafetyGate screens text entering and leaving a run.
type SafetyGate interface {
	ModerateText(ctx context.Context, text string) (*moderation.Report, error)
}

// Config bounds a single run.
type Config struct {
	MaxInputChars         int
	EnableInputModeration bool
}

// RunRequest is one engine invocation. NamespaceContext travels with the
// request for wire parity but blueprint retrieval is pinned to the
// configured context namespace.
type RunRequest struct {
	Goal               string
	NamespaceContext   string
	NamespaceKnowledge string
	DocID              string
}

// Result is the terminal envelope of one run. Blocked runs carry the
// moderation report; ok and error runs carry a nil report.
type Result struct {
	TraceID    string             `json:"trace_id"`
	Output     string             `json:"output"`
	Blocked    bool               `json:"blocked"`
	Moderation *moderation.Report `json:"moderation"`
	Trace      *trace.Trace       `json:"trace"`
}

// Stream event kinds passed to RunStream callbacks.
const (
	EventPlan = "plan"
	EventStep = "step"
)

// StreamEvent notifies a transport of run progress: one plan event after
// planning succeeds, then one step event per completed step.
type StreamEvent struct {
	Type     string
	Plan     *plan.Plan
	Step     int
	Agent    string
	Duration time.Duration
}

// Engine sequences one run at a time. It owns no shared state: every
// invocation builds a fresh trace and a fresh placeholder state map, so a
// single Engine is safe for concurrent runs.
type Engine struct {
	planner Planner
	agents  *agents.Set
	safety  SafetyGate
	cfg     Config
	newID   func() string
	now     func() time.Time
}

func New(planner Planner, set *agents.Set, safety SafetyGate, cfg Config) *Engine {
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 12000
	}
	return &Engine{
		planner: planner,
		agents:  set,
		safety:  safety,
		cfg:     cfg,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Run executes the goal and never fails: planner, validation and capability
// errors all collapse into an error-status Result with a generic output.
func (e *Engine) Run(ctx context.Context, req RunRequest) *Result {
	return e.RunStream(ctx, req, nil)
}

// RunStream is Run with progress notifications. emit may be nil; when set it
// is called from the run goroutine, so callbacks must not block on the run
// itself.
func (e *Engine) RunStream(ctx context.Context, req RunRequest, emit func(StreamEvent)) *Result {
	tr := trace.New(e.newID())
	ctx, span := startRunSpan(ctx, tr.TraceID)

	if e.cfg.EnableInputModeration {
		report, err := e.safety.ModerateText(ctx, req.Goal)
		if err != nil {
			log.Printf("[Engine] Input moderation failed trace_id=%s: %v", tr.TraceID, err)
			tr.Finalize(trace.StatusError, err.Error())
			endRunSpan(span, trace.StatusError, err)
			return &Result{TraceID: tr.TraceID, Output: internalErrorOutput, Trace: tr}
		}
		if report.Flagged {
			tr.Plan = map[string]any{"blocked": "input_moderation", "moderation": report}
			tr.Finalize(trace.StatusBlocked, "Input flagged by moderation")
			endRunSpan(span, trace.StatusBlocked, nil)
			return &Result{
				TraceID:    tr.TraceID,
				Output:     blockedRequestOutput,
				Blocked:    true,
				Moderation: report,
				Trace:      tr,
			}
		}
	}

	result, err := e.execute(ctx, tr, req, emit)
	if err != nil {
		log.Printf("[Engine] Engine failure trace_id=%s: %v", tr.TraceID, err)
		tr.Finalize(trace.StatusError, err.Error())
		endRunSpan(span, trace.StatusError, err)
		return &Result{TraceID: tr.TraceID, Output: internalErrorOutput, Trace: tr}
	}
	endRunSpan(span, result.Trace.Status, nil)
	return result
}

func (e *Engine) execute(ctx context.Context, tr *trace.Trace, req RunRequest, emit func(StreamEvent)) (*Result, error) {
	pl, err := e.planner.Plan(ctx, req.Goal)
	if err != nil {
		return nil, err
	}
	tr.Plan = pl
	if emit != nil {
		emit(StreamEvent{Type: EventPlan, Plan: pl})
	}

	state := map[string]any{"DOC_ID": req.DocID}

	for _, step := range pl.Steps {
		t0 := e.now()
		stepCtx, stepSpan := startStepSpan(ctx, step.Step, step.Agent)

		validated, out, err := e.runStep(stepCtx, step, state, req)
		if err != nil {
			endStepSpan(stepSpan, err)
			return nil, err
		}
		endStepSpan(stepSpan, nil)

		elapsed := e.now().Sub(t0)
		state[fmt.Sprintf("STEP_%d_OUTPUT", step.Step)] = out
		tr.AddStep(step.Step, step.Agent, validated, out, elapsed)
		if emit != nil {
			emit(StreamEvent{Type: EventStep, Step: step.Step, Agent: step.Agent, Duration: elapsed})
		}
	}

	lastStep := pl.Steps[len(pl.Steps)-1].Step
	finalText := terminalText(state[fmt.Sprintf("STEP_%d_OUTPUT", lastStep)])

	modOut, err := e.safety.ModerateText(ctx, finalText)
	if err != nil {
		return nil, err
	}
	if modOut.Flagged {
		tr.Finalize(trace.StatusBlocked, "Output flagged by moderation")
		return &Result{
			TraceID:    tr.TraceID,
			Output:     blockedOutputOutput,
			Blocked:    true,
			Moderation: modOut,
			Trace:      tr,
		}, nil
	}

	tr.Finalize(trace.StatusOK, "")
	return &Result{TraceID: tr.TraceID, Output: finalText, Trace: tr}, nil
}

// runStep resolves, validates and dispatches one step, returning the
// validated input (for the trace) and the agent output.
func (e *Engine) runStep(ctx context.Context, step plan.Step, state map[string]any, req RunRequest) (map[string]any, map[string]any, error) {
	resolved, ok := resolve.Resolve(step.Input, state).(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("step %d: input did not resolve to a mapping", step.Step)
	}

	// Caller-scoped document filter: inject unless the plan set its own.
	if step.Agent == schema.Researcher && req.DocID != "" {
		if _, present := resolved["doc_id"]; !present {
			resolved["doc_id"] = req.DocID
		}
	}

	// Planner bug workaround: topic_query sometimes arrives as a whole
	// Librarian output. Use its purpose, or stringify as a last resort.
	if step.Agent == schema.Researcher {
		if tq, isMap := resolved["topic_query"].(map[string]any); isMap {
			if purpose, present := tq["purpose"]; present {
				resolved["topic_query"] = purpose
			} else {
				resolved["topic_query"] = resolve.Stringify(tq)
			}
		}
	}

	// Hard bound on every string field before validation.
	for k, v := range resolved {
		if s, isStr := v.(string); isStr && utf8.RuneCountInString(s) > e.cfg.MaxInputChars {
			resolved[k] = textutil.Clamp(s, e.cfg.MaxInputChars)
		}
	}

	validated, err := schema.Validate(step.Agent, resolved)
	if err != nil {
		return nil, nil, err
	}

	var out map[string]any
	switch step.Agent {
	case schema.Librarian:
		out, err = e.agents.Librarian.Execute(ctx, validated["intent_query"].(string), nil)
		if err != nil {
			return nil, nil, err
		}

	case schema.Researcher:
		q := agents.ResearchQuery{
			TopicQuery: validated["topic_query"].(string),
			Namespace:  req.NamespaceKnowledge,
			TopK:       validated["top_k"].(int),
		}
		if docID, present := validated["doc_id"].(string); present {
			q.DocID = docID
		}
		out, err = e.agents.Researcher.Execute(ctx, q)
		if err != nil {
			return nil, nil, err
		}

	case schema.Summarizer:
		out = e.agents.Summarizer.Execute(ctx,
			validated["text_to_summarize"].(string), validated["max_words"].(int))

	case schema.Writer:
		styleNotes, _ := validated["style_notes"].(string)
		out = e.agents.Writer.Execute(ctx,
			validated["blueprint_json"].(map[string]any),
			validated["facts"].(map[string]any), styleNotes)

	case schema.Verifier:
		out = e.agents.Verifier.Execute(ctx,
			validated["draft"].(string),
			formatReference(validated["reference"]),
			validated["verification_objective"].(string))

	default:
		return nil, nil, fmt.Errorf("Unsupported agent: %s", step.Agent)
	}

	return validated, out, nil
}

// terminalText reduces the last step's output to the run's output text. A
// verifier that asked for changes yields its suggested revision; other
// mappings yield their final or summary text, or compact JSON when neither
// is set; anything else is stringified.
func terminalText(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return resolve.Stringify(v)
	}
	if verdict, _ := m["verdict"].(string); verdict == "needs_revision" {
		revision, _ := m["suggested_revision"].(string)
		return revision
	}
	if s, _ := m["final"].(string); s != "" {
		return s
	}
	if s, _ := m["summary"].(string); s != "" {
		return s
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(b)
}

// formatReference renders the Verifier's reference input as text. A prior
// Researcher output passed whole becomes its first five evidence entries;
// other mappings are pretty-printed.
func formatReference(ref any) string {
	m, ok := ref.(map[string]any)
	if !ok {
		return resolve.Stringify(ref)
	}
	if list, isList := m["evidence"].([]any); isList {
		limit := len(list)
		if limit > 5 {
			limit = 5
		}
		parts := make([]string, 0, limit)
		for i := 0; i < limit; i++ {
			parts = append(parts, fmt.Sprintf("Evidence %d: %s", i+1, indentJSON(list[i])))
		}
		return strings.Join(parts, "\n\n")
	}
	return indentJSON(m)
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
