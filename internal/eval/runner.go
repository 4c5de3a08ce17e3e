package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/ingest"
)

// Runner executes cases against an engine, optionally ingesting fixture
// documents first.
type Runner struct {
	engine    *engine.Engine
	ingestor  *ingest.Ingestor
	namespace string
	timeout   time.Duration
}

func NewRunner(eng *engine.Engine, ing *ingest.Ingestor, namespace string) *Runner {
	return &Runner{
		engine:    eng,
		ingestor:  ing,
		namespace: namespace,
		timeout:   5 * time.Minute,
	}
}

// Run executes a single test case
func (r *Runner) Run(ctx context.Context, tc *TestCase) (*Result, error) {
	startTime := time.Now()
	result := &Result{
		TestCaseID: tc.ID,
		Errors:     []string{},
	}

	for _, fx := range tc.Fixtures {
		if r.ingestor == nil {
			return nil, fmt.Errorf("case %s has fixtures but no ingestor is wired", tc.ID)
		}
		var err error
		switch {
		case fx.Path != "":
			_, err = r.ingestor.IngestFile(ctx, fx.Path, nil)
		case fx.URL != "":
			_, err = r.ingestor.IngestURL(ctx, fx.URL, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to ingest fixture for %s: %w", tc.ID, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	run := r.engine.Run(runCtx, engine.RunRequest{
		Goal:               tc.Goal,
		NamespaceKnowledge: r.namespace,
		DocID:              tc.DocID,
	})

	result.TraceID = run.TraceID
	if run.Trace != nil {
		result.Status = run.Trace.Status
	}

	if errs := verify(tc.Expected, run); len(errs) > 0 {
		result.Errors = append(result.Errors, errs...)
		result.Success = false
	} else {
		result.Success = true
	}

	result.Duration = time.Since(startTime)
	return result, nil
}
