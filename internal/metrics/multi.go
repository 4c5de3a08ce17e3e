package metrics

import "time"

// MultiRecorder fans out observations to multiple recorders.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder builds a recorder forwarding to every non-nil argument.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	nonNil := make([]Recorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			nonNil = append(nonNil, r)
		}
	}
	return &MultiRecorder{recorders: nonNil}
}

func (m *MultiRecorder) ObserveHTTPStart(method, path string) {
	for _, r := range m.recorders {
		r.ObserveHTTPStart(method, path)
	}
}

func (m *MultiRecorder) ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	for _, r := range m.recorders {
		r.ObserveHTTPRequest(method, path, status, duration)
	}
}

func (m *MultiRecorder) ObserveHTTPException(method, path, errorType string) {
	for _, r := range m.recorders {
		r.ObserveHTTPException(method, path, errorType)
	}
}

func (m *MultiRecorder) ObserveLLMRequest(model, operation, status string, duration time.Duration) {
	for _, r := range m.recorders {
		r.ObserveLLMRequest(model, operation, status, duration)
	}
}

func (m *MultiRecorder) ObserveLLMTokens(model string, prompt, completion, total int) {
	for _, r := range m.recorders {
		r.ObserveLLMTokens(model, prompt, completion, total)
	}
}

func (m *MultiRecorder) ObserveLLMError(model, operation, errorType string) {
	for _, r := range m.recorders {
		r.ObserveLLMError(model, operation, errorType)
	}
}

func (m *MultiRecorder) ObserveVectorRequest(operation, status string, duration time.Duration) {
	for _, r := range m.recorders {
		r.ObserveVectorRequest(operation, status, duration)
	}
}

func (m *MultiRecorder) ObserveVectorResults(operation string, count int) {
	for _, r := range m.recorders {
		r.ObserveVectorResults(operation, count)
	}
}
