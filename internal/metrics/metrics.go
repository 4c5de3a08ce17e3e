package metrics

import "time"

// Recorder defines metric hooks for HTTP traffic, LLM calls, and vector
// store activity.
type Recorder interface {
	ObserveHTTPStart(method, path string)
	ObserveHTTPRequest(method, path, status string, duration time.Duration)
	ObserveHTTPException(method, path, errorType string)

	ObserveLLMRequest(model, operation, status string, duration time.Duration)
	ObserveLLMTokens(model string, prompt, completion, total int)
	ObserveLLMError(model, operation, errorType string)

	ObserveVectorRequest(operation, status string, duration time.Duration)
	ObserveVectorResults(operation string, count int)
}

// NoopRecorder drops all observations.
type NoopRecorder struct{}

func (NoopRecorder) ObserveHTTPStart(string, string)                          {}
func (NoopRecorder) ObserveHTTPRequest(string, string, string, time.Duration) {}
func (NoopRecorder) ObserveHTTPException(string, string, string)              {}
func (NoopRecorder) ObserveLLMRequest(string, string, string, time.Duration)  {}
func (NoopRecorder) ObserveLLMTokens(string, int, int, int)                   {}
func (NoopRecorder) ObserveLLMError(string, string, string)                   {}
func (NoopRecorder) ObserveVectorRequest(string, string, time.Duration)       {}
func (NoopRecorder) ObserveVectorResults(string, int)                         {}

var _ Recorder = NoopRecorder{}
