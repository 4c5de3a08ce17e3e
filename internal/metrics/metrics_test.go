package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusRecorder: %v", err)
	}

	rec.ObserveLLMRequest("gpt-4o-mini", "chat", "success", 120*time.Millisecond)
	rec.ObserveLLMRequest("gpt-4o-mini", "chat", "error", 10*time.Millisecond)
	rec.ObserveLLMTokens("gpt-4o-mini", 10, 5, 15)
	rec.ObserveLLMError("gpt-4o-mini", "chat", "timeout")
	rec.ObserveVectorRequest("query", "success", 40*time.Millisecond)
	rec.ObserveVectorResults("query", 6)

	if got := testutil.ToFloat64(rec.llmRequests.WithLabelValues("gpt-4o-mini", "chat", "success")); got != 1 {
		t.Errorf("llm_requests_total success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.llmRequests.WithLabelValues("gpt-4o-mini", "chat", "error")); got != 1 {
		t.Errorf("llm_requests_total error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.llmTokens.WithLabelValues("gpt-4o-mini", "total")); got != 15 {
		t.Errorf("llm_tokens_total total = %v, want 15", got)
	}
	if got := testutil.ToFloat64(rec.llmErrors.WithLabelValues("gpt-4o-mini", "chat", "timeout")); got != 1 {
		t.Errorf("llm_errors_total = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(rec.llmDuration); got != 1 {
		t.Errorf("llm_request_duration_seconds series = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(rec.vectorResults); got != 1 {
		t.Errorf("vector_db_query_results series = %d, want 1", got)
	}
}

func TestPrometheusRecorderHTTPInProgress(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusRecorder: %v", err)
	}

	rec.ObserveHTTPStart("POST", "/generate")
	if got := testutil.ToFloat64(rec.httpInProgress.WithLabelValues("POST", "/generate")); got != 1 {
		t.Fatalf("in-progress gauge = %v, want 1", got)
	}
	rec.ObserveHTTPRequest("POST", "/generate", "200", 50*time.Millisecond)
	if got := testutil.ToFloat64(rec.httpInProgress.WithLabelValues("POST", "/generate")); got != 0 {
		t.Fatalf("in-progress gauge after finish = %v, want 0", got)
	}
	if got := testutil.ToFloat64(rec.httpRequests.WithLabelValues("POST", "/generate", "200")); got != 1 {
		t.Errorf("http_requests_total = %v, want 1", got)
	}
}

func TestPrometheusRecorderRejectsNilRegistry(t *testing.T) {
	if _, err := NewPrometheusRecorder(nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestPrometheusRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusRecorder: %v", err)
	}
	rec.ObserveLLMRequest("gpt-4o-mini", "chat", "success", time.Millisecond)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, "llm_requests_total") {
		t.Errorf("exposition missing llm_requests_total:\n%s", body)
	}
	if !strings.Contains(body, `operation="chat"`) {
		t.Errorf("exposition missing operation label:\n%s", body)
	}
}

type fakeRecorder struct {
	NoopRecorder
	llmRequests int
	httpStarts  int
}

func (f *fakeRecorder) ObserveLLMRequest(string, string, string, time.Duration) {
	f.llmRequests++
}

func (f *fakeRecorder) ObserveHTTPStart(string, string) {
	f.httpStarts++
}

func TestMultiRecorderFansOut(t *testing.T) {
	a := &fakeRecorder{}
	b := &fakeRecorder{}
	m := NewMultiRecorder(a, nil, b)

	m.ObserveLLMRequest("m", "chat", "success", time.Millisecond)
	m.ObserveHTTPStart("GET", "/health")

	if a.llmRequests != 1 || b.llmRequests != 1 {
		t.Errorf("llm observations = %d/%d, want 1/1", a.llmRequests, b.llmRequests)
	}
	if a.httpStarts != 1 || b.httpStarts != 1 {
		t.Errorf("http starts = %d/%d, want 1/1", a.httpStarts, b.httpStarts)
	}
}
