package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New("test", 3, 30*time.Second)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", got)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OpenError while open, got %v", err)
	}
	if oe.Name != "test" {
		t.Errorf("expected breaker name test, got %q", oe.Name)
	}
	if called {
		t.Error("fn must not run while the breaker is open")
	}
}

func TestStaysClosedBelowThreshold(t *testing.T) {
	b := New("test", 3, 30*time.Second)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return boom })
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed after 2 of 3 failures, got %s", got)
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New("test", 1, 30*time.Second)
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }

	_ = b.Do(func() error { return errors.New("boom") })
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected open, got %s", got)
	}

	// Calls are rejected until the recovery window elapses.
	var oe *OpenError
	if err := b.Do(func() error { return nil }); !errors.As(err, &oe) {
		t.Fatalf("expected OpenError before recovery window, got %v", err)
	}

	current = current.Add(31 * time.Second)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to run after recovery window, got %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("test", 1, 30*time.Second)
	current := time.Unix(1000, 0)
	b.now = func() time.Time { return current }
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	current = current.Add(time.Minute)

	if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected probe error to pass through, got %v", err)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected reopened after failed probe, got %s", got)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("test", 2, 30*time.Second)
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return boom })

	if got := b.State(); got != StateClosed {
		t.Fatalf("expected closed, interleaved success should reset the count, got %s", got)
	}
}
