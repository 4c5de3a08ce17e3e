package breaker

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// State describes the current mode of a Breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// OpenError is returned when a call is rejected because the breaker is open.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open", e.Name)
}

// Breaker trips after a run of consecutive failures and rejects calls until
// the recovery window has passed, then lets a probe through half-open. Any
// success closes it again and resets the failure count.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time
	now          func() time.Time
}

// New returns a closed breaker. A threshold below 1 is treated as 1.
func New(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
		now:              time.Now,
	}
}

// ForLLM returns a breaker tuned for chat and embedding providers.
func ForLLM() *Breaker { return New("llm", 3, 30*time.Second) }

// ForVectorStore returns a breaker tuned for vector database calls.
func ForVectorStore() *Breaker { return New("vector", 5, 60*time.Second) }

// Do runs fn unless the breaker is open. fn's error is returned unchanged
// and counted as a failure.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) < b.recoveryTimeout {
			return &OpenError{Name: b.name}
		}
		b.state = StateHalfOpen
		log.Printf("[Breaker] %s entering half-open state", b.name)
	}
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	if b.state != StateClosed {
		log.Printf("[Breaker] %s closed after successful call", b.name)
	}
	b.state = StateClosed
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = b.now()
	if b.failureCount >= b.failureThreshold && b.state != StateOpen {
		b.state = StateOpen
		log.Printf("[Breaker] %s opened after %d consecutive failures", b.name, b.failureCount)
	}
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the identifier the breaker was created with.
func (b *Breaker) Name() string { return b.name }
