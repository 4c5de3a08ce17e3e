package sessions

import (
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestAppendCreatesThread(t *testing.T) {
	m := newTestManager(t)
	m.newID = func() string { return "thread-1" }

	thread, err := m.Append("", "doc-9", "What is the revenue?", "It was 42M.")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if thread.ID != "thread-1" {
		t.Errorf("Expected generated id, got %q", thread.ID)
	}
	if thread.Title != "What is the revenue?" {
		t.Errorf("Unexpected title: %q", thread.Title)
	}
	if thread.DocID != "doc-9" {
		t.Errorf("Unexpected doc id: %q", thread.DocID)
	}
	if len(thread.Turns) != 1 || thread.Turns[0].Answer != "It was 42M." {
		t.Errorf("Unexpected turns: %+v", thread.Turns)
	}

	// The thread is on disk and reloads intact.
	loaded, err := m.Get("thread-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Title != thread.Title || len(loaded.Turns) != 1 {
		t.Errorf("Reloaded thread differs: %+v", loaded)
	}
}

func TestAppendContinuesThread(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Append("", "", "first question", "first answer")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	second, err := m.Append(first.ID, "", "second question", "second answer")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Expected same thread id, got %q and %q", first.ID, second.ID)
	}
	if len(second.Turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(second.Turns))
	}
	if second.Title != "first question" {
		t.Errorf("Title must stay from the first question, got %q", second.Title)
	}
}

func TestAppendTrimsHistory(t *testing.T) {
	m := newTestManager(t)
	m.maxTurns = 3

	var id string
	for i := 0; i < 5; i++ {
		thread, err := m.Append(id, "", "q"+string(rune('0'+i)), "a")
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		id = thread.ID
	}

	thread, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(thread.Turns) != 3 {
		t.Fatalf("Expected history trimmed to 3, got %d", len(thread.Turns))
	}
	if thread.Turns[0].Question != "q2" || thread.Turns[2].Question != "q4" {
		t.Errorf("Expected the last three turns, got %+v", thread.Turns)
	}
}

func TestAppendRejectsUnsafeIDs(t *testing.T) {
	m := newTestManager(t)

	for _, id := range []string{"../escape", "a/b", ".hidden", strings.Repeat("x", 200)} {
		if _, err := m.Append(id, "", "q", "a"); err == nil {
			t.Errorf("Expected error for thread id %q", id)
		}
	}
}

func TestListSortsByActivity(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	m.now = func() time.Time { return clock }

	if _, err := m.Append("older", "", "q1", "a1"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	clock = base.Add(time.Hour)
	if _, err := m.Append("newer", "", "q2", "a2"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	threads, err := m.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("Expected 2 threads, got %d", len(threads))
	}
	if threads[0].ID != "newer" || threads[1].ID != "older" {
		t.Errorf("Expected newest first, got %s, %s", threads[0].ID, threads[1].ID)
	}

	limited, err := m.List(1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "newer" {
		t.Errorf("Expected limit to keep the newest, got %+v", limited)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	thread, err := m.Append("", "", "q", "a")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := m.Delete(thread.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := m.Delete(thread.ID); err != nil {
		t.Errorf("Second delete must be a no-op, got %v", err)
	}
	if _, err := m.Get(thread.ID); err == nil {
		t.Error("Expected Get to fail after delete")
	}
}

func TestPromptContext(t *testing.T) {
	m := newTestManager(t)

	if got := m.PromptContext("missing", 5); got != "" {
		t.Errorf("Expected empty context for missing thread, got %q", got)
	}

	var id string
	for _, qa := range [][2]string{{"q1", "a1"}, {"q2", "a2"}, {"q3", "a3"}} {
		thread, err := m.Append(id, "", qa[0], qa[1])
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		id = thread.ID
	}

	got := m.PromptContext(id, 2)
	want := "Q: q2\nA: a2\n\nQ: q3\nA: a3"
	if got != want {
		t.Errorf("PromptContext = %q, want %q", got, want)
	}
}

func TestTitleFrom(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "short question", "short question"},
		{"first line only", "line one\nline two", "line one"},
		{"empty", "   ", "Untitled thread"},
		{"long truncated", strings.Repeat("a", 100), strings.Repeat("a", 77) + "..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := titleFrom(tc.in); got != tc.want {
				t.Errorf("titleFrom(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
