// Package sessions persists chat threads: rolling question/answer history
// keyed by thread id, folded back into /chat prompts so follow-up questions
// keep their context.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// defaultMaxTurns bounds the history kept per thread; older turns fall off.
const defaultMaxTurns = 20

// titleLimit caps thread titles derived from the first question.
const titleLimit = 80

// threadIDRE accepts client-supplied thread ids that are safe as file names.
var threadIDRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,119}$`)

// Turn is one question/answer exchange.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Thread is a rolling conversation, persisted as one JSON file.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DocID     string    `json:"doc_id,omitempty"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager stores threads under a directory, one file per thread.
type Manager struct {
	mu       sync.Mutex
	dir      string
	maxTurns int
	now      func() time.Time
	newID    func() string
}

// NewManager creates dir if needed and returns a manager over it.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Manager{
		dir:      dir,
		maxTurns: defaultMaxTurns,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Append records one exchange on the thread, creating it when threadID is
// empty or unknown. It returns the thread, whose ID callers echo back to
// continue the conversation.
func (m *Manager) Append(threadID, docID, question, answer string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if threadID == "" {
		threadID = m.newID()
	}
	if !threadIDRE.MatchString(threadID) {
		return nil, fmt.Errorf("invalid thread id %q", threadID)
	}

	thread, err := m.load(threadID)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		now := m.now()
		thread = &Thread{
			ID:        threadID,
			Title:     titleFrom(question),
			DocID:     docID,
			CreatedAt: now,
		}
	}

	thread.Turns = append(thread.Turns, Turn{Question: question, Answer: answer, At: m.now()})
	if len(thread.Turns) > m.maxTurns {
		thread.Turns = thread.Turns[len(thread.Turns)-m.maxTurns:]
	}
	thread.UpdatedAt = m.now()
	if thread.DocID == "" {
		thread.DocID = docID
	}

	if err := m.save(thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// Get returns one thread by id.
func (m *Manager) Get(threadID string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !threadIDRE.MatchString(threadID) {
		return nil, fmt.Errorf("invalid thread id %q", threadID)
	}
	return m.load(threadID)
}

// List returns threads sorted by last activity, newest first. Unreadable
// files are skipped. limit <= 0 means all.
func (m *Manager) List(limit int) ([]Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var threads []Thread
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		var thread Thread
		if err := json.Unmarshal(data, &thread); err != nil || thread.ID == "" {
			continue
		}
		threads = append(threads, thread)
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	if limit > 0 && len(threads) > limit {
		threads = threads[:limit]
	}
	return threads, nil
}

// Delete removes a thread. Deleting a missing thread is a no-op.
func (m *Manager) Delete(threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !threadIDRE.MatchString(threadID) {
		return fmt.Errorf("invalid thread id %q", threadID)
	}
	if err := os.Remove(m.path(threadID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// PromptContext renders the last maxTurns exchanges for inclusion in a
// prompt. Unknown or empty threads yield "".
func (m *Manager) PromptContext(threadID string, maxTurns int) string {
	thread, err := m.Get(threadID)
	if err != nil {
		return ""
	}
	turns := thread.Turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	parts := make([]string, 0, len(turns))
	for _, turn := range turns {
		parts = append(parts, fmt.Sprintf("Q: %s\nA: %s", turn.Question, turn.Answer))
	}
	return strings.Join(parts, "\n\n")
}

func (m *Manager) path(threadID string) string {
	return filepath.Join(m.dir, threadID+".json")
}

func (m *Manager) load(threadID string) (*Thread, error) {
	data, err := os.ReadFile(m.path(threadID))
	if err != nil {
		return nil, err
	}
	var thread Thread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("parse thread %s: %w", threadID, err)
	}
	return &thread, nil
}

func (m *Manager) save(thread *Thread) error {
	data, err := json.MarshalIndent(thread, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal thread: %w", err)
	}
	if err := os.WriteFile(m.path(thread.ID), data, 0644); err != nil {
		return fmt.Errorf("write thread: %w", err)
	}
	return nil
}

// titleFrom derives a display title from the first question of a thread.
func titleFrom(question string) string {
	line := strings.TrimSpace(question)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return "Untitled thread"
	}
	if utf8.RuneCountInString(line) > titleLimit {
		line = string([]rune(line)[:titleLimit-3]) + "..."
	}
	return line
}
