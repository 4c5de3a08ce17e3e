package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func newTestModel() Model {
	m := NewModel(nil, Options{Model: "test-model"}, make(chan tea.Msg, 8))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func TestPlanMessageAddsBlock(t *testing.T) {
	m := newTestModel()

	updated, _ := m.Update(planMsg{agents: []string{"researcher", "summarizer"}})
	m = updated.(Model)

	if len(m.blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(m.blocks))
	}
	if !strings.Contains(m.blocks[0].content, "researcher") {
		t.Errorf("plan block missing agent name: %q", m.blocks[0].content)
	}
}

func TestStepMessageAddsProgress(t *testing.T) {
	m := newTestModel()

	updated, _ := m.Update(stepMsg{step: 2, agent: "writer", duration: 1500 * time.Millisecond})
	m = updated.(Model)

	if len(m.blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(m.blocks))
	}
	if !strings.Contains(m.blocks[0].content, "writer") || !strings.Contains(m.blocks[0].content, "Step 2") {
		t.Errorf("unexpected step block: %q", m.blocks[0].content)
	}
}

func TestResultClearsLoading(t *testing.T) {
	m := newTestModel()
	m.isLoading = true

	updated, _ := m.Update(resultMsg{output: "The answer.", elapsed: time.Second})
	m = updated.(Model)

	if m.isLoading {
		t.Error("expected loading to clear after result")
	}
	if len(m.blocks) != 1 || m.blocks[0].kind != blockAnswer {
		t.Fatalf("expected one answer block, got %+v", m.blocks)
	}
}

func TestBlockedResultRendersAsError(t *testing.T) {
	m := newTestModel()
	m.isLoading = true

	updated, _ := m.Update(resultMsg{output: "Output blocked by safety policy.", blocked: true})
	m = updated.(Model)

	if len(m.blocks) != 1 || m.blocks[0].kind != blockError {
		t.Fatalf("expected a blocked block, got %+v", m.blocks)
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if msg := cmd(); msg == nil {
		t.Fatal("expected quit message")
	}
}
