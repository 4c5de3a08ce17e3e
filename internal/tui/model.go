// Package tui is an interactive terminal front end for the pipeline: type a
// question, watch plan and step progress, read the rendered answer.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/igoryan-dao/quill/internal/engine"
	"github.com/igoryan-dao/quill/internal/tui/style"
)

// Options configure a TUI session.
type Options struct {
	// DocID restricts retrieval to one document when set.
	DocID              string
	Model              string
	KnowledgeNamespace string
}

// Block kinds shown in the transcript.
const (
	blockUser = iota
	blockAnswer
	blockStep
	blockError
)

type block struct {
	kind    int
	content string
}

// Messages emitted by the engine goroutine.
type planMsg struct{ agents []string }

type stepMsg struct {
	step     int
	agent    string
	duration time.Duration
}

type resultMsg struct {
	output  string
	blocked bool
	elapsed time.Duration
}

// Model is the bubbletea state for one session.
type Model struct {
	engine  *engine.Engine
	opts    Options
	msgChan chan tea.Msg

	Viewport viewport.Model
	Textarea textarea.Model
	Spinner  spinner.Model
	Renderer *glamour.TermRenderer

	blocks    []block
	isLoading bool
	runStart  time.Time

	width  int
	height int
}

// NewModel builds the initial TUI state.
func NewModel(eng *engine.Engine, opts Options, msgChan chan tea.Msg) Model {
	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
		glamour.WithColorProfile(termenv.ANSI),
	)

	ta := textarea.New()
	ta.Placeholder = "Ask a question..."
	ta.Focus()
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.Placeholder = ta.FocusedStyle.Placeholder.Background(lipgloss.NoColor{}).Foreground(style.MutedGray)
	ta.BlurredStyle.Placeholder = ta.BlurredStyle.Placeholder.Background(lipgloss.NoColor{}).Foreground(style.MutedGray)
	ta.FocusedStyle.CursorLine = ta.FocusedStyle.CursorLine.Background(lipgloss.NoColor{})
	ta.BlurredStyle.CursorLine = ta.BlurredStyle.CursorLine.Background(lipgloss.NoColor{})

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = style.SpinnerStyle

	welcome := fmt.Sprintf("Quill %s\n", opts.Model)
	if opts.DocID != "" {
		welcome += fmt.Sprintf("Document: %s\n", opts.DocID)
	}
	welcome += "\nType a question and press Enter. Ctrl+C to quit.\n"
	vp.SetContent(welcome)

	return Model{
		engine:   eng,
		opts:     opts,
		msgChan:  msgChan,
		Viewport: vp,
		Textarea: ta,
		Spinner:  sp,
		Renderer: renderer,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.Spinner.Tick,
		m.waitForMsg(),
	)
}

func (m Model) waitForMsg() tea.Cmd {
	return func() tea.Msg {
		return <-m.msgChan
	}
}

// startRun launches one engine run in a goroutine; progress flows back
// through msgChan as tea messages.
func (m *Model) startRun(goal string) {
	eng := m.engine
	opts := m.opts
	ch := m.msgChan
	started := time.Now()

	go func() {
		result := eng.RunStream(context.Background(), engine.RunRequest{
			Goal:               goal,
			NamespaceKnowledge: opts.KnowledgeNamespace,
			DocID:              opts.DocID,
		}, func(ev engine.StreamEvent) {
			switch ev.Type {
			case engine.EventPlan:
				var agents []string
				for _, s := range ev.Plan.Steps {
					agents = append(agents, s.Agent)
				}
				ch <- planMsg{agents: agents}
			case engine.EventStep:
				ch <- stepMsg{step: ev.Step, agent: ev.Agent, duration: ev.Duration}
			}
		})
		ch <- resultMsg{
			output:  result.Output,
			blocked: result.Blocked,
			elapsed: time.Since(started),
		}
	}()
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, eng *engine.Engine, opts Options) error {
	msgChan := make(chan tea.Msg, 64)
	model := NewModel(eng, opts, msgChan)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
