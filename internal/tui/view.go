package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/igoryan-dao/quill/internal/tui/style"
)

func (m Model) View() string {
	if m.width <= 0 {
		return "Initializing..."
	}

	header := style.HeaderStyle.Render("Quill · " + m.opts.Model)

	status := ""
	if m.isLoading {
		status = m.Spinner.View() + " " + style.MetaStyle.Render("Working...")
	}

	input := style.BoxStyle.Width(m.width - 2).Render(m.Textarea.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.Viewport.View(),
		status,
		input,
	)
}

// refreshViewport re-renders the transcript into the viewport.
func (m *Model) refreshViewport() {
	var sb strings.Builder
	for _, b := range m.blocks {
		switch b.kind {
		case blockUser:
			sb.WriteString(style.UserStyle.Render(style.BulletUser+" "+b.content) + "\n\n")
		case blockStep:
			sb.WriteString(style.StepStyle.Render(style.BulletStep+" "+b.content) + "\n")
		case blockAnswer:
			rendered := b.content
			if m.Renderer != nil {
				if out, err := m.Renderer.Render(b.content); err == nil {
					rendered = out
				}
			}
			sb.WriteString(style.AgentStyle.Render(style.BulletAgent) + rendered + "\n")
		case blockError:
			sb.WriteString(style.BlockedStyle.Render(style.BulletAgent+" "+b.content) + "\n\n")
		}
	}
	m.Viewport.SetContent(sb.String())
	m.Viewport.GotoBottom()
}
