package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	m.Textarea, tiCmd = m.Textarea.Update(msg)
	m.Viewport, vpCmd = m.Viewport.Update(msg)
	if m.isLoading {
		m.Spinner, spCmd = m.Spinner.Update(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.Viewport.Width = msg.Width
		m.Viewport.Height = msg.Height - 6
		if m.Viewport.Height < 3 {
			m.Viewport.Height = 3
		}
		m.Textarea.SetWidth(msg.Width - 4)
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			goal := strings.TrimSpace(m.Textarea.Value())
			if goal == "" || m.isLoading {
				return m, tea.Batch(tiCmd, vpCmd, spCmd)
			}
			m.Textarea.Reset()
			m.blocks = append(m.blocks, block{kind: blockUser, content: goal})
			m.isLoading = true
			m.startRun(goal)
			m.refreshViewport()
			return m, tea.Batch(m.Spinner.Tick, m.waitForMsg())
		}

	case planMsg:
		m.blocks = append(m.blocks, block{
			kind:    blockStep,
			content: "Plan: " + strings.Join(msg.agents, " → "),
		})
		m.refreshViewport()
		return m, tea.Batch(m.Spinner.Tick, m.waitForMsg())

	case stepMsg:
		m.blocks = append(m.blocks, block{
			kind:    blockStep,
			content: fmt.Sprintf("Step %d: %s (%.1fs)", msg.step, msg.agent, msg.duration.Seconds()),
		})
		m.refreshViewport()
		return m, tea.Batch(m.Spinner.Tick, m.waitForMsg())

	case resultMsg:
		m.isLoading = false
		kind := blockAnswer
		if msg.blocked {
			kind = blockError
		}
		content := msg.output
		if !msg.blocked {
			content += fmt.Sprintf("\n_(%.1fs)_", msg.elapsed.Seconds())
		}
		m.blocks = append(m.blocks, block{kind: kind, content: content})
		m.refreshViewport()
		m.Viewport.GotoBottom()
		return m, m.waitForMsg()
	}

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}
