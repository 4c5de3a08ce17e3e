package style

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	BurntOrange = lipgloss.Color("#DA702C")
	MutedGray   = lipgloss.Color("245")
	White       = lipgloss.Color("#FFFFFF")
	Cyan        = lipgloss.Color("86")
	Red         = lipgloss.Color("196")
	Green       = lipgloss.Color("#2E8B57")
)

// Bullets
var (
	BulletUser  = ">"
	BulletAgent = "●"
	BulletStep  = "○"
)

var (
	UserStyle    = lipgloss.NewStyle().Foreground(White)
	AgentStyle   = lipgloss.NewStyle().Foreground(BurntOrange)
	StepStyle    = lipgloss.NewStyle().Foreground(MutedGray)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Red)
	BlockedStyle = lipgloss.NewStyle().Foreground(Red).Bold(true)
	SpinnerStyle = lipgloss.NewStyle().Foreground(BurntOrange)
	MetaStyle    = lipgloss.NewStyle().Foreground(MutedGray)
	DoneStyle    = lipgloss.NewStyle().Foreground(Green)

	HeaderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BurntOrange).
			Padding(0, 1).
			Foreground(White)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedGray).
			Padding(0, 1)
)
