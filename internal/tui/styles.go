package tui

import "github.com/charmbracelet/lipgloss"

// One Dark palette
var (
	ColorFgPrimary = lipgloss.Color("#ABB2BF")
	ColorFgMuted   = lipgloss.Color("#636B78")
	ColorRed       = lipgloss.Color("#E06C75")
	ColorGreen     = lipgloss.Color("#98C379")
	ColorYellow    = lipgloss.Color("#E5C07B")
	ColorBlue      = lipgloss.Color("#61AFEF")
	ColorMagenta   = lipgloss.Color("#C678DD")
	ColorBorder    = lipgloss.Color("#3F4451")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorMagenta).
			Bold(true).
			PaddingLeft(1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2)

	FormStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBlue).
			Padding(1, 2)

	FormTitleStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorFgPrimary)

	FocusedLabelStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	StateStyles = map[string]lipgloss.Style{
		"idle":         lipgloss.NewStyle().Foreground(ColorFgMuted),
		"connecting":   lipgloss.NewStyle().Foreground(ColorYellow),
		"active":       lipgloss.NewStyle().Foreground(ColorGreen).Bold(true),
		"disconnected": lipgloss.NewStyle().Foreground(ColorRed),
	}

	ToastStyles = map[string]lipgloss.Style{
		"info":    lipgloss.NewStyle().Foreground(ColorBlue),
		"success": lipgloss.NewStyle().Foreground(ColorGreen),
		"error":   lipgloss.NewStyle().Foreground(ColorRed).Bold(true),
	}

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			PaddingLeft(1)
)
