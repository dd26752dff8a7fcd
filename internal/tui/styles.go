package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	Primary   = lipgloss.Color("205")
	Secondary = lipgloss.Color("86")
	Subtle    = lipgloss.Color("241")
	Success   = lipgloss.Color("46")
	Warning   = lipgloss.Color("214")
	Error     = lipgloss.Color("196")

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(Primary).
			Padding(0, 2).
			Align(lipgloss.Center)

	SectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(0, 2)

	SectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Width(12)

	ValueStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			Italic(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Subtle).
			MarginTop(1)

	LoadingStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Padding(2, 4)
)

// RenderStatus returns a styled status indicator.
func RenderStatus(ok bool, okText, failText string) string {
	if ok {
		return SuccessStyle.Render("✓ " + okText)
	}
	return ErrorStyle.Render("✗ " + failText)
}

// RenderBar renders value/total as a fixed-width bar.
func RenderBar(value, total int, width int) string {
	if total <= 0 {
		total = 1
	}

	filled := int(float64(value) / float64(total) * float64(width))
	filled = min(max(filled, 0), width)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(Warning).Render(bar)
}
