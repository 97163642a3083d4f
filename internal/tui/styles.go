package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	statusStyles = map[string]lipgloss.Style{
		// Terminal states
		"materialized": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		// Active states
		"fetching":   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"extracting": lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"writing":    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		// Idempotent no-op
		"skipped": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		// Error
		"failed": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		// Pending
		"pending": lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
