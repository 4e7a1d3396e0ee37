package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	PrimaryColor = lipgloss.Color("#2E86DE") // headers, borders
	SuccessColor = lipgloss.Color("#43BF6D")
	ErrorColor   = lipgloss.Color("#FF5555")
	MutedColor   = lipgloss.Color("#626262")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().Padding(0, 1)

	BorderStyle = lipgloss.NewStyle().Foreground(PrimaryColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)

	ErrorStyle = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)

	MutedStyle = lipgloss.NewStyle().Foreground(MutedColor)
)

// Result markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
)

// Success renders a one-line success message.
func Success(msg string) string {
	return SuccessStyle.Render(SuccessMarker) + " " + msg
}

// Failure renders a one-line error message.
func Failure(err error) string {
	return ErrorStyle.Render(FailureMarker) + " " + err.Error()
}

// Muted renders secondary text such as hints.
func Muted(msg string) string {
	return MutedStyle.Render(msg)
}
