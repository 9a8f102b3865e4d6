package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette of the console output
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - titles, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - success, checkmarks
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors, X marks
	WarningColor = lipgloss.Color("#FFA500") // Orange - warnings, secrets
	MutedColor   = lipgloss.Color("#626262") // Gray - keys, notes
	TextColor    = lipgloss.Color("#FFFFFF") // White - values
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
	KeyWidth         = 16  // Width of the key column in panels and results
)

var (
	// TitleStyle is for panel titles (e.g., "PIXEL TUBE 3")
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true).
			PaddingLeft(2)

	// SubtitleStyle is for the line below a title (e.g., the operating mode)
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	// KeyStyle is for row keys (e.g., "Hostname:")
	KeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2).
			Width(KeyWidth)

	// ValueStyle is for row values
	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	// SecretStyle highlights the access point password
	SecretStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	// NoteStyle is for notes below the rows
	NoteStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			PaddingLeft(2)

	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningTitleStyle = lipgloss.NewStyle().
				Foreground(WarningColor).
				Bold(true)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)
)

// Status markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	WarningMarker = "⚠"
)

// GetTerminalWidth returns the width of stdout clamped to the supported
// range. Non-terminals get MinTerminalWidth.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// boxStyle returns a double bordered box in color
func boxStyle(color lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 2)
}

// divider returns a horizontal rule of the given width
func divider(width int) string {
	if width < 10 {
		width = 10
	}
	return lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat("─", width))
}
