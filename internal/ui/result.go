package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is the outcome box printed by one-shot operator commands
type Result struct {
	Type    ResultType
	Title   string // e.g., "Network configuration reset"
	Details []Row
	Error   error    // Error (for failure results)
	Hints   []string // Next steps (for failure results)
	Width   int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Row) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, hints ...string) *Result {
	return &Result{Type: ResultFailure, Title: title, Error: err, Hints: hints, Width: GetTerminalWidth()}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Row) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// Render returns the styled result box
func (r *Result) Render() string {
	width := clampWidth(r.Width)

	var (
		color  lipgloss.Color
		header string
	)
	switch r.Type {
	case ResultFailure:
		color = ErrorColor
		header = ErrorTitleStyle.Render(fmt.Sprintf(" %s  FAILED  ─  %s", FailureMarker, r.Title))
	case ResultWarning:
		color = WarningColor
		header = WarningTitleStyle.Render(fmt.Sprintf(" %s  WARNING  ─  %s", WarningMarker, r.Title))
	default:
		color = SuccessColor
		header = SuccessTitleStyle.Render(fmt.Sprintf(" %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
	}

	lines := []string{"", header, ""}
	if len(r.Details) > 0 {
		lines = append(lines, renderRows(r.Details), "")
	}
	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render(" Error: "+r.Error.Error()), "")
	}
	if len(r.Hints) > 0 {
		for _, hint := range r.Hints {
			lines = append(lines, MutedStyle.Render("  • "+hint))
		}
		lines = append(lines, "")
	}

	return boxStyle(color, width).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
