package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirmation describes a destructive operator command
type Confirmation struct {
	Title    string
	Warnings []string

	// Phrase must be typed exactly to proceed
	Phrase string
}

// FactoryResetConfirmation is shown before wiping all stored settings
var FactoryResetConfirmation = Confirmation{
	Title: "FACTORY RESET",
	Warnings: []string{
		"Wi-Fi credentials, device number and Art-Net settings are erased",
		"The setup access point password is regenerated",
		"The device restarts in setup mode",
	},
	Phrase: "RESET",
}

// Confirm prints the warning box to out and reads one line from in. It
// returns true only if the line equals the confirmation phrase.
func Confirm(in io.Reader, out io.Writer, c Confirmation) bool {
	width := GetTerminalWidth()

	lines := []string{
		"",
		WarningTitleStyle.Render(fmt.Sprintf(" %s  WARNING  ─  %s", WarningMarker, c.Title)),
		"",
	}
	for _, w := range c.Warnings {
		lines = append(lines, ValueStyle.Render("  • "+w))
	}
	lines = append(lines, "")

	fmt.Fprintln(out, boxStyle(WarningColor, width).Render(strings.Join(lines, "\n")))
	fmt.Fprint(out, lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render(fmt.Sprintf("To proceed, type %q and press Enter: ", c.Phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}

	if strings.TrimSpace(input) == c.Phrase {
		return true
	}

	fmt.Fprintln(out, MutedStyle.Render("  Operation cancelled."))
	return false
}
