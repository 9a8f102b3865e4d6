// Package ui renders console output for the basecamp CLI with Lipgloss.
//
// Output is one-shot: nothing here redraws the terminal. Three components
// are provided:
//
//   - Panel: titled block of ordered key/value rows, used for the system
//     info printed at boot and by the status command
//   - Result: success, failure or warning box closing an operator command
//   - Confirm: warning box plus typed phrase guarding destructive commands
//
// Widths follow the terminal (via golang.org/x/term) clamped to
// MinTerminalWidth..MaxContentWidth. Panel.Plain gives an unstyled rendering
// for serial consoles and logs.
package ui
