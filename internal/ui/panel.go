package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Row is one key/value line of a panel or result box
type Row struct {
	Key   string
	Value string

	// Secret renders the value highlighted
	Secret bool
}

// Panel is a bordered block with a title, an ordered list of rows and
// optional notes. The daemon prints its system info as a panel at boot.
type Panel struct {
	Title    string // e.g., "Pixel Tube 3"
	Subtitle string // e.g., "client mode"
	Rows     []Row
	Notes    []string // e.g., degraded start reasons
	Width    int      // Terminal width for responsive rendering
}

// NewPanel creates a panel sized to the terminal
func NewPanel(title, subtitle string) *Panel {
	return &Panel{
		Title:    title,
		Subtitle: subtitle,
		Width:    GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (p *Panel) SetWidth(width int) *Panel {
	p.Width = width
	return p
}

// Add appends a row
func (p *Panel) Add(key, value string) *Panel {
	p.Rows = append(p.Rows, Row{Key: key, Value: value})
	return p
}

// AddSecret appends a highlighted row
func (p *Panel) AddSecret(key, value string) *Panel {
	p.Rows = append(p.Rows, Row{Key: key, Value: value, Secret: true})
	return p
}

// Note appends a note below the rows
func (p *Panel) Note(note string) *Panel {
	p.Notes = append(p.Notes, note)
	return p
}

// Render returns the styled panel
func (p *Panel) Render() string {
	width := clampWidth(p.Width)

	sections := []string{TitleStyle.Render(strings.ToUpper(p.Title))}
	if p.Subtitle != "" {
		sections = append(sections, SubtitleStyle.Render(p.Subtitle))
	}

	if len(p.Rows) > 0 {
		sections = append(sections, divider(width-6))
		sections = append(sections, renderRows(p.Rows))
	}

	if len(p.Notes) > 0 {
		sections = append(sections, "")
		for _, note := range p.Notes {
			sections = append(sections, NoteStyle.Render(WarningMarker+" "+note))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// Plain renders the panel without styling, one "Key: value" per line. It is
// used where escape codes would end up in a log or a serial console.
func (p *Panel) Plain() string {
	var b strings.Builder
	b.WriteString(p.Title)
	if p.Subtitle != "" {
		b.WriteString(" (" + p.Subtitle + ")")
	}
	b.WriteByte('\n')
	for _, r := range p.Rows {
		b.WriteString(r.Key + ": " + r.Value + "\n")
	}
	for _, note := range p.Notes {
		b.WriteString("! " + note + "\n")
	}
	return b.String()
}

// String implements fmt.Stringer
func (p *Panel) String() string {
	return p.Render()
}

func renderRows(rows []Row) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		value := ValueStyle.Render(r.Value)
		if r.Secret {
			value = SecretStyle.Render(r.Value)
		}
		lines = append(lines, KeyStyle.Render(r.Key+":")+" "+value)
	}
	return strings.Join(lines, "\n")
}
