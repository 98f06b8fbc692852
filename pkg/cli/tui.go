package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the colour scheme of a Frame.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Alert   lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00b4a0"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f5f"),
}

// Styles are the lipgloss styles a Frame draws with.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Box   lipgloss.Style
	Help  lipgloss.Style
	Alert lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Box:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Help:  lipgloss.NewStyle().Foreground(t.Dim),
		Alert: lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
}

// Section is a boxed list of lines. Only the newest lines that fit are
// shown.
type Section struct {
	Label string
	Lines []string
}

// Frame is one screen: a title line, stacked sections and a help line.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Alert    string
	Sections []Section
	Help     string
}

// Render draws the frame into width columns and about height rows.
func (f Frame) Render(width, height int) string {
	if width < 10 || height < 5 {
		return f.Title + " [" + f.Status + "]"
	}

	header := f.Styles.Title.Render(f.Title) + " " + f.Styles.Help.Render("["+f.Status+"]")
	if f.Alert != "" {
		header += " " + f.Styles.Alert.Render(truncateString(f.Alert, width/2))
	}
	rows := []string{header}

	n := max(len(f.Sections), 1)
	// Each box costs two border rows and a label row.
	body := max((height-2-3*n)/n, 1)
	inner := width - 4
	for _, sec := range f.Sections {
		lines := sec.Lines
		if len(lines) > body {
			lines = lines[len(lines)-body:]
		}
		content := make([]string, 0, body+1)
		content = append(content, f.Styles.Label.Render(sec.Label))
		for _, l := range lines {
			if lipgloss.Width(l) > inner {
				l = truncateString(l, inner-1) + "…"
			}
			content = append(content, l)
		}
		for len(content) < body+1 {
			content = append(content, "")
		}
		rows = append(rows, f.Styles.Box.Width(width-2).Render(strings.Join(content, "\n")))
	}
	rows = append(rows, f.Styles.Help.Render(f.Help))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// truncateString cuts s to at most width display columns.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return s[:i]
		}
		w += rw
	}
	return s
}
