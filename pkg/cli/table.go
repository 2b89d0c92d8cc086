package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for CLI output.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Dim   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Foreground(t.Primary),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// StatTable renders labeled rows with aligned values, for stat summaries.
type StatTable struct {
	Styles Styles
	rows   [][2]string
}

// Add appends one label/value row.
func (st *StatTable) Add(label, value string) {
	st.rows = append(st.rows, [2]string{label, value})
}

// Render returns the formatted table.
func (st *StatTable) Render() string {
	width := 0
	for _, r := range st.rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	var b strings.Builder
	for _, r := range st.rows {
		b.WriteString("  ")
		b.WriteString(st.Styles.Label.Render(r[0]))
		b.WriteString(strings.Repeat(" ", width-len(r[0])+2))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return b.String()
}
