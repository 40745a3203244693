package output

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette, single accent plus signal colors.
const (
	colorAccent = "154"
	colorGray   = "245"
	colorRed    = "196"
	colorYellow = "220"
)

// Styles holds the lipgloss styles used for terminal rendering.
type Styles struct {
	Path    lipgloss.Style
	Title   lipgloss.Style
	Score   lipgloss.Style
	Snippet lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

func colorStyles() Styles {
	return Styles{
		Path:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Title:   lipgloss.NewStyle().Bold(true),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Snippet: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
	}
}

func plainStyles() Styles {
	return Styles{}
}

// stylesFor picks colored styles only when writing to a terminal.
func stylesFor(out io.Writer) Styles {
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return colorStyles()
	}
	return plainStyles()
}
