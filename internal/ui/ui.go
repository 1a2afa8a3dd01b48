// Package ui holds the terminal rendering helpers shared by the CLI
// commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// IsTTY reports whether stdout is a terminal. Styled output is disabled
// when piping.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Colored reports whether the terminal supports color at all.
func Colored() bool {
	return IsTTY() && termenv.DefaultOutput().Profile != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !Colored() {
		return s
	}
	return style.Render(s)
}

// RenderPass styles a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderFail styles a failure marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles an informational marker.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderDim styles secondary detail text.
func RenderDim(s string) string { return render(dimStyle, s) }
