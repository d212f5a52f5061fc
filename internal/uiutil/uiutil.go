package uiutil

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

var nameColors = []lipgloss.Color{
	"1", // red
	"2", // green
	"3", // yellow
	"4", // blue
	"5", // magenta
	"6", // cyan
}

var (
	dimStyle     = lipgloss.NewStyle().Faint(true)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// PickColor maps s to a stable terminal colour.
func PickColor(s string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return nameColors[h.Sum32()%uint32(len(nameColors))]
}

// FormatName renders a player name in its colour, falling back to a short
// form of fallback when the name is empty.
func FormatName(name, fallback string) string {
	display := name
	if display == "" {
		display = ShortID(fallback)
	}
	if display == "" {
		return display
	}
	return lipgloss.NewStyle().Foreground(PickColor(display)).Render(display)
}

func Dim(s string) string     { return dimStyle.Render(s) }
func Heading(s string) string { return headingStyle.Render(s) }
func Warn(s string) string    { return warnStyle.Render(s) }
