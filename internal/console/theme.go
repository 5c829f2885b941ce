// SPDX-License-Identifier: MIT

package console

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ManuGH/turnstile/internal/domain/ticket"
)

// Theme is the console palette in ANSI 256-color codes.
type Theme struct {
	Green lipgloss.Color
	Amber lipgloss.Color
	Red   lipgloss.Color
	Panel lipgloss.Color // foreground on coloured panels

	NormalText  lipgloss.Color
	FaintText   lipgloss.Color
	Header      lipgloss.Color
	BorderColor lipgloss.Color
	Banner      lipgloss.Color
}

// DefaultTheme suits a dark terminal at a door.
var DefaultTheme = Theme{
	Green:       lipgloss.Color("28"),
	Amber:       lipgloss.Color("214"),
	Red:         lipgloss.Color("160"),
	Panel:       lipgloss.Color("231"),
	NormalText:  lipgloss.Color("252"),
	FaintText:   lipgloss.Color("244"),
	Header:      lipgloss.Color("75"),
	BorderColor: lipgloss.Color("240"),
	Banner:      lipgloss.Color("208"),
}

// ToneColor maps an outcome tone to its panel colour.
func (t Theme) ToneColor(tone ticket.Tone) lipgloss.Color {
	switch tone {
	case ticket.ToneGreen:
		return t.Green
	case ticket.ToneAmber:
		return t.Amber
	default:
		return t.Red
	}
}
