// SPDX-License-Identifier: MIT

package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/scanner"
	"github.com/ManuGH/turnstile/internal/verify"
)

const (
	defaultWidth = 72
	historyRows  = 6
)

// View implements tea.Model.
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	sections := []string{m.renderHeader(width)}
	if banner := m.renderBanner(width); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, m.renderPanel(width))
	if m.view.Mode == scanner.ModeManual {
		sections = append(sections, m.input.View())
	}
	if m.notice != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(m.theme.Amber).Render(m.notice))
	}
	sections = append(sections, m.renderHistory(width))

	separator := lipgloss.NewStyle().
		Foreground(m.theme.BorderColor).
		Render(strings.Repeat("─", width))
	sections = append(sections, separator, m.renderHelp())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader(width int) string {
	title := "TURNSTILE"
	if m.doorName != "" {
		title += " · " + m.doorName
	}
	left := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Header).Render(title)

	parts := []string{string(m.view.Mode)}
	if m.view.Mode == scanner.ModeCamera {
		parts = append(parts, "camera "+strings.ToLower(string(m.view.Camera)))
	}
	parts = append(parts,
		fmt.Sprintf("%d/%d in", m.view.Stats.CheckedIn, m.view.Stats.Total),
		"auto "+onOff(m.view.Settings.AutoConfirm),
		"sound "+onOff(m.view.Settings.SoundEnabled),
	)
	right := lipgloss.NewStyle().Foreground(m.theme.FaintText).Render(strings.Join(parts, "  "))

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (m Model) renderBanner(width int) string {
	hw := m.view.Hardware
	if hw == nil {
		return ""
	}
	lines := []string{lipgloss.NewStyle().Bold(true).Render("Camera unavailable"), hw.Message}
	if hw.Detail != "" {
		lines = append(lines, lipgloss.NewStyle().Faint(true).Render(hw.Detail))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.Banner).
		Foreground(m.theme.Banner).
		Padding(0, 1).
		Width(width - 2).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderPanel(width int) string {
	style := lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		Align(lipgloss.Center)

	switch {
	case m.view.State == verify.StateVerifying:
		return style.
			Border(lipgloss.NormalBorder()).
			BorderForeground(m.theme.BorderColor).
			Width(width - 2).
			Bold(true).
			Render("Verifying…")

	case m.view.State.Terminal() && m.view.Last != nil:
		last := m.view.Last
		tone := last.Outcome.Tone()
		fg := m.theme.Panel
		if tone == ticket.ToneAmber {
			fg = lipgloss.Color("16")
		}
		lines := []string{
			lipgloss.NewStyle().Bold(true).Render(last.Outcome.Headline()),
			last.Message,
		}
		if t := last.Ticket; t != nil {
			if t.HolderName != "" {
				lines = append(lines, t.HolderName)
			}
			if t.CheckedInAt != nil {
				lines = append(lines, "Checked in "+t.CheckedInAt.In(m.loc).Format("15:04:05"))
			}
		}
		return style.
			Background(m.theme.ToneColor(tone)).
			Foreground(fg).
			Render(strings.Join(lines, "\n"))

	default:
		prompt := "Present a ticket to the camera"
		if m.view.Mode == scanner.ModeManual {
			prompt = "Type a ticket code and press enter"
		}
		return style.
			Border(lipgloss.NormalBorder()).
			BorderForeground(m.theme.BorderColor).
			Width(width - 2).
			Foreground(m.theme.FaintText).
			Render(prompt)
	}
}

func (m Model) renderHistory(width int) string {
	if len(m.view.History) == 0 {
		return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("No scans yet.")
	}
	rows := make([]string, 0, historyRows)
	for i, a := range m.view.History {
		if i == historyRows {
			break
		}
		id := a.Identifier
		if id == "" {
			id = a.Raw
		}
		line := fmt.Sprintf("%s  %-7s %-20s %s",
			a.At.In(m.loc).Format("15:04:05"),
			a.Source,
			truncate(id, 20),
			a.Outcome,
		)
		rows = append(rows, lipgloss.NewStyle().
			Foreground(m.theme.ToneColor(a.Outcome.Tone())).
			MaxWidth(width).
			Render(line))
	}
	return strings.Join(rows, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (m Model) renderHelp() string {
	bindings := []key.Binding{m.keys.ToggleMode}
	if m.inputActive() {
		bindings = append(bindings, m.keys.Submit, m.keys.ForceQuit)
	} else {
		bindings = append(bindings, m.keys.Next, m.keys.AutoConfirm, m.keys.Sound, m.keys.Quit)
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render(strings.Join(parts, " · "))
}
