// SPDX-License-Identifier: MIT

// Package console is the full-screen door terminal. It drives the same
// scanner.Orchestrator the daemon exposes over HTTP.
package console

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/scanner"
	"github.com/ManuGH/turnstile/internal/verify"
)

// DefaultRefresh is how often the model re-reads the door view. Camera
// scans change state without a key press.
const DefaultRefresh = 150 * time.Millisecond

// Door is the slice of *scanner.Orchestrator the console drives.
type Door interface {
	View() scanner.View
	CanSubmit(text string) bool
	Submit(ctx context.Context, text string) (ticket.Attempt, error)
	Reset() error
	SetMode(ctx context.Context, mode scanner.Mode) error
	SetAutoConfirm(v bool) scanner.Settings
	SetSoundEnabled(v bool) scanner.Settings
}

type tickMsg time.Time

type submitDoneMsg struct {
	attempt ticket.Attempt
	err     error
}

type modeDoneMsg struct {
	mode scanner.Mode
	err  error
}

// Option customises a Model.
type Option func(*Model)

// WithLocation renders check-in times in loc.
func WithLocation(loc *time.Location) Option {
	return func(m *Model) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithTheme replaces the palette.
func WithTheme(t Theme) Option { return func(m *Model) { m.theme = t } }

// WithRefresh sets the view polling interval.
func WithRefresh(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.refresh = d
		}
	}
}

// WithDoorName labels the header.
func WithDoorName(name string) Option { return func(m *Model) { m.doorName = name } }

// Model implements tea.Model.
type Model struct {
	ctx      context.Context
	door     Door
	keys     KeyMap
	theme    Theme
	input    textinput.Model
	loc      *time.Location
	refresh  time.Duration
	doorName string

	view    scanner.View
	width   int
	height  int
	pending bool // a submit or mode switch is running
	notice  string
}

// NewModel builds the console for door. ctx bounds the operations the
// console starts.
func NewModel(ctx context.Context, door Door, opts ...Option) Model {
	in := textinput.New()
	in.Placeholder = "ticket code"
	in.CharLimit = 256
	in.Prompt = "› "

	m := Model{
		ctx:     ctx,
		door:    door,
		keys:    DefaultKeyMap,
		theme:   DefaultTheme,
		input:   in,
		loc:     time.UTC,
		refresh: DefaultRefresh,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.sync()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// sync re-reads the door and moves focus to the entry field when it can
// accept input.
func (m *Model) sync() {
	m.view = m.door.View()
	if m.inputActive() {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m Model) inputActive() bool {
	return m.view.Mode == scanner.ModeManual && m.view.State == verify.StateIdle && !m.pending
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		m.sync()
		return m, m.tick()

	case submitDoneMsg:
		m.pending = false
		switch {
		case msg.err == nil:
			m.input.Reset()
			m.notice = ""
		case errors.Is(msg.err, scanner.ErrSubmitDisabled):
			m.notice = "A verification is already running."
		default:
			m.notice = msg.err.Error()
		}
		m.sync()
		return m, nil

	case modeDoneMsg:
		m.pending = false
		var failure *camera.Failure
		switch {
		case msg.err == nil:
			m.notice = ""
		case errors.As(msg.err, &failure):
			m.notice = ""
		case errors.Is(msg.err, scanner.ErrBusy):
			m.notice = "Finish the current verification first."
		default:
			m.notice = msg.err.Error()
		}
		m.sync()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.inputActive() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.ToggleMode):
		if m.pending || m.view.State == verify.StateVerifying {
			m.notice = "Finish the current verification first."
			return m, nil
		}
		target := scanner.ModeManual
		if m.view.Mode == scanner.ModeManual {
			target = scanner.ModeCamera
		}
		m.pending = true
		m.sync()
		return m, m.setMode(target)
	}

	if m.inputActive() {
		if key.Matches(msg, m.keys.Submit) {
			text := m.input.Value()
			if !m.door.CanSubmit(text) {
				m.notice = "Type a ticket code first."
				return m, nil
			}
			m.pending = true
			m.notice = ""
			m.sync()
			return m, m.submit(text)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Next):
		if m.view.State.Terminal() {
			if err := m.door.Reset(); err != nil {
				m.notice = err.Error()
			}
			m.sync()
		}

	case key.Matches(msg, m.keys.AutoConfirm):
		m.door.SetAutoConfirm(!m.view.Settings.AutoConfirm)
		m.sync()

	case key.Matches(msg, m.keys.Sound):
		m.door.SetSoundEnabled(!m.view.Settings.SoundEnabled)
		m.sync()
	}
	return m, nil
}

func (m Model) submit(text string) tea.Cmd {
	ctx, door := m.ctx, m.door
	return func() tea.Msg {
		a, err := door.Submit(ctx, text)
		return submitDoneMsg{attempt: a, err: err}
	}
}

func (m Model) setMode(mode scanner.Mode) tea.Cmd {
	ctx, door := m.ctx, m.door
	return func() tea.Msg {
		return modeDoneMsg{mode: mode, err: door.SetMode(ctx, mode)}
	}
}
