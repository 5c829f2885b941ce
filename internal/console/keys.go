// SPDX-License-Identifier: MIT

package console

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the console bindings. While the manual entry field has
// focus, printable keys type into it and only the control bindings apply.
type KeyMap struct {
	ToggleMode  key.Binding
	Submit      key.Binding
	Next        key.Binding
	AutoConfirm key.Binding
	Sound       key.Binding
	Quit        key.Binding
	ForceQuit   key.Binding
}

// DefaultKeyMap is the built-in binding set.
var DefaultKeyMap = KeyMap{
	ToggleMode: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "camera/manual"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "verify"),
	),
	Next: key.NewBinding(
		key.WithKeys(" ", "n"),
		key.WithHelp("space/n", "scan next"),
	),
	AutoConfirm: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "auto-confirm"),
	),
	Sound: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sound"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}
