// SPDX-License-Identifier: MIT

package scanner

import "github.com/ManuGH/turnstile/internal/verify"

// Settings are the operator toggles. Values are immutable; the With
// methods return modified copies.
type Settings struct {
	AutoConfirm  bool `json:"autoConfirm"`
	SoundEnabled bool `json:"soundEnabled"`
}

// DefaultSettings has both toggles on.
func DefaultSettings() Settings {
	return Settings{AutoConfirm: true, SoundEnabled: true}
}

func (s Settings) WithAutoConfirm(v bool) Settings {
	s.AutoConfirm = v
	return s
}

func (s Settings) WithSoundEnabled(v bool) Settings {
	s.SoundEnabled = v
	return s
}

func (s Settings) prefs() verify.Prefs {
	return verify.Prefs{AutoConfirm: s.AutoConfirm, SoundEnabled: s.SoundEnabled}
}

// Mode selects the input path.
type Mode string

const (
	ModeCamera Mode = "CAMERA"
	ModeManual Mode = "MANUAL"
)

// ParseMode accepts the mode names case-sensitively.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeCamera, ModeManual:
		return Mode(s), true
	}
	return "", false
}
