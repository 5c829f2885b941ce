// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/turnstile/internal/log"
)

// EnvPrefix is prepended to every environment key the loader reads.
const EnvPrefix = "TURNSTILE_"

var secretMarkers = []string{"token", "password", "secret"}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, m := range secretMarkers {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

// fromEnv reads key and converts it with parse. Unset or empty variables
// yield def silently; unparsable ones yield def with a warning.
func fromEnv[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	logger := log.WithComponent("config")
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Interface("default", def).
			Msg("ignoring malformed environment override")
		return def
	}
	evt := logger.Debug().Str("key", key)
	if isSensitiveKey(key) {
		evt = evt.Bool("sensitive", true)
	} else {
		evt = evt.Str("value", raw)
	}
	evt.Msg("environment override")
	return v
}

func parseBoolWord(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, strconv.ErrSyntax
}

// ParseString returns the trimmed variable, or def when unset or empty.
func ParseString(key, def string) string {
	return fromEnv(key, def, func(s string) (string, error) { return s, nil })
}

func ParseInt(key string, def int) int { return fromEnv(key, def, strconv.Atoi) }

// ParseDuration accepts Go duration syntax such as "750ms".
func ParseDuration(key string, def time.Duration) time.Duration {
	return fromEnv(key, def, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0, yes/no and on/off in any case.
func ParseBool(key string, def bool) bool { return fromEnv(key, def, parseBoolWord) }

func ParseFloat(key string, def float64) float64 {
	return fromEnv(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// ParseList splits a comma-separated variable, dropping empty entries.
func ParseList(key string, def []string) []string {
	return fromEnv(key, def, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	})
}
