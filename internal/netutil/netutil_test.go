// SPDX-License-Identifier: MIT

package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"Example.COM.":   "example.com",
		"bücher.example": "xn--bcher-kva.example",
		"[::1]":          "::1",
		"10.0.0.7":       "10.0.0.7",
	}
	for in, want := range cases {
		got, err := NormalizeHost(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "host:80", "user@host", "http://host", "fe80::1%eth0"} {
		_, err := NormalizeHost(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseEndpoint(t *testing.T) {
	u, err := ParseEndpoint("HTTPS://Tickets.Example.com:8443/api/", false)
	require.NoError(t, err)
	assert.Equal(t, "https://tickets.example.com:8443/api", u.String())

	u, err = ParseEndpoint("http://127.0.0.1:9000", false)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)

	_, err = ParseEndpoint("http://tickets.example.com", false)
	assert.ErrorIs(t, err, ErrInsecureEndpoint)

	_, err = ParseEndpoint("http://tickets.example.com", true)
	assert.NoError(t, err)

	for _, bad := range []string{
		"ftp://example.com",
		"https://user:pw@example.com",
		"https://example.com/#frag",
		"https://example.com/?q=1",
		"https://",
	} {
		_, err := ParseEndpoint(bad, true)
		assert.Error(t, err, bad)
	}
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/api", SanitizeURL("https://user:pw@example.com/api?token=secret"))
}

func TestIsLocalHost(t *testing.T) {
	for host, want := range map[string]bool{
		"localhost":       true,
		"door.local":      true,
		"127.0.0.1":       true,
		"192.168.1.20":    true,
		"fe80::1":         true,
		"::1":             true,
		"tickets.example": false,
		"8.8.8.8":         false,
		"2001:4860::8888": false,
	} {
		assert.Equal(t, want, IsLocalHost(host), host)
	}
}
