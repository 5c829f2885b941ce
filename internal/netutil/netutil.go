// SPDX-License-Identifier: MIT

// Package netutil validates outbound endpoints such as the remote
// check-in service.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInsecureEndpoint rejects plain HTTP to a non-local host.
var ErrInsecureEndpoint = errors.New("plain http is only allowed for loopback and private hosts")

// SanitizeURL drops credentials and the query string so a URL can be logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User, u.RawQuery = nil, ""
	return u.String()
}

// NormalizeHost returns the canonical lower-case ASCII form of a bare
// host. Brackets around IPv6 literals are accepted; ports, zones,
// userinfo and schemes are not.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	switch {
	case host == "":
		return "", errors.New("host is empty")
	case strings.ContainsAny(host, "/@"):
		return "", fmt.Errorf("host must be a bare hostname: %s", raw)
	case strings.Contains(host, "%"):
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String(), nil
	}
	if strings.Contains(host, ":") {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	name := strings.TrimSuffix(host, ".")
	if name == "" {
		return "", errors.New("host is empty")
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// IsLocalHost reports localhost names and loopback, private or
// link-local addresses.
func IsLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	for _, suffix := range []string{".localhost", ".local"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}

// ParseEndpoint validates an http(s) base URL for the remote mutator
// and returns it with a lower-case scheme, a canonical host and no
// trailing slash. Plain http is allowed only for local hosts unless
// allowInsecure is set.
func ParseEndpoint(raw string, allowInsecure bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return nil, fmt.Errorf("scheme %q not allowed", u.Scheme)
	case u.Host == "":
		return nil, errors.New("missing url host")
	case u.User != nil:
		return nil, errors.New("credentials in url are not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return nil, errors.New("query and fragment are not allowed")
	}

	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return nil, err
	}
	if u.Scheme == "http" && !allowInsecure && !IsLocalHost(host) {
		return nil, fmt.Errorf("%s: %w", host, ErrInsecureEndpoint)
	}

	switch port := u.Port(); {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}
