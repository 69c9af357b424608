// Package origin decides whether a browser request may use the relay.
package origin

import (
	"net"
	"net/url"
	"strings"
)

// Allow reports whether a request carrying the given Origin header value may
// be served by a relay reached under requestHost.
//
// An empty origin is allowed: same-origin fetches, navigations and
// non-browser clients do not send one. Otherwise the origin must parse as a
// URL whose hostname equals the hostname of requestHost (port ignored).
func Allow(requestOrigin, requestHost string) bool {
	if requestOrigin == "" {
		return true
	}

	u, err := url.Parse(requestOrigin)
	if err != nil || u.Hostname() == "" {
		return false
	}
	return u.Hostname() == Hostname(requestHost)
}

// Hostname strips the port from a Host header value.
func Hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	// Bracketed IPv6 literal without a port.
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
