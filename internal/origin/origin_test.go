package origin

import "testing"

func TestAllow(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"absent origin", "", "relay.example", true},
		{"same host", "https://relay.example", "relay.example", true},
		{"same host with ports", "http://relay.example:3000", "relay.example:8080", true},
		{"different host", "https://evil.example", "relay.example", false},
		{"subdomain is not same host", "https://a.relay.example", "relay.example", false},
		{"localhost dev server", "http://localhost:5173", "localhost:8080", true},
		{"ipv6 literal", "http://[::1]:5173", "[::1]:8080", true},
		{"null origin", "null", "relay.example", false},
		{"unparseable origin", "http://%zz", "relay.example", false},
		{"empty host header", "https://relay.example", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allow(tt.origin, tt.host); got != tt.want {
				t.Errorf("Allow(%q, %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
			}
		})
	}
}

func TestHostname(t *testing.T) {
	tests := map[string]string{
		"relay.example":      "relay.example",
		"relay.example:8080": "relay.example",
		"[::1]:8080":         "::1",
		"[::1]":              "::1",
		"":                   "",
	}
	for in, want := range tests {
		if got := Hostname(in); got != want {
			t.Errorf("Hostname(%q) = %q, want %q", in, got, want)
		}
	}
}
