package upstream

import (
	"net/http"
	"testing"
)

func TestNormalizeBearer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bearer abc", "Bearer abc"},
		{"Bearer Bearer abc", "Bearer abc"},
		{"bearer Bearer abc", "Bearer abc"},
		{"Bearer Bearer Bearer abc", "Bearer Bearer abc"},
		{"  Bearer   Bearer abc  ", "Bearer abc"},
		{"Basic dXNlcg==", "Basic dXNlcg=="},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeBearer(tt.in); got != tt.want {
			t.Errorf("NormalizeBearer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelayHeaders(t *testing.T) {
	in := http.Header{}
	in.Set("Content-Type", "application/json")
	in.Set("Accept", "text/event-stream")
	in.Set("Authorization", "Bearer Bearer tok")
	in.Set("Cookie", "session=secret")
	in.Set("X-Forwarded-For", "10.0.0.1")
	in.Set("Connection", "keep-alive")

	out := RelayHeaders(in, ChatHeaders...)

	if len(out) != 3 {
		t.Errorf("expected 3 headers, got %d: %v", len(out), out)
	}
	if out.Get("Authorization") != "Bearer tok" {
		t.Errorf("expected normalized authorization, got %q", out.Get("Authorization"))
	}
	for _, h := range []string{"Cookie", "X-Forwarded-For", "Connection"} {
		if out.Get(h) != "" {
			t.Errorf("expected %s to be dropped", h)
		}
	}

	models := RelayHeaders(in, ModelsHeaders...)
	if models.Get("Content-Type") != "" {
		t.Error("expected Content-Type to be dropped for models")
	}
}
