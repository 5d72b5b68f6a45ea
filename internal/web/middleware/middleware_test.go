package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{"no proxies configured", nil, "10.0.0.1:1234", "1.2.3.4", "", "10.0.0.1:1234"},
		{"untrusted source ignores header", []string{"192.168.0.0/16"}, "10.0.0.1:1234", "1.2.3.4", "", "10.0.0.1:1234"},
		{"trusted cidr uses X-Real-IP", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "1.2.3.4", "", "1.2.3.4"},
		{"trusted bare ip", []string{"10.0.0.1"}, "10.0.0.1:1234", "1.2.3.4", "", "1.2.3.4"},
		{"forwarded first hop", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "", "5.6.7.8, 10.0.0.2", "5.6.7.8"},
		{"invalid header kept out", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "not-an-ip", "", "10.0.0.1:1234"},
		{"invalid trusted entry skipped", []string{"bogus", "10.0.0.0/8"}, "10.0.0.1:1234", "1.2.3.4", "", "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"1.2.3.4:80", "1.2.3.4"},
		{"1.2.3.4", "1.2.3.4"},
		{"[::1]:8080", "::1"},
		{"garbage", "garbage"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	defer slog.SetDefault(prev)

	h := Logger("/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("hello"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2 (health at debug):\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "status=200") || !strings.Contains(lines[0], "bytes=5") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") || !strings.Contains(lines[1], "status=404") {
		t.Errorf("second line = %q", lines[1])
	}
}
