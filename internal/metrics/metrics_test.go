package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Research.Example.edu/en/publications", "research.example.edu"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveSession(t *testing.T) {
	Init()
	before := testutil.ToFloat64(sessionsTotal.WithLabelValues("max_pages"))
	ObserveSession("max_pages")
	ObserveSession("max_pages")
	if got := testutil.ToFloat64(sessionsTotal.WithLabelValues("max_pages")); got != before+2 {
		t.Errorf("sessions counter = %f; want %f", got, before+2)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://portal.example.edu", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, in string) {
		if SanitizeSite(in) == "" {
			t.Errorf("SanitizeSite(%q) returned empty string", in)
		}
	})
}
