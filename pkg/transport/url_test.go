// ABOUTME: Tests for NormalizeBaseURL
// ABOUTME: Scheme defaulting, /api root stripping, mount prefixes, and query removal

package transport

import "testing"

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty string", "", ""},
		{"host only", "http://host:3000", "http://host:3000"},
		{"trailing slash", "http://host:3000/", "http://host:3000"},
		{"bare /api root", "http://host:3000/api", "http://host:3000"},
		{"bare /api root with slash", "https://host/api/", "https://host"},
		{"mount prefix kept", "http://host:3000/proxy/api", "http://host:3000/proxy/api"},
		{"missing scheme", "localhost:3000", "http://localhost:3000"},
		{"surrounding space", "  http://host  ", "http://host"},
		{"query and fragment dropped", "http://host/chat?x=1#top", "http://host/chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeBaseURL(tt.input); got != tt.want {
				t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
