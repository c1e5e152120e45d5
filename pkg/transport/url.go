// ABOUTME: Backend base URL cleanup applied once when a Client is created
// ABOUTME: Adds a missing scheme and drops a bare /api root that endpoint paths already carry

package transport

import (
	"net/url"
	"strings"
)

// NormalizeBaseURL returns baseURL in the form endpoint paths are appended
// to: scheme and host plus any mount prefix, no trailing slash, no query.
// A host given without a scheme gets http://. A path of exactly /api is
// dropped so "/api/chat/stream" is not doubled; a nested /api is a mount
// prefix and stays.
func NormalizeBaseURL(baseURL string) string {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	if u.Path == "/api" {
		u.Path = ""
	}
	return u.String()
}
