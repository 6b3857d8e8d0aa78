package uploads

import (
	"net/http"
	"strings"
)

// PathPrefix is the URL path under which stored files are served.
const PathPrefix = "/uploads/"

// Resolve returns the public URL of a stored file, or "" for an empty filename.
func Resolve(origin, filename string) string {
	if filename == "" {
		return ""
	}
	return strings.TrimRight(origin, "/") + PathPrefix + filename
}

// OriginPolicy decides how the public origin of a request is derived.
// X-Forwarded-Proto and X-Forwarded-Host are client-controlled unless a
// proxy in front rewrites them, so they are only read when TrustForwarded
// is set.
type OriginPolicy struct {
	PublicURL      string
	TrustForwarded bool
}

// Origin returns scheme://host for the request. A configured PublicURL takes
// precedence over anything the request carries.
func (p OriginPolicy) Origin(r *http.Request) string {
	if p.PublicURL != "" {
		return strings.TrimRight(p.PublicURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if p.TrustForwarded {
		if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
			scheme = proto
		}
		if fwd := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			host = fwd
		}
	}

	return scheme + "://" + host
}

// firstHeaderValue returns the first entry of a comma-separated header value.
func firstHeaderValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
