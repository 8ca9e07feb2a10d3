// Package platform decides which media URLs the service is willing to hand to
// the extractor.
package platform

import (
	"net/url"
	"strings"
)

// supportedDomains is matched against the host exactly or as a dot-separated suffix,
// so both bare and www./m. prefixed hosts are accepted.
var supportedDomains = []string{
	"youtube.com",
	"youtu.be",
	"tiktok.com",
	"instagram.com",
	"facebook.com",
	"fb.watch",
	"twitter.com",
	"x.com",
	"vimeo.com",
	"dailymotion.com",
	"dai.ly",
	"twitch.tv",
}

// Domains returns a copy of the allowlist.
func Domains() []string {
	out := make([]string, len(supportedDomains))
	copy(out, supportedDomains)

	return out
}

// IsSupported reports whether rawURL points at an allowlisted platform.
// Malformed input is reported as unsupported, never as an error.
func IsSupported(rawURL string) bool {
	_, ok := Match(rawURL)

	return ok
}

// Match returns the allowlisted domain that rawURL belongs to.
func Match(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}

	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", false
	}

	for _, d := range supportedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}

	return "", false
}
