package cookie

import (
	"regexp"
	"strings"
)

func NormalizeCookieName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeDomain reduces a Domain attribute or URL-ish value to a bare host.
// The result is stable: NormalizeDomain(NormalizeDomain(x)) == NormalizeDomain(x).
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	for {
		previous := d
		d = strings.TrimLeft(d, ".")
		d = strings.TrimPrefix(d, "http://")
		d = strings.TrimPrefix(d, "https://")
		d = strings.TrimSpace(d)
		if d == previous {
			break
		}
	}

	if index := strings.IndexByte(d, '/'); index >= 0 {
		d = d[:index]
	}
	return strings.TrimSpace(d)
}

// NormalizePath returns "" when the path is absent.
func NormalizePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func NormalizeSameSite(value string) SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "lax":
		return SameSiteLax
	case "strict":
		return SameSiteStrict
	case "none":
		return SameSiteNone
	default:
		return SameSiteUnspecified
	}
}

func IsSubdomainOf(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasSuffix(child, "."+parent)
}

// WildcardPattern compiles a cookie-name pattern where '*' matches any run of
// characters. Everything else matches literally and case-insensitively.
func WildcardPattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for index, part := range parts {
		parts[index] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
}
