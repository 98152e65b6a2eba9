package cookie

import "strings"

// Parse turns a single Set-Cookie header value into an Identity. The second
// return value is false when the header carries no usable cookie name; such
// headers are meant to be dropped by the caller without further noise.
func Parse(header string) (Identity, bool) {
	segments := splitSegments(header)
	if len(segments) == 0 {
		return Identity{}, false
	}

	first := segments[0]
	eq := strings.IndexByte(first, '=')
	if eq < 0 {
		return Identity{}, false
	}
	name := strings.TrimSpace(first[:eq])
	if name == "" {
		return Identity{}, false
	}

	id := Identity{
		Name:     name,
		Path:     "/",
		SameSite: SameSiteUnspecified,
	}

	for _, segment := range segments[1:] {
		switch strings.ToLower(segment) {
		case "secure":
			id.Secure = true
			continue
		case "httponly":
			id.HTTPOnly = true
			continue
		}

		eq := strings.IndexByte(segment, '=')
		if eq <= 0 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(segment[:eq]))
		value := strings.TrimSpace(segment[eq+1:])

		switch key {
		case "domain":
			id.Domain = NormalizeDomain(value)
		case "path":
			if path := NormalizePath(value); path != "" {
				id.Path = path
			}
		case "samesite":
			id.SameSite = NormalizeSameSite(value)
		case "expires":
			id.Expires = value
		case "max-age":
			id.MaxAge = value
		}
	}

	id.Signature = Signature(id)
	return id, true
}

func splitSegments(header string) []string {
	raw := strings.Split(header, ";")
	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		trimmed := strings.TrimSpace(segment)
		if trimmed == "" {
			continue
		}
		segments = append(segments, trimmed)
	}
	return segments
}
