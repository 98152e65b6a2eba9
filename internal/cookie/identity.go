package cookie

import "fmt"

type SameSite string

const (
	SameSiteLax         SameSite = "lax"
	SameSiteStrict      SameSite = "strict"
	SameSiteNone        SameSite = "none"
	SameSiteUnspecified SameSite = "unspecified"
)

// Identity is the canonical form of one Set-Cookie header.
type Identity struct {
	Name      string   `json:"name"`
	Domain    string   `json:"domain,omitempty"`
	Path      string   `json:"path"`
	Secure    bool     `json:"secure"`
	HTTPOnly  bool     `json:"httpOnly"`
	SameSite  SameSite `json:"sameSite"`
	Expires   string   `json:"expires,omitempty"`
	MaxAge    string   `json:"maxAge,omitempty"`
	Signature string   `json:"signature"`
}

// Signature derives the dedup key from the identity-relevant fields.
// Expires and Max-Age never participate.
func Signature(id Identity) string {
	path := NormalizePath(id.Path)
	if path == "" {
		path = "/"
	}
	sameSite := id.SameSite
	if sameSite == "" {
		sameSite = SameSiteUnspecified
	}

	return fmt.Sprintf(
		"%s|%s|%s|s=%s|h=%s|ss=%s",
		NormalizeCookieName(id.Name),
		NormalizeDomain(id.Domain),
		path,
		flag(id.Secure),
		flag(id.HTTPOnly),
		sameSite,
	)
}

func flag(value bool) string {
	if value {
		return "1"
	}
	return "0"
}
