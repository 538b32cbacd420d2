package cookiejar

import (
	"strconv"
	"strings"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// SameSite is the value of a cookie's SameSite attribute.
type SameSite string

const (
	// SameSiteStrict means the cookie is only sent in a first-party context.
	SameSiteStrict SameSite = "Strict"
	// SameSiteLax means the cookie is also sent with top-level navigation.
	SameSiteLax SameSite = "Lax"
	// SameSiteNone means the cookie is sent in all contexts.
	SameSiteNone SameSite = "None"
)

// ParseSameSite converts an attribute value to a SameSite, ignoring case.
func ParseSameSite(value string) (SameSite, error) {
	for _, s := range []SameSite{SameSiteStrict, SameSiteLax, SameSiteNone} {
		if strings.EqualFold(string(s), value) {
			return s, nil
		}
	}
	return "", errBadSameSite(value)
}

// Cookie is one cookie as set by a server.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time // zero if not set
	MaxAge   ldvalue.OptionalInt
	Secure   bool
	HTTPOnly bool
	SameSite SameSite // empty if not set

	// CreatedAt is when the cookie was received. Max-Age is relative to this.
	CreatedAt time.Time
}

// Key identifies a cookie within a jar. A jar never holds two cookies with the same Key.
type Key struct {
	Name   string
	Domain string
	Path   string
}

// Key returns the identity of the cookie.
func (c Cookie) Key() Key {
	return Key{Name: c.Name, Domain: strings.ToLower(c.Domain), Path: c.Path}
}

// Parse parses the value of a Set-Cookie header. Unknown attributes and unparseable attribute values
// are ignored, as browsers do; only a missing name=value pair is an error.
func Parse(header string, now time.Time) (Cookie, error) {
	parts := strings.Split(header, ";")
	first := strings.TrimSpace(parts[0])
	if first == "" {
		return Cookie{}, errEmptySetCookie
	}
	name, value, ok := strings.Cut(first, "=")
	if !ok {
		return Cookie{}, errMissingEquals
	}
	c := Cookie{
		Name:      strings.TrimSpace(name),
		Value:     strings.Trim(strings.TrimSpace(value), `"`),
		CreatedAt: now,
	}
	if c.Name == "" {
		return Cookie{}, errEmptyName
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		attr, val, hasValue := strings.Cut(part, "=")
		attr = strings.ToLower(strings.TrimSpace(attr))
		val = strings.TrimSpace(val)
		if !hasValue {
			switch attr {
			case "secure":
				c.Secure = true
			case "httponly":
				c.HTTPOnly = true
			}
			continue
		}
		switch attr {
		case "domain":
			c.Domain = strings.ToLower(val)
		case "path":
			if strings.HasPrefix(val, "/") {
				c.Path = val
			}
		case "expires":
			if t, err := parseHTTPDate(val); err == nil {
				c.Expires = t
			}
		case "max-age":
			if n, err := strconv.Atoi(val); err == nil {
				c.MaxAge = ldvalue.NewOptionalInt(n)
			}
		case "samesite":
			if s, err := ParseSameSite(val); err == nil {
				c.SameSite = s
			}
		}
	}
	return c, nil
}

var httpDateLayouts = []string{ //nolint:gochecknoglobals
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	time.RFC850,
	time.ANSIC,
	time.RFC3339,
}

func parseHTTPDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range httpDateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// IsExpired returns true if the cookie is no longer valid at the reference time. A Max-Age of zero or
// less always means expired.
func (c Cookie) IsExpired(ref time.Time) bool {
	if !c.Expires.IsZero() && !c.Expires.After(ref) {
		return true
	}
	if maxAge, ok := c.MaxAge.Get(); ok {
		if maxAge <= 0 {
			return true
		}
		if !c.CreatedAt.Add(time.Duration(maxAge) * time.Second).After(ref) {
			return true
		}
	}
	return false
}

// MatchesDomain returns true if the cookie should be sent to the given host. A domain with a leading
// dot also matches every subdomain.
func (c Cookie) MatchesDomain(host string) bool {
	if c.Domain == "" {
		return true
	}
	domain := strings.ToLower(c.Domain)
	host = strings.ToLower(host)
	if domain == host {
		return true
	}
	if strings.HasPrefix(domain, ".") {
		return host == domain[1:] || strings.HasSuffix(host, domain)
	}
	return false
}

// MatchesPath returns true if the cookie should be sent with a request for the given path.
func (c Cookie) MatchesPath(requestPath string) bool {
	cookiePath := c.effectivePath()
	if requestPath == "" {
		requestPath = "/"
	}
	if cookiePath == requestPath {
		return true
	}
	if strings.HasPrefix(requestPath, cookiePath) {
		return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
	}
	return false
}

func (c Cookie) effectivePath() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

// HeaderValue returns the cookie in the name=value form used in a Cookie request header.
func (c Cookie) HeaderValue() string {
	return c.Name + "=" + c.Value
}
