package middleware

import (
	"net/url"
	"path"
	"strings"
)

// RouteClass is the access class of a request path.
type RouteClass int

const (
	Public RouteClass = iota
	Protected
	AuthOnly
)

func (c RouteClass) String() string {
	switch c {
	case Protected:
		return "protected"
	case AuthOnly:
		return "auth_only"
	default:
		return "public"
	}
}

// DefaultLoginPath is where unauthenticated visitors are sent.
const DefaultLoginPath = "/login"

// Routes is the static classification table. Paths not under any prefix are
// Public.
type Routes struct {
	Protected []string
	AuthOnly  []string
	LoginPath string
}

// DefaultRoutes protects the session endpoints and keeps the login page
// AuthOnly.
func DefaultRoutes() Routes {
	return Routes{
		Protected: []string{"/sessions", "/history", "/settings"},
		AuthOnly:  []string{DefaultLoginPath},
		LoginPath: DefaultLoginPath,
	}
}

// Login returns LoginPath or DefaultLoginPath.
func (r Routes) Login() string {
	if strings.TrimSpace(r.LoginPath) == "" {
		return DefaultLoginPath
	}
	return r.LoginPath
}

// Classify matches p against the table on whole path segments. The longest
// matching prefix wins; Protected wins a tie.
func (r Routes) Classify(p string) RouteClass {
	p = cleanPath(p)
	class, best := Public, -1
	for _, prefix := range r.AuthOnly {
		if n := matchPrefix(p, prefix); n > best {
			class, best = AuthOnly, n
		}
	}
	for _, prefix := range r.Protected {
		if n := matchPrefix(p, prefix); n >= best && n >= 0 {
			class, best = Protected, n
		}
	}
	return class
}

// LoginURL builds the redirect to the login page carrying returnTo.
func (r Routes) LoginURL(returnTo string) string {
	if returnTo == "" || returnTo == "/" {
		return r.Login()
	}
	return r.Login() + "?returnTo=" + url.QueryEscape(returnTo)
}

// SanitizeReturnTo accepts only same-origin absolute paths that do not lead
// back to an AuthOnly page. Anything else becomes "/".
func SanitizeReturnTo(raw string, routes Routes) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n\t") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	if routes.Classify(u.Path) == AuthOnly {
		return "/"
	}
	return raw
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// matchPrefix returns len(prefix) when p equals prefix or lies beneath it,
// and -1 otherwise.
func matchPrefix(p, prefix string) int {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return -1
	}
	prefix = cleanPath(prefix)
	if prefix == "/" {
		return 1
	}
	if p == prefix || strings.HasPrefix(p, prefix+"/") {
		return len(prefix)
	}
	return -1
}
