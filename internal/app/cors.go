package app

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/mx-space/authgate/internal/config"
)

// originPattern is one allowed_origins entry. The host may start with "*."
// to cover subdomains and the port may be "*" to cover every port.
type originPattern struct {
	scheme string
	host   string
	port   string
}

// parseOriginPattern splits "scheme://host[:port]". url.Parse rejects a
// "*" port, so the authority is split by hand.
func parseOriginPattern(raw string) (originPattern, bool) {
	scheme, authority, ok := strings.Cut(strings.TrimRight(strings.TrimSpace(raw), "/"), "://")
	if !ok || authority == "" || strings.ContainsAny(authority, "/?#@") {
		return originPattern{}, false
	}
	p := originPattern{scheme: strings.ToLower(scheme), host: strings.ToLower(authority)}
	if i := strings.LastIndexByte(authority, ':'); i >= 0 && !strings.HasSuffix(authority, "]") {
		p.host, p.port = strings.ToLower(authority[:i]), authority[i+1:]
		if p.port == "" {
			return originPattern{}, false
		}
	}
	return p, p.host != ""
}

func (p originPattern) match(origin *url.URL) bool {
	if !strings.EqualFold(origin.Scheme, p.scheme) {
		return false
	}
	host := strings.ToLower(origin.Hostname())
	if strings.HasPrefix(p.host, "*.") {
		// the bare parent domain is not a subdomain
		if !strings.HasSuffix(host, p.host[1:]) {
			return false
		}
	} else if host != strings.Trim(p.host, "[]") {
		return false
	}
	switch p.port {
	case "*":
		return true
	case "":
		return origin.Port() == ""
	default:
		return origin.Port() == p.port
	}
}

// originAllowList is the compiled allowed_origins setting. Entries that do
// not parse match nothing; config validation reports them at startup.
type originAllowList []originPattern

func newOriginAllowList(origins []string) originAllowList {
	list := make(originAllowList, 0, len(origins))
	for _, raw := range origins {
		if p, ok := parseOriginPattern(raw); ok {
			list = append(list, p)
		}
	}
	return list
}

// Allow reports whether a request Origin header is listed.
func (l originAllowList) Allow(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || strings.Contains(u.Host, "*") {
		return false
	}
	for _, p := range l {
		if p.match(u) {
			return true
		}
	}
	return false
}

// corsConfig allows credentialed requests from allowed_origins. Without a
// list, development allows every origin and other environments none.
func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	switch {
	case len(cfg.AllowedOrigins) > 0:
		c.AllowOriginFunc = newOriginAllowList(cfg.AllowedOrigins).Allow
	case cfg.IsDev():
		c.AllowOriginFunc = func(string) bool { return true }
	default:
		c.AllowOriginFunc = func(string) bool { return false }
	}
	return c
}
