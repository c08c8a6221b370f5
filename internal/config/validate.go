package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mx-space/authgate/internal/pkg/jwt"
	"golang.org/x/net/publicsuffix"
)

// ConfigError is a fatal startup problem with one option.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Msg)
}

func invalid(key, format string, args ...any) error {
	return &ConfigError{Key: key, Msg: fmt.Sprintf(format, args...)}
}

// Validate checks every option and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		add(invalid("env", "unknown environment %q", c.Env))
	}
	if c.Port < 1 || c.Port > 65535 {
		add(invalid("port", "%d is out of range 1-65535", c.Port))
	}

	add(checkSecret("token.secret", c.Token.Secret, true))
	add(checkSecret("token.previous_secret", c.Token.PreviousSecret, false))
	if c.Token.Secret != "" && c.Token.Secret == c.Token.PreviousSecret {
		add(invalid("token.previous_secret", "must differ from token.secret"))
	}
	if c.Token.TTL <= 0 {
		add(invalid("token.ttl", "must be positive, got %s", c.Token.TTL))
	}

	if c.GitHub.ClientID == "" {
		add(invalid("github.client_id", "is required"))
	}
	if c.GitHub.ClientSecret == "" {
		add(invalid("github.client_secret", "is required"))
	}
	if c.GitHub.RedirectURI != "" {
		add(checkAbsoluteURL("github.redirect_uri", c.GitHub.RedirectURI))
	}

	if c.Cookie.Name == "" {
		add(invalid("cookie.name", "is required"))
	}
	if c.Cookie.PreviousName == "" || c.Cookie.PreviousName == c.Cookie.Name {
		add(invalid("cookie.previous_name", "must be set and differ from cookie.name"))
	}
	add(checkCookieDomain(c.Cookie.Domain))
	if c.Cookie.InsecureDev && c.Env == EnvProduction {
		add(invalid("cookie.insecure_dev", "is not allowed in production"))
	}

	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		add(invalid("routes.login_path", "must start with /"))
	}
	for _, p := range append(append([]string{}, c.Routes.Protected...), c.Routes.AuthOnly...) {
		if !strings.HasPrefix(p, "/") {
			add(invalid("routes", "pattern %q must start with /", p))
		}
	}

	switch c.Registry.Driver {
	case DriverMemory:
	case DriverMySQL:
		if c.Registry.DSN == "" {
			add(invalid("registry.dsn", "is required for the mysql driver"))
		} else if _, err := c.Registry.MySQLDSN(); err != nil {
			add(invalid("registry.dsn", "unparsable: %v", err))
		}
	case DriverRedis:
		if _, err := c.Registry.RedisOptions(); err != nil {
			add(invalid("registry.redis_url", "unparsable: %v", err))
		}
	default:
		add(invalid("registry.driver", "unknown driver %q, expected memory, redis or mysql", c.Registry.Driver))
	}

	if c.Legacy.Enabled {
		if c.Legacy.CookieName == "" {
			add(invalid("legacy.cookie_name", "is required when legacy.enabled is set"))
		}
		if c.Legacy.Until == "" {
			add(invalid("legacy.until", "is required when legacy.enabled is set"))
		} else if t, err := parseUntil(c.Legacy.Until); err != nil {
			add(invalid("legacy.until", "%v", err))
		} else {
			c.Legacy.UntilTime = t
		}
	}

	if c.Switch.LogoutTimeout < 0 {
		add(invalid("switch.logout_timeout", "must not be negative"))
	}
	switch c.Switch.LogoutMode {
	case "interstitial", "http", "none":
	default:
		add(invalid("switch.logout_mode", "unknown mode %q, expected interstitial, http or none", c.Switch.LogoutMode))
	}

	for _, origin := range c.AllowedOrigins {
		add(checkOrigin(origin))
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		add(invalid("rate_limit", "per_second and burst must not be negative"))
	} else if c.RateLimit.Burst > 0 && c.RateLimit.Burst < c.RateLimit.PerSecond {
		add(invalid("rate_limit.burst", "must be at least per_second (%d)", c.RateLimit.PerSecond))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		add(invalid("log.format", "unknown format %q, expected console or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

func checkSecret(key, secret string, required bool) error {
	if secret == "" && !required {
		return nil
	}
	if err := jwt.CheckSecret(secret); err != nil {
		if secret == "" {
			return invalid(key, "is required")
		}
		return invalid(key, "must be at least %d characters", jwt.MinSecretLength)
	}
	return nil
}

func checkAbsoluteURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid(key, "%q is not an absolute http(s) URL", raw)
	}
	return nil
}

// checkOrigin accepts "scheme://host[:port]" where the host may start with
// "*." and the port may be "*".
func checkOrigin(raw string) error {
	u, err := url.Parse(strings.TrimSuffix(raw, ":*"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") ||
		u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return invalid("allowed_origins", "%q is not an http(s) origin", raw)
	}
	if strings.Contains(strings.TrimPrefix(u.Hostname(), "*."), "*") {
		return invalid("allowed_origins", "%q may only use a leading *. wildcard", raw)
	}
	return nil
}

// checkCookieDomain refuses public suffixes such as "com" or "github.io",
// which browsers would reject or share across unrelated sites.
func checkCookieDomain(domain string) error {
	if domain == "" || domain == "localhost" {
		return nil
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	if suffix == domain {
		return invalid("cookie.domain", "%q is a public suffix", domain)
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(domain); err != nil {
		return invalid("cookie.domain", "%v", err)
	}
	return nil
}

func parseUntil(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", raw)
	}
	// a plain date covers that whole day
	return t.Add(24 * time.Hour).UTC(), nil
}
