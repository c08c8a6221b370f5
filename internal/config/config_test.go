package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
token:
  secret: ` + validSecret + `
github:
  client_id: cid
  client_secret: csecret
`

func configKeys(err error) []string {
	var keys []string
	var walk func(error)
	walk = func(err error) {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		var ce *ConfigError
		if errors.As(err, &ce) {
			keys = append(keys, ce.Key)
		}
	}
	walk(err)
	return keys
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.TTL)
	assert.Equal(t, "authgate_session", cfg.Cookie.Name)
	assert.Equal(t, []string{"/sessions", "/history", "/settings"}, cfg.Routes.Protected)
	assert.Equal(t, []string{"/login"}, cfg.Routes.AuthOnly)
	assert.Equal(t, DriverMemory, cfg.Registry.Driver)
	assert.Equal(t, 3*time.Second, cfg.Switch.LogoutTimeout)
	assert.Equal(t, "interstitial", cfg.Switch.LogoutMode)
	assert.Equal(t, []string{"read:user", "user:email"}, cfg.GitHub.Scopes)
	assert.True(t, cfg.IsDev())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTHGATE_TOKEN_TTL", "12h")
	t.Setenv("AUTHGATE_ROUTES_PROTECTED", "/admin, /billing")
	t.Setenv("AUTHGATE_SWITCH_LOGOUT_MODE", "none")
	t.Setenv("AUTHGATE_GITHUB_CLIENT_ID", "from-env")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, cfg.Token.TTL)
	assert.Equal(t, []string{"/admin", "/billing"}, cfg.Routes.Protected)
	assert.Equal(t, "none", cfg.Switch.LogoutMode)
	assert.Equal(t, "from-env", cfg.GitHub.ClientID)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTHGATE_TOKEN_SECRET", validSecret)
	t.Setenv("AUTHGATE_GITHUB_CLIENT_ID", "cid")
	t.Setenv("AUTHGATE_GITHUB_CLIENT_SECRET", "csecret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, validSecret, cfg.Token.Secret)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	base := func(extra string) string { return minimalYAML + extra }
	table := []struct {
		name string
		body string
		key  string
	}{
		{"missing secret", "github: {client_id: a, client_secret: b}\n", "token.secret"},
		{"short secret", "token: {secret: tooshort}\ngithub: {client_id: a, client_secret: b}\n", "token.secret"},
		{"missing provider", "token: {secret: " + validSecret + "}\n", "github.client_id"},
		{"negative ttl", "token: {secret: " + validSecret + ", ttl: -1h}\ngithub: {client_id: a, client_secret: b}\n", "token.ttl"},
		{"public suffix domain", base("cookie: {domain: github.io}\n"), "cookie.domain"},
		{"tld domain", base("cookie: {domain: .com}\n"), "cookie.domain"},
		{"bad dsn", base("registry: {driver: mysql, dsn: 'not a dsn'}\n"), "registry.dsn"},
		{"unknown driver", base("registry: {driver: etcd}\n"), "registry.driver"},
		{"legacy without until", base("legacy: {enabled: true}\n"), "legacy.until"},
		{"legacy bad until", base("legacy: {enabled: true, until: soon}\n"), "legacy.until"},
		{"insecure cookie in production", base("env: production\ncookie: {insecure_dev: true}\n"), "cookie.insecure_dev"},
		{"unknown logout mode", base("switch: {logout_mode: popup}\n"), "switch.logout_mode"},
		{"bad origin", base("allowed_origins: [example.com]\n"), "allowed_origins"},
		{"origin with path", base("allowed_origins: ['https://app.example.com/admin']\n"), "allowed_origins"},
		{"inner wildcard", base("allowed_origins: ['https://app.*.example.com']\n"), "allowed_origins"},
		{"burst below rate", base("rate_limit: {per_second: 10, burst: 5}\n"), "rate_limit.burst"},
	}
	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, configKeys(err), tc.key)
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	body := minimalYAML + `
env: production
cookie:
  domain: .App.Example.com
registry:
  driver: mysql
  dsn: user:pw@tcp(db:3306)/authgate
legacy:
  enabled: true
  until: "2026-12-31"
allowed_origins:
  - https://app.example.com/
  - https://*.preview.example.com
  - http://localhost:*
rate_limit:
  per_second: 5
  burst: 5
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", cfg.Cookie.Domain)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Legacy.UntilTime)
	assert.Equal(t, []string{"https://app.example.com", "https://*.preview.example.com", "http://localhost:*"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.RateLimit.Burst)

	dsn, err := cfg.Registry.MySQLDSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestRedactedYAML(t *testing.T) {
	body := minimalYAML + `
registry:
  driver: redis
  redis_url: redis://:hunter2@cache:6379/0
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, validSecret)
	assert.NotContains(t, s, "csecret")
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "client_id: cid")
	assert.Contains(t, s, "ttl: 168h0m0s")
	assert.Equal(t, validSecret, cfg.Token.Secret, "redaction works on a copy")
}
