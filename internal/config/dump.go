package config

import (
	"gopkg.in/yaml.v3"
)

// Redacted returns a copy safe to print: secrets are masked and credentials
// are removed from connection strings.
func (c Config) Redacted() Config {
	out := c
	out.Token.Secret = mask(c.Token.Secret)
	out.Token.PreviousSecret = mask(c.Token.PreviousSecret)
	out.GitHub.ClientSecret = mask(c.GitHub.ClientSecret)
	out.Registry.DSN = redactDSN(c.Registry.DSN)
	out.Registry.RedisURL = redactURL(c.Registry.RedisURL)
	out.GitHub.Scopes = append([]string(nil), c.GitHub.Scopes...)
	out.Routes.Protected = append([]string(nil), c.Routes.Protected...)
	out.Routes.AuthOnly = append([]string(nil), c.Routes.AuthOnly...)
	out.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return out
}

// YAML renders the redacted effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}
