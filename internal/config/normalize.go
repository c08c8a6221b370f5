package config

import (
	"strings"
)

func normalize(cfg *Config) {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Token.Secret = strings.TrimSpace(cfg.Token.Secret)
	cfg.Token.PreviousSecret = strings.TrimSpace(cfg.Token.PreviousSecret)

	cfg.GitHub.ClientID = strings.TrimSpace(cfg.GitHub.ClientID)
	cfg.GitHub.ClientSecret = strings.TrimSpace(cfg.GitHub.ClientSecret)
	cfg.GitHub.RedirectURI = strings.TrimSpace(cfg.GitHub.RedirectURI)
	cfg.GitHub.LogoutURL = strings.TrimSpace(cfg.GitHub.LogoutURL)
	cfg.GitHub.Scopes = normalizeList(cfg.GitHub.Scopes)
	if len(cfg.GitHub.Scopes) == 0 {
		cfg.GitHub.Scopes = append([]string(nil), defaultScopes...)
	}

	cfg.Cookie.Name = strings.TrimSpace(cfg.Cookie.Name)
	cfg.Cookie.PreviousName = strings.TrimSpace(cfg.Cookie.PreviousName)
	cfg.Cookie.Domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Cookie.Domain), "."))

	cfg.Routes.Protected = normalizeList(cfg.Routes.Protected)
	cfg.Routes.AuthOnly = normalizeList(cfg.Routes.AuthOnly)
	cfg.Routes.LoginPath = strings.TrimSpace(cfg.Routes.LoginPath)
	if cfg.Routes.LoginPath == "" {
		cfg.Routes.LoginPath = defaultLoginPath
	}

	cfg.Registry.Driver = strings.ToLower(strings.TrimSpace(cfg.Registry.Driver))
	if cfg.Registry.Driver == "" {
		cfg.Registry.Driver = defaultRegistryDriver
	}
	cfg.Registry.DSN = strings.TrimSpace(cfg.Registry.DSN)
	cfg.Registry.RedisURL = normalizeRedisRawURL(cfg.Registry.RedisURL)

	cfg.Legacy.CookieName = strings.TrimSpace(cfg.Legacy.CookieName)
	cfg.Legacy.Until = strings.TrimSpace(cfg.Legacy.Until)

	cfg.Switch.LogoutMode = strings.ToLower(strings.TrimSpace(cfg.Switch.LogoutMode))
	if cfg.Switch.LogoutMode == "" {
		cfg.Switch.LogoutMode = defaultLogoutMode
	}

	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	cfg.Telemetry.OTLPEndpoint = strings.TrimSpace(cfg.Telemetry.OTLPEndpoint)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
}

func normalizeRedisRawURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if strings.Contains(u, "://") {
		return u
	}
	return "redis://" + u
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range normalizeList(origins) {
		out = append(out, strings.TrimRight(origin, "/"))
	}
	return out
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		// env overrides arrive as one comma separated value
		for _, part := range strings.Split(item, ",") {
			v := strings.TrimSpace(part)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", EnvDevelopment:
		return EnvDevelopment
	case "prod", EnvProduction:
		return EnvProduction
	case EnvTest:
		return EnvTest
	}
	return strings.ToLower(strings.TrimSpace(env))
}
