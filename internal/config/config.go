// Package config loads authgate's startup configuration from an optional
// YAML file and AUTHGATE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the validated runtime configuration.
type Config struct {
	Env            string          `mapstructure:"env" yaml:"env"`
	Port           int             `mapstructure:"port" yaml:"port"`
	Token          TokenConfig     `mapstructure:"token" yaml:"token"`
	GitHub         GitHubConfig    `mapstructure:"github" yaml:"github"`
	Cookie         CookieConfig    `mapstructure:"cookie" yaml:"cookie"`
	Routes         RoutesConfig    `mapstructure:"routes" yaml:"routes"`
	Registry       RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	Legacy         LegacyConfig    `mapstructure:"legacy" yaml:"legacy"`
	Switch         SwitchConfig    `mapstructure:"switch" yaml:"switch"`
	AllowedOrigins []string        `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Telemetry      TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Log            LogConfig       `mapstructure:"log" yaml:"log"`
}

type TokenConfig struct {
	Secret         string        `mapstructure:"secret" yaml:"secret"`
	PreviousSecret string        `mapstructure:"previous_secret" yaml:"previous_secret,omitempty"`
	TTL            time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type GitHubConfig struct {
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri" yaml:"redirect_uri"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
	LogoutURL    string   `mapstructure:"logout_url" yaml:"logout_url"`
}

type CookieConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	PreviousName string `mapstructure:"previous_name" yaml:"previous_name"`
	Domain       string `mapstructure:"domain" yaml:"domain,omitempty"`
	InsecureDev  bool   `mapstructure:"insecure_dev" yaml:"insecure_dev"`
}

type RoutesConfig struct {
	Protected []string `mapstructure:"protected" yaml:"protected"`
	AuthOnly  []string `mapstructure:"auth_only" yaml:"auth_only"`
	LoginPath string   `mapstructure:"login_path" yaml:"login_path"`
}

type RegistryConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	DSN      string `mapstructure:"dsn" yaml:"dsn,omitempty"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url,omitempty"`
}

// LegacyConfig time-boxes acceptance of the unsigned pre-migration cookie.
// Until accepts RFC 3339 or a plain date; it is parsed into UntilTime.
type LegacyConfig struct {
	Enabled    bool      `mapstructure:"enabled" yaml:"enabled"`
	CookieName string    `mapstructure:"cookie_name" yaml:"cookie_name"`
	Until      string    `mapstructure:"until" yaml:"until,omitempty"`
	Upgrade    bool      `mapstructure:"upgrade" yaml:"upgrade"`
	UntilTime  time.Time `mapstructure:"-" yaml:"-"`
}

type SwitchConfig struct {
	LogoutTimeout time.Duration `mapstructure:"logout_timeout" yaml:"logout_timeout"`
	LogoutMode    string        `mapstructure:"logout_mode" yaml:"logout_mode"`
}

type RateLimitConfig struct {
	PerSecond int `mapstructure:"per_second" yaml:"per_second"`
	Burst     int `mapstructure:"burst" yaml:"burst"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configPath when it exists, applies AUTHGATE_* overrides and
// validates the result. An explicitly named file that is missing is an
// error; the default path is optional.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path := strings.TrimSpace(configPath)
	explicit := path != ""
	if !explicit {
		path = ResolveConfigPath(DefaultConfigPath)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("read config file %q: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", defaultEnv)
	v.SetDefault("port", defaultPort)

	v.SetDefault("token.secret", "")
	v.SetDefault("token.previous_secret", "")
	v.SetDefault("token.ttl", defaultTokenTTL)

	v.SetDefault("github.client_id", "")
	v.SetDefault("github.client_secret", "")
	v.SetDefault("github.redirect_uri", "")
	v.SetDefault("github.scopes", defaultScopes)
	v.SetDefault("github.logout_url", "https://github.com/logout")

	v.SetDefault("cookie.name", "authgate_session")
	v.SetDefault("cookie.previous_name", "authgate_previous")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.insecure_dev", false)

	v.SetDefault("routes.protected", defaultProtected)
	v.SetDefault("routes.auth_only", defaultAuthOnly)
	v.SetDefault("routes.login_path", defaultLoginPath)

	v.SetDefault("registry.driver", defaultRegistryDriver)
	v.SetDefault("registry.dsn", "")
	v.SetDefault("registry.redis_url", "")

	v.SetDefault("legacy.enabled", false)
	v.SetDefault("legacy.cookie_name", "gh_user")
	v.SetDefault("legacy.until", "")
	v.SetDefault("legacy.upgrade", false)

	v.SetDefault("switch.logout_timeout", defaultLogoutTimeout)
	v.SetDefault("switch.logout_mode", defaultLogoutMode)

	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("rate_limit.per_second", defaultRateLimitRPS)
	v.SetDefault("rate_limit.burst", defaultRateLimitBurst)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", "")
}

func (c *Config) IsDev() bool {
	return c.Env == EnvDevelopment
}
