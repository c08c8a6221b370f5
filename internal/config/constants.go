package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	// EnvPrefix prefixes every environment override, e.g. AUTHGATE_TOKEN_SECRET.
	EnvPrefix = "AUTHGATE"

	defaultPort           = 2333
	defaultEnv            = "development"
	defaultTokenTTL       = 7 * 24 * time.Hour
	defaultLogoutTimeout  = 3 * time.Second
	defaultLogoutMode     = "interstitial"
	defaultLoginPath      = "/login"
	defaultRegistryDriver = "memory"
	defaultRateLimitRPS   = 2
	defaultRateLimitBurst = 20
	defaultLogLevel       = "info"

	redacted = "******"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Registry drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
)

var (
	defaultScopes    = []string{"read:user", "user:email"}
	defaultProtected = []string{"/sessions", "/history", "/settings"}
	defaultAuthOnly  = []string{"/login"}
)
