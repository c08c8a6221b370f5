package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

// MySQLDSN returns registry.dsn with the options the session table needs:
// parseTime on and UTC timestamps.
func (c RegistryConfig) MySQLDSN() (string, error) {
	parsed, err := mysql.ParseDSN(c.DSN)
	if err != nil {
		return "", err
	}
	parsed.ParseTime = true
	if parsed.Loc == nil || parsed.Loc == time.Local {
		parsed.Loc = time.UTC
	}
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	if _, ok := parsed.Params["charset"]; !ok {
		parsed.Params["charset"] = "utf8mb4"
	}
	return parsed.FormatDSN(), nil
}

// RedisOptions parses registry.redis_url.
func (c RegistryConfig) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, fmt.Errorf("redis_url is empty")
	}
	return redis.ParseURL(c.RedisURL)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return redacted
	}
	if parsed.Passwd != "" {
		parsed.Passwd = redacted
	}
	return parsed.FormatDSN()
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	return u.String()
}
