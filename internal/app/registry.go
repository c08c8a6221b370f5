package app

import (
	"context"
	"fmt"

	"github.com/mx-space/authgate/internal/config"
	"github.com/mx-space/authgate/internal/database"
	"github.com/mx-space/authgate/internal/pkg/session"
	pkgredis "github.com/mx-space/authgate/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type registryStore struct {
	registry session.Registry
	// redis is set for the redis driver and shared with the rate limiter.
	redis *redis.Client
	close func(context.Context) error
}

func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*registryStore, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Registry.Driver {
	case config.DriverMemory:
		if !cfg.IsDev() {
			logger.Warn("memory session registry in production: sessions are lost on restart and not shared between instances")
		}
		return &registryStore{registry: session.NewMemory(), close: noop}, nil

	case config.DriverRedis:
		opts, err := cfg.Registry.RedisOptions()
		if err != nil {
			return nil, err
		}
		rdb, err := pkgredis.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &registryStore{
			registry: session.NewRedis(rdb, session.DefaultRedisPrefix),
			redis:    rdb,
			close:    func(context.Context) error { return rdb.Close() },
		}, nil

	case config.DriverMySQL:
		dsn, err := cfg.Registry.MySQLDSN()
		if err != nil {
			return nil, err
		}
		db, err := database.Connect(database.Options{DSN: dsn, Dev: cfg.IsDev(), AutoMigrate: true})
		if err != nil {
			return nil, err
		}
		return &registryStore{
			registry: session.NewGorm(db),
			close:    func(context.Context) error { return database.Close(db) },
		}, nil
	}
	return nil, fmt.Errorf("unknown registry driver %q", cfg.Registry.Driver)
}
