package database

import (
	"fmt"
	"time"

	"github.com/mx-space/authgate/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options configures Connect.
type Options struct {
	DSN         string
	Dev         bool
	AutoMigrate bool
}

// Connect opens a MySQL connection for the session registry and optionally
// migrates the session table.
func Connect(opts Options) (*gorm.DB, error) {
	db, err := openDB(opts.DSN, resolveLogLevel(opts.Dev))
	if err != nil {
		return nil, err
	}

	if opts.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return db, nil
}

func resolveLogLevel(dev bool) logger.LogLevel {
	if dev {
		return logger.Info
	}
	return logger.Warn
}

func openDB(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize: 191,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate creates or updates the session table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.UserSession{})
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
