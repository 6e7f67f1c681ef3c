// Package postgres is the relational persistence gateway, through GORM.
package postgres

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	Environment     string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens a pooled PostgreSQL connection. Tables are migrated in
// development only, production schemas are managed outside the service.
func Connect(dsn string, opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(opts.Environment))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(valueOr(opts.MaxIdleConns, 10))
	sqlDB.SetMaxOpenConns(valueOr(opts.MaxOpenConns, 100))
	sqlDB.SetConnMaxLifetime(valueOr(opts.ConnMaxLifetime, time.Hour))

	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.Environment == "development" {
		if err = Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates or updates chat_sessions, chat_messages and user_presence.
func Migrate(db *gorm.DB) error {
	models := []any{
		&SessionModel{},
		&MessageModel{},
		&PresenceModel{},
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// gormConfig turns driver constraint codes into gorm.ErrDuplicatedKey and
// gorm.ErrForeignKeyViolated.
func gormConfig(environment string) *gorm.Config {
	return &gorm.Config{
		Logger:         gormLogger(environment),
		TranslateError: true,
	}
}

func gormLogger(environment string) logger.Interface {
	if environment == "production" {
		return logger.Default.LogMode(logger.Silent)
	}
	return logger.Default.LogMode(logger.Warn)
}

func valueOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
