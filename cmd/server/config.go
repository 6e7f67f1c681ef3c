package main

import (
	"fmt"
	"time"

	"support-chat/services"
)

const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

type Config struct {
	Environment        string        `env:"ENVIRONMENT,default=development"`
	LogLevel           string        `env:"LOG_LEVEL,default=INFO"`
	HTTPPort           int           `env:"HTTP_PORT,default=8080"`
	GRPCPort           int           `env:"GRPC_PORT,default=9090"`
	DebugPort          int           `env:"DEBUG_PORT,default=8081"`
	StorageDriver      string        `env:"STORAGE_DRIVER,default=badger"`
	BadgerFilepath     string        `env:"BADGER_FILEPATH,default=./data/badger"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	RedisURL           string        `env:"REDIS_URL"`
	RedisDB            int           `env:"REDIS_DB,default=0"`
	BlugeFilepath      string        `env:"BLUGE_FILEPATH"`
	JWTSecret          string        `env:"JWT_SECRET,required=true"`
	TokenTTL           time.Duration `env:"TOKEN_TTL,default=24h"`
	OperationTimeout   time.Duration `env:"OPERATION_TIMEOUT,default=15s"`
	MaxContentLength   int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL,default=60s"`
	PresenceWindow     time.Duration `env:"PRESENCE_WINDOW,default=90s"`
	LeaseRetention     time.Duration `env:"LEASE_RETENTION,default=168h"`
	ModerationEnabled  bool          `env:"MODERATION_ENABLED,default=true"`
	CharReplacement    string        `env:"CHARACTER_REPLACEMENT,default=*"`
	SubscriberBuffer   int           `env:"SUBSCRIBER_BUFFER,default=64"`
	SinkTimeout        time.Duration `env:"SINK_TIMEOUT,default=5s"`
	MetricInterval     time.Duration `env:"METRIC_INTERVAL,default=30s"`
	FeedSaturation     float64       `env:"FEED_SATURATION_THRESHOLD,default=0.8"`
	IndexBatchSize     int           `env:"INDEX_BATCH_SIZE,default=50"`
	IndexBufferTimeout time.Duration `env:"INDEX_BUFFER_TIMEOUT,default=2s"`
	RestartInterval    time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required with the %s driver", DriverBadger)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %s or %s, got %q", DriverBadger, DriverPostgres, c.StorageDriver)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	// a lease must outlive the gap between two heartbeats
	if c.PresenceWindow < c.HeartbeatInterval {
		return fmt.Errorf("PRESENCE_WINDOW (%s) must be at least HEARTBEAT_INTERVAL (%s)",
			c.PresenceWindow, c.HeartbeatInterval)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive, got %s", c.OperationTimeout)
	}
	if c.MetricInterval <= 0 || c.IndexBufferTimeout <= 0 {
		return fmt.Errorf("METRIC_INTERVAL and INDEX_BUFFER_TIMEOUT must be positive")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	if _, err := c.CharacterRune(); err != nil {
		return err
	}
	return nil
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}

func (c Config) serviceOptions() services.Options {
	return services.Options{
		OperationTimeout: c.OperationTimeout,
		MaxContentLength: c.MaxContentLength,
	}
}
