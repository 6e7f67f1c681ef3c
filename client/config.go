package client

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from CHAT_* environment variables.
type Config struct {
	ServerURL         string        `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	Token             string        `envconfig:"TOKEN"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"60s"`
	PollInterval      time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	MaxRetries        uint64        `envconfig:"MAX_RETRIES" default:"3"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("CHAT", &cfg); err != nil {
		return Config{}, fmt.Errorf("client config: %w", err)
	}
	return cfg, nil
}
