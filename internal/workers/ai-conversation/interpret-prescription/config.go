// internal/workers/ai-conversation/interpret-prescription/config.go
package interpretprescription

import (
	"time"

	"medkit-workers/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	QueryTimeout  time.Duration
	MaxImageBytes int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       90 * time.Second,
		QueryTimeout:  5 * time.Second,
		MaxImageBytes: 8 << 20,
	}
}

func NewConfig(cfg *config.Config) *Config {
	c := LoadConfig()
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	if cfg.Database.Postgres.QueryTimeout > 0 {
		c.QueryTimeout = config.GetDuration(cfg.Database.Postgres.QueryTimeout)
	}
	return c
}
