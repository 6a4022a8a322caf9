// internal/workers/medicine/search-medicines/config.go
package searchmedicines

import (
	"time"

	"medkit-workers/internal/common/config"
)

type Config struct {
	Timeout      time.Duration
	QueryTimeout time.Duration
	MaxResults   int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      60 * time.Second,
		QueryTimeout: 5 * time.Second,
		MaxResults:   100,
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
