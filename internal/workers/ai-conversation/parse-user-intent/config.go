// internal/workers/ai-conversation/parse-user-intent/config.go
package parseuserintent

import (
	"time"

	"medkit-workers/internal/common/config"
)

type Config struct {
	Timeout    time.Duration
	MaxRetries int
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

// NewConfig reads the worker section for this task type.
func NewConfig(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	c := LoadConfig()
	if wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	c.MaxRetries = wc.MaxRetries
	return c
}
