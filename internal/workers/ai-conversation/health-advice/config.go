// internal/workers/ai-conversation/health-advice/config.go
package healthadvice

import (
	"time"

	"medkit-workers/internal/common/config"
)

type Config struct {
	Timeout    time.Duration
	MaxHistory int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    60 * time.Second,
		MaxHistory: 20,
	}
}

func NewConfig(cfg *config.Config) *Config {
	c := LoadConfig()
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
