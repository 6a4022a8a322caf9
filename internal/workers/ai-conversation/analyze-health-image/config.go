// internal/workers/ai-conversation/analyze-health-image/config.go
package analyzehealthimage

import (
	"time"

	"medkit-workers/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	MaxImageBytes int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		MaxImageBytes: 8 << 20,
	}
}

func NewConfig(cfg *config.Config) *Config {
	c := LoadConfig()
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
