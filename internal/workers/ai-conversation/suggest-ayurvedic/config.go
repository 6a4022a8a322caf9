// internal/workers/ai-conversation/suggest-ayurvedic/config.go
package suggestayurvedic

import (
	"time"

	"medkit-workers/internal/common/config"
)

type Config struct {
	Timeout            time.Duration
	MaxPrescriptionLen int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:            60 * time.Second,
		MaxPrescriptionLen: 8000,
	}
}

func NewConfig(cfg *config.Config) *Config {
	c := LoadConfig()
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
