// internal/workers/medicine/describe-medicine/config.go
package describemedicine

import (
	"time"

	"medkit-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig leaves headroom above the default aggregation deadline for the summary call.
func LoadConfig() *Config {
	return &Config{
		Timeout: 90 * time.Second,
	}
}

func NewConfig(cfg *config.Config) *Config {
	c := LoadConfig()
	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}
