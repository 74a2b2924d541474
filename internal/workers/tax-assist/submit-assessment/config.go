package submitassessment

import "time"

type Config struct {
	// Timeout covers the fraud check and every KRA submission attempt.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 45 * time.Second,
	}
}
