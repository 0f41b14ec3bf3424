package sweeper

import "time"

const lockKey = "identity:session:gc"

// Config bounds one sweep. Interval and lock lifetime come from the session config so
// they follow reloads.
type Config struct {
	RunTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{RunTimeout: 30 * time.Second}
}

func (c Config) withDefaults() Config {
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultConfig().RunTimeout
	}
	return c
}
