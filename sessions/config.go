// Package sessions provides the shared session stores used by viewhost: an in-memory
// store for single-node hosts and a Redis store for hosts that share sessions across
// processes, plus a cron driven sweeper that purges expired in-memory sessions.
package sessions

import (
	"fmt"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and tunes the shared session store.
type Config struct {
	Backend   string        `yaml:"backend" json:"backend" toml:"backend" env:"BACKEND" default:"memory" desc:"Session backend: memory or redis"`
	Cookie    string        `yaml:"cookie" json:"cookie" toml:"cookie" env:"COOKIE" default:"VIEWHOST_SESSIONID" desc:"Session cookie name"`
	MaxAge    time.Duration `yaml:"maxAge" json:"maxAge" toml:"maxAge" env:"MAX_AGE" default:"30m" desc:"Idle time after which a session expires"`
	MaxItems  int           `yaml:"maxItems" json:"maxItems" toml:"maxItems" env:"MAX_ITEMS" default:"100000" desc:"Upper bound on in-memory sessions (0 = unlimited)"`
	Sweep     string        `yaml:"sweep" json:"sweep" toml:"sweep" env:"SWEEP" default:"@every 1m" desc:"Cron schedule of the expired-session sweep"`
	RedisURL  string        `yaml:"redisUrl" json:"redisUrl" toml:"redisUrl" env:"REDIS_URL" desc:"redis:// URL used by the redis backend"`
	KeyPrefix string        `yaml:"keyPrefix" json:"keyPrefix" toml:"keyPrefix" env:"KEY_PREFIX" default:"viewhost:session:" desc:"Redis key prefix"`
}

// Validate implements viewhost.ConfigValidator.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if c.RedisURL == "" {
			return ErrRedisURLRequired
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.Backend)
	}
}
