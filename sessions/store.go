package sessions

import (
	"fmt"

	"github.com/GoCodeAlone/viewhost"
)

// New builds the store selected by cfg. The returned sweeper is nil for backends that
// expire sessions on their own.
func New(cfg *Config, logger viewhost.Logger) (viewhost.SessionStore, *Sweeper, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		store := NewMemoryStore(cfg.MaxItems)
		return store, NewSweeper(store, cfg.Sweep, logger), nil
	case BackendRedis:
		store, err := NewRedisStore(cfg.RedisURL, cfg.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}
