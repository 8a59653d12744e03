package sessions

import "errors"

var (
	ErrStoreStopped       = errors.New("session store is not running")
	ErrStoreFull          = errors.New("session store is full")
	ErrUnsupportedBackend = errors.New("unsupported session backend")
	ErrRedisURLRequired   = errors.New("redis backend requires a redis url")
	ErrInvalidSession     = errors.New("session has no id")
)
