package httpserver

import "errors"

var (
	ErrInvalidAddress   = errors.New("invalid listen address")
	ErrNoTLSDomains     = errors.New("TLS auto-generation is enabled but no domains specified")
	ErrNoTLSFiles       = errors.New("TLS is enabled but the certificate or key file is missing")
	ErrNoHandler        = errors.New("no HTTP handler configured")
	ErrServerStarted    = errors.New("server already started")
	ErrServerNotStarted = errors.New("server not started")
)
