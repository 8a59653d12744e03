// Package httpserver runs the viewhost HTTP listener with graceful shutdown and optional
// TLS from certificate files or a generated self-signed certificate.
package httpserver

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config defines the listener of the host.
type Config struct {
	Address string `yaml:"address" json:"address" toml:"address" env:"ADDRESS" default:":8080" desc:"host:port to listen on (port 0 picks a free port)"`

	ReadTimeout     time.Duration `yaml:"readTimeout" json:"readTimeout" toml:"readTimeout" env:"READ_TIMEOUT" default:"15s" desc:"Maximum duration for reading a request"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" json:"writeTimeout" toml:"writeTimeout" env:"WRITE_TIMEOUT" default:"15s" desc:"Maximum duration for writing a response"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" json:"idleTimeout" toml:"idleTimeout" env:"IDLE_TIMEOUT" default:"60s" desc:"Keep-alive idle timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" toml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT" default:"30s" desc:"Grace period for in-flight requests on shutdown"`

	TLS TLSConfig `yaml:"tls" json:"tls" toml:"tls"`
}

// TLSConfig holds the TLS configuration for HTTPS support.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" toml:"enabled" env:"TLS_ENABLED" default:"false" desc:"Serve HTTPS"`
	CertFile string `yaml:"certFile" json:"certFile" toml:"certFile" env:"TLS_CERT_FILE" desc:"PEM certificate file"`
	KeyFile  string `yaml:"keyFile" json:"keyFile" toml:"keyFile" env:"TLS_KEY_FILE" desc:"PEM private key file"`

	// AutoGenerate issues a self-signed certificate for Domains when no files are given.
	AutoGenerate bool     `yaml:"autoGenerate" json:"autoGenerate" toml:"autoGenerate" env:"TLS_AUTO_GENERATE" default:"false" desc:"Generate a self-signed certificate"`
	Domains      []string `yaml:"domains" json:"domains" toml:"domains" env:"TLS_DOMAINS" desc:"Domains of the generated certificate"`
}

// Validate implements viewhost.ConfigValidator.
func (c *Config) Validate() error {
	_, port, err := net.SplitHostPort(c.Address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
	}
	if !c.TLS.Enabled {
		return nil
	}
	if c.TLS.AutoGenerate {
		if len(c.TLS.Domains) == 0 {
			return ErrNoTLSDomains
		}
		return nil
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		return ErrNoTLSFiles
	}
	return nil
}
