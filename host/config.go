package host

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/GoCodeAlone/viewhost/httpserver"
	"github.com/GoCodeAlone/viewhost/registry"
	"github.com/GoCodeAlone/viewhost/security"
	"github.com/GoCodeAlone/viewhost/sessions"
)

var (
	ErrUnknownLogLevel  = errors.New("unknown log level")
	ErrUnknownLogFormat = errors.New("unknown log format")
)

// Config is the complete host configuration. Each field is a section of the config
// file, e.g. `server:` or `sessions:`, and of the VIEWHOST_<SECTION>_* environment.
type Config struct {
	Server   httpserver.Config `yaml:"server" json:"server" toml:"server"`
	Sessions sessions.Config   `yaml:"sessions" json:"sessions" toml:"sessions"`
	Security security.Config   `yaml:"security" json:"security" toml:"security"`
	Views    ViewsConfig       `yaml:"views" json:"views" toml:"views"`
	Metrics  MetricsConfig     `yaml:"metrics" json:"metrics" toml:"metrics"`
	Logging  LoggingConfig     `yaml:"logging" json:"logging" toml:"logging"`
}

// ViewsConfig lists the instances the host mounts at startup.
type ViewsConfig struct {
	InstanceDir   string                        `yaml:"instanceDir" json:"instanceDir" toml:"instanceDir" env:"INSTANCE_DIR" desc:"Directory of instance descriptors kept in sync while running (empty disables)"`
	WatchDebounce time.Duration                 `yaml:"watchDebounce" json:"watchDebounce" toml:"watchDebounce" env:"WATCH_DEBOUNCE" default:"200ms" desc:"Quiet period before a changed descriptor is applied"`
	Instances     []registry.InstanceDescriptor `yaml:"instances" json:"instances" toml:"instances" desc:"Instances mounted at startup"`
}

type MetricsConfig struct {
	Disabled  bool   `yaml:"disabled" json:"disabled" toml:"disabled" env:"DISABLED" desc:"Do not expose Prometheus metrics"`
	Path      string `yaml:"path" json:"path" toml:"path" env:"PATH" default:"/metrics" desc:"Metrics endpoint path"`
	Namespace string `yaml:"namespace" json:"namespace" toml:"namespace" env:"NAMESPACE" default:"viewhost" desc:"Metric name prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" toml:"level" env:"LEVEL" default:"info" desc:"debug, info, warn or error"`
	Format string `yaml:"format" json:"format" toml:"format" env:"FORMAT" default:"text" desc:"text or json"`
}

// Sections returns the keyed config sections in feeding order.
func (c *Config) Sections() []Section {
	return []Section{
		{Key: "server", Target: &c.Server},
		{Key: "sessions", Target: &c.Sessions},
		{Key: "security", Target: &c.Security},
		{Key: "views", Target: &c.Views},
		{Key: "metrics", Target: &c.Metrics},
		{Key: "logging", Target: &c.Logging},
	}
}

// Section is a named part of Config.
type Section struct {
	Key    string
	Target any
}

// Validate implements viewhost.ConfigValidator.
func (c *Config) Validate() error {
	var errs []error
	for _, s := range []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"server", &c.Server},
		{"sessions", &c.Sessions},
		{"security", &c.Security},
		{"logging", &c.Logging},
	} {
		if err := s.v.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	for i, d := range c.Views.Instances {
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("views.instances[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (c *LoggingConfig) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogFormat, c.Format)
	}
}

func (c *LoggingConfig) level() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.Level)
	}
}

// NewLogger builds the slog logger described by c.
func (c *LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	lvl, _ := c.level()
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
