package host

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/viewhost"
	"github.com/GoCodeAlone/viewhost/httpserver"
	"github.com/GoCodeAlone/viewhost/registry"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, viewhost.ValidateConfig(cfg))

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Sessions.Backend)
	assert.Equal(t, 200*time.Millisecond, cfg.Views.WatchDebounce)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "viewhost", cfg.Metrics.Namespace)
	assert.False(t, cfg.Metrics.Disabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Security.Enabled)
}

func TestConfig_Sections(t *testing.T) {
	cfg := &Config{}
	keys := make([]string, 0)
	for _, s := range cfg.Sections() {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"server", "sessions", "security", "views", "metrics", "logging"}, keys)
	assert.Same(t, &cfg.Server, cfg.Sections()[0].Target)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad address", func(c *Config) { c.Server.Address = "nowhere" }, httpserver.ErrInvalidAddress},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, ErrUnknownLogLevel},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, ErrUnknownLogFormat},
		{"bad descriptor", func(c *Config) {
			c.Views.Instances = []registry.InstanceDescriptor{{View: "ECHO", Version: "1.0.0"}}
		}, registry.ErrInvalidDescriptor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			require.NoError(t, viewhost.ValidateConfig(cfg))
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := (&LoggingConfig{Level: "debug", Format: "json"}).NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("hello", "view", "ECHO")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"view":"ECHO"`)

	buf.Reset()
	logger, err = (&LoggingConfig{Level: "warn", Format: "text"}).NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")

	_, err = (&LoggingConfig{Level: "chatty"}).NewLogger(&buf)
	assert.ErrorIs(t, err, ErrUnknownLogLevel)
}

func TestLoadConfig_YAMLWithEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewhost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: "127.0.0.1:9000"
sessions:
  maxAge: 10m
views:
  instances:
    - view: ECHO
      version: 1.0.0
      name: a
      properties:
        greeting: hi
logging:
  level: debug
`), 0o600))
	t.Setenv("VIEWHOST_SERVER_ADDRESS", "127.0.0.1:9100")
	t.Setenv("VIEWHOST_METRICS_NAMESPACE", "hive")

	cfg, err := LoadConfig(path, DefaultEnvPrefix)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Address)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.MaxAge)
	assert.Equal(t, "memory", cfg.Sessions.Backend)
	assert.Equal(t, "hive", cfg.Metrics.Namespace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Views.Instances, 1)
	assert.Equal(t, "hi", cfg.Views.Instances[0].Properties["greeting"])
}

func TestLoadConfig_JSONAndTOML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "viewhost.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"metrics": {"path": "/stats"}}`), 0o600))
	cfg, err := LoadConfig(jsonPath, "")
	require.NoError(t, err)
	assert.Equal(t, "/stats", cfg.Metrics.Path)

	tomlPath := filepath.Join(dir, "viewhost.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[sessions]\ncookie = \"HIVE\"\n"), 0o600))
	cfg, err = LoadConfig(tomlPath, "")
	require.NoError(t, err)
	assert.Equal(t, "HIVE", cfg.Sessions.Cookie)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig("viewhost.ini", DefaultEnvPrefix)
	assert.ErrorIs(t, err, viewhost.ErrUnsupportedFormatType)

	path := filepath.Join(t.TempDir(), "viewhost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  enabled: true\n"), 0o600))
	_, err = LoadConfig(path, "")
	assert.ErrorIs(t, err, viewhost.ErrConfigValidationFailed)
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("VIEWHOST_LOGGING_FORMAT", "json")
	cfg, err := LoadConfig("", DefaultEnvPrefix)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":8080", cfg.Server.Address)
}
