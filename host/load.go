package host

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/viewhost"
	"github.com/GoCodeAlone/viewhost/feeders"
)

// DefaultEnvPrefix prefixes every configuration environment variable,
// e.g. VIEWHOST_SERVER_ADDRESS.
const DefaultEnvPrefix = "VIEWHOST"

// LoadConfig reads path (YAML, TOML or JSON by extension; empty for none), overlays
// environment variables named <envPrefix>_<SECTION>_<FIELD>, applies defaults and
// validates the result.
func LoadConfig(path, envPrefix string) (*Config, error) {
	cfg := &Config{}
	builder := viewhost.NewConfig()

	if path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			builder.AddFeeder(feeders.NewYamlFeeder(path))
		case ".toml":
			builder.AddFeeder(feeders.NewTomlFeeder(path))
		case ".json":
			builder.AddFeeder(feeders.NewJSONFeeder(path))
		default:
			return nil, fmt.Errorf("%w: %s", viewhost.ErrUnsupportedFormatType, path)
		}
	}
	if envPrefix != "" {
		builder.AddFeeder(feeders.NewAffixedEnvFeeder(envPrefix, ""))
	}

	for _, s := range cfg.Sections() {
		builder.AddStructKey(s.Key, s.Target)
	}
	if err := builder.Feed(); err != nil {
		return nil, err
	}
	if err := viewhost.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
