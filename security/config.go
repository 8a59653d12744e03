package security

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"
)

// Config configures the bearer token filter placed in front of the admin API and every
// view web app.
type Config struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" toml:"enabled" env:"ENABLED" default:"false" desc:"Require a bearer token outside public paths"`
	Secret      string        `yaml:"secret" json:"secret" toml:"secret" env:"SECRET" desc:"HMAC secret used to verify tokens"`
	Issuer      string        `yaml:"issuer" json:"issuer" toml:"issuer" env:"ISSUER" default:"viewhost" desc:"Expected token issuer"`
	Leeway      time.Duration `yaml:"leeway" json:"leeway" toml:"leeway" env:"LEEWAY" default:"30s" desc:"Clock skew tolerated when checking expiry"`
	TokenTTL    time.Duration `yaml:"tokenTtl" json:"tokenTtl" toml:"tokenTtl" env:"TOKEN_TTL" default:"1h" desc:"Lifetime of tokens issued by the CLI"`
	PublicPaths []string      `yaml:"publicPaths" json:"publicPaths" toml:"publicPaths" env:"PUBLIC_PATHS" default:"[\"/healthz\",\"/metrics\",\"/views/*/*/*/resources/static/**\"]" desc:"Glob patterns served without a token"`
}

// Validate implements viewhost.ConfigValidator.
func (c *Config) Validate() error {
	if c.Enabled {
		if c.Secret == "" {
			return ErrSecretRequired
		}
		if len(c.Secret) < 32 {
			return ErrSecretTooShort
		}
	}
	_, err := compilePatterns(c.PublicPaths)
	return err
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPublicPath, p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
