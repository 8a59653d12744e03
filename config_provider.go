package viewhost

import (
	"fmt"

	"github.com/golobby/config/v3"
)

// ComplexFeeder is a feeder that can populate a single named section of its source.
type ComplexFeeder interface {
	FeedKey(key string, target any) error
}

// ConfigSetup is implemented by configs that derive state after being fed.
type ConfigSetup interface {
	Setup() error
}

// Config combines golobby feeders with keyed config sections. Feed populates the
// whole-document structs first, then every keyed section from each ComplexFeeder,
// then applies defaults, validates and runs Setup on every target.
type Config struct {
	*config.Config
	StructKeys map[string]any
	keyOrder   []string
}

// NewConfig creates an empty configuration builder.
func NewConfig() *Config {
	return &Config{
		Config:     config.New(),
		StructKeys: make(map[string]any),
	}
}

// AddStructKey registers target to be fed from the section named key.
func (c *Config) AddStructKey(key string, target any) *Config {
	if _, ok := c.StructKeys[key]; !ok {
		c.keyOrder = append(c.keyOrder, key)
	}
	c.StructKeys[key] = target
	return c
}

func (c *Config) Feed() error {
	if err := c.Config.Feed(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigFeederError, err)
	}
	for _, target := range c.Structs {
		if err := finishConfig("", target); err != nil {
			return err
		}
	}

	for _, key := range c.keyOrder {
		target := c.StructKeys[key]
		for _, f := range c.Feeders {
			cf, ok := f.(ComplexFeeder)
			if !ok {
				continue
			}
			if err := cf.FeedKey(key, target); err != nil {
				return fmt.Errorf("%w: section %s: %w", ErrConfigFeederError, key, err)
			}
		}
		if err := finishConfig(key, target); err != nil {
			return err
		}
	}
	return nil
}

func finishConfig(key string, target any) error {
	if err := ValidateConfig(target); err != nil {
		return fmt.Errorf("config validation error for %q: %w", key, err)
	}
	if s, ok := target.(ConfigSetup); ok {
		if err := s.Setup(); err != nil {
			return fmt.Errorf("%w for %q: %w", ErrConfigSetupError, key, err)
		}
	}
	return nil
}
