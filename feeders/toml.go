package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/golobby/config/v3/pkg/feeder"
)

// TomlFeeder reads TOML files.
type TomlFeeder struct {
	feeder.Toml
}

func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{feeder.Toml{Path: filePath}}
}

// FeedKey populates target from the table named key.
func (t TomlFeeder) FeedKey(key string, target any) error {
	var all map[string]toml.Primitive
	md, err := toml.DecodeFile(t.Path, &all)
	if err != nil {
		return fmt.Errorf("failed to read TOML: %w", err)
	}

	prim, ok := all[key]
	if !ok {
		return nil
	}
	if err := md.PrimitiveDecode(prim, target); err != nil {
		return fmt.Errorf("failed to decode TOML table %q: %w", key, err)
	}
	return nil
}
