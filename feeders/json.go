package feeders

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golobby/config/v3/pkg/feeder"
)

// JSONFeeder reads JSON files.
type JSONFeeder struct {
	feeder.Json
}

func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{feeder.Json{Path: filePath}}
}

// FeedKey populates target from the top-level object member named key.
func (j JSONFeeder) FeedKey(key string, target any) error {
	var all map[string]json.RawMessage
	if err := j.Feed(&all); err != nil {
		return fmt.Errorf("failed to read JSON: %w", err)
	}

	raw, ok := all[key]
	if !ok {
		return nil
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: %s", ErrKeyNotObject, key)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode JSON section %q: %w", key, err)
	}
	return nil
}
