package feeders

import (
	"fmt"
	"os"

	"github.com/golobby/config/v3/pkg/feeder"
	"gopkg.in/yaml.v3"
)

// YamlFeeder reads YAML files.
type YamlFeeder struct {
	feeder.Yaml
}

func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{feeder.Yaml{Path: filePath}}
}

// FeedKey populates target from the top-level section named key. A missing section
// leaves target untouched.
func (y YamlFeeder) FeedKey(key string, target any) error {
	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("failed to read YAML: %w", err)
	}
	var all map[string]yaml.Node
	if err := yaml.Unmarshal(content, &all); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	node, ok := all[key]
	if !ok {
		return nil
	}
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("failed to decode YAML section %q: %w", key, err)
	}
	return nil
}
