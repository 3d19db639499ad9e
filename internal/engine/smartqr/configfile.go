package smartqr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads a MultiURLConfig from a .json, .yaml or .yml file.
func LoadConfigFile(path string) (MultiURLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MultiURLConfig{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data, strings.ToLower(filepath.Ext(path)) != ".json")
}

// ParseConfig decodes data as YAML when asYAML is set, otherwise as JSON.
// YAML is normalized through JSON so both formats share the same field names.
func ParseConfig(data []byte, asYAML bool) (MultiURLConfig, error) {
	var cfg MultiURLConfig
	if asYAML {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
		var err error
		if data, err = json.Marshal(doc); err != nil {
			return cfg, fmt.Errorf("normalize yaml: %w", err)
		}
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
