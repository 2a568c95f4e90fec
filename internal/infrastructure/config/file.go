package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/tailscale/hujson"
)

// LoadFile overlays the config file at path onto cfg. The format is
// chosen by extension: .json/.json5, .yaml/.yml or .toml. JSON files may
// carry comments and trailing commas. Keys missing from the file keep
// their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Decode(filepath.Ext(path), data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Decode parses data in the format named by ext into cfg.
func Decode(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".json", ".json5", "":
		std, err := hujson.Standardize(data)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(std, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}
