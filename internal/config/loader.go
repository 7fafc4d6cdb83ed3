package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides llm.api_key so the secret can stay out of the
// config file.
const EnvAPIKey = "MERMHOST_API_KEY"

// Load reads a configuration file on top of the defaults. Environment
// variable references in the file body are expanded before parsing.
// YAML is the primary format; .json and .json5 files are accepted too.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".json5":
		if err := json5.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the default configuration
// (plus env overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MERMAID_CLI_PATH"); v != "" {
		cfg.Render.CLIPath = v
	}
	if v := os.Getenv("MERMAID_OUTPUT_DIR"); v != "" {
		cfg.Render.OutputDir = v
	}
}
