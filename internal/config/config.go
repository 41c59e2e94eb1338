package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models missionboard.yml. Integration credentials normally come from
// the environment; the file carries the rest. A missing token disables the
// matching integration with an explicit error at call time, never silently.
type Config struct {
	Listen              string `yaml:"listen"`
	BasePath            string `yaml:"base_path"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	GitHub              struct {
		Token   string `yaml:"token"`
		APIBase string `yaml:"api_base"`
	} `yaml:"github"`
	Gateway struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"gateway"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Listen = "127.0.0.1:3000"
	cfg.BasePath = "/api"
	cfg.PollIntervalSeconds = 5
	return &cfg
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config.listen is required")
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config.poll_interval_seconds must be positive")
	}
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		c.BasePath = "/" + c.BasePath
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "missionboard.yml")
}

// LoadOptional returns the defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes, filling defaults
// for omitted fields.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
