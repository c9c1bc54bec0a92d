// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/browserstudio/pkg/agent"
)

// Config represents the full configuration for browserstudio.
type Config struct {
	// Server
	Port    int `yaml:"port"`
	CDPPort int `yaml:"cdp_port"`

	// Browser
	Headless       bool   `yaml:"headless"`
	ChromePath     string `yaml:"chrome_path"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`

	// Output
	RecordingsDir string `yaml:"recordings_dir"`

	// Vision model
	Vision VisionConfig `yaml:"vision"`

	// Agent loop
	Agent agent.Config `yaml:"agent"`
}

// VisionConfig represents the language model client settings. The API key is
// only ever read from the ANTHROPIC_API_KEY environment variable.
type VisionConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Port:    9222,
		CDPPort: 9223,

		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 720,

		RecordingsDir: "./recordings",

		Vision: VisionConfig{
			TimeoutMs: 30000,
		},

		Agent: agent.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks port assignments.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.CDPPort < 1 || c.CDPPort > 65535 {
		return fmt.Errorf("cdp_port must be between 1 and 65535, got %d", c.CDPPort)
	}
	if c.Port == c.CDPPort {
		return fmt.Errorf("port and cdp_port must differ, both are %d", c.Port)
	}
	return nil
}
