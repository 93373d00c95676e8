package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "60s" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("server: config: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config holds server configuration.
type Config struct {
	Addr            string   `yaml:"addr"`             // TCP bind address (e.g. ":8080")
	MaxClients      int      `yaml:"max_clients"`      // registry capacity
	MaxGames        int      `yaml:"max_games"`        // concurrent match limit
	MetricsInterval Duration `yaml:"metrics_interval"` // periodic metrics log (0 = disabled)
	LogLevel        string   `yaml:"log_level"`        // debug, info, warn, error
	LogFormat       string   `yaml:"log_format"`       // text or json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxClients:      10,
		MaxGames:        20,
		MetricsInterval: Duration(60 * time.Second),
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// LoadConfig reads a YAML config file over a base config. Fields absent
// from the file keep the base values.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return base, fmt.Errorf("server: read config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("server: parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server: config: addr must not be empty")
	}
	if c.MaxClients < 2 {
		return fmt.Errorf("server: config: max_clients must be at least 2, got %d", c.MaxClients)
	}
	if c.MaxGames < 1 {
		return fmt.Errorf("server: config: max_games must be at least 1, got %d", c.MaxGames)
	}
	return nil
}
