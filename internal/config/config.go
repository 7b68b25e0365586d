// Package config loads the yaml configuration file naming the servers to
// synchronize and the tuning knobs around them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"jellysync/internal/models"
)

type Config struct {
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	PrettyLog bool   `yaml:"pretty_log"`

	// DeviceID identifies this installation to every server; generated
	// and persisted by the host if left empty.
	DeviceID string `yaml:"device_id"`

	RelaxedInterval  Duration `yaml:"relaxed_interval"`
	FallbackInterval Duration `yaml:"fallback_interval"`
	DiscoveryTTL     Duration `yaml:"discovery_ttl"`

	Servers []models.Server `yaml:"servers"`
}

// Duration parses yaml strings like "90s" or "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func defaults() Config {
	return Config{
		Listen:           ":7917",
		LogLevel:         "info",
		RelaxedInterval:  Duration(60 * time.Second),
		FallbackInterval: Duration(10 * time.Second),
		DiscoveryTTL:     Duration(30 * time.Minute),
	}
}

// Load reads and validates the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("config: at least one server is required")
	}
	seen := make(map[string]struct{}, len(c.Servers))
	for i, srv := range c.Servers {
		if srv.ID == "" {
			return fmt.Errorf("config: servers[%d]: id is required", i)
		}
		if _, dup := seen[srv.ID]; dup {
			return fmt.Errorf("config: duplicate server id %q", srv.ID)
		}
		seen[srv.ID] = struct{}{}
		if srv.URL == "" {
			return fmt.Errorf("config: server %s: url is required", srv.ID)
		}
		if srv.Token == "" {
			return fmt.Errorf("config: server %s: token is required", srv.ID)
		}
	}
	if c.RelaxedInterval <= 0 || c.FallbackInterval <= 0 {
		return fmt.Errorf("config: intervals must be positive")
	}
	if c.DiscoveryTTL <= 0 {
		return fmt.Errorf("config: discovery_ttl must be positive")
	}
	return nil
}
