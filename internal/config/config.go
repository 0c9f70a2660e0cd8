package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"dayline/internal/domain"
)

// Config models dayline.yml.
type Config struct {
	Workspace struct {
		Name     string          `yaml:"name"`
		Timezone string          `yaml:"timezone"`
		Features map[string]bool `yaml:"features"`
	} `yaml:"workspace"`
	Sync struct {
		Prefer string `yaml:"prefer"`
	} `yaml:"sync"`
	Generation struct {
		EvenIfNotModified bool   `yaml:"even_if_not_modified"`
		DefaultEisen      string `yaml:"default_eisen"`
		DefaultDifficulty string `yaml:"default_difficulty"`
	} `yaml:"generation"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
}

// Load reads and validates config from a workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.Timezone != "" {
		if _, err := time.LoadLocation(c.Workspace.Timezone); err != nil {
			return fmt.Errorf("workspace.timezone %q: %w", c.Workspace.Timezone, domain.ErrInvalidInput)
		}
	}
	switch domain.SyncPrefer(c.Sync.Prefer) {
	case "", domain.SyncPreferLocal, domain.SyncPreferNotion:
	default:
		return fmt.Errorf("sync.prefer %q: %w", c.Sync.Prefer, domain.ErrInvalidInput)
	}
	if c.Generation.DefaultEisen != "" && !domain.Eisen(c.Generation.DefaultEisen).Valid() {
		return fmt.Errorf("generation.default_eisen %q: %w", c.Generation.DefaultEisen, domain.ErrInvalidInput)
	}
	if c.Generation.DefaultDifficulty != "" && !domain.Difficulty(c.Generation.DefaultDifficulty).Valid() {
		return fmt.Errorf("generation.default_difficulty %q: %w", c.Generation.DefaultDifficulty, domain.ErrInvalidInput)
	}
	for name := range c.Workspace.Features {
		known := false
		for _, f := range domain.AllFeatures {
			if name == string(f) {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("workspace.features has unknown feature %q: %w", name, domain.ErrInvalidInput)
		}
	}
	return nil
}

// Timezone returns the configured zone name, defaulting to UTC.
func (c *Config) Timezone() string {
	if c.Workspace.Timezone == "" {
		return "UTC"
	}
	return c.Workspace.Timezone
}

// SyncPrefer returns the conflict-resolution policy, defaulting to local.
func (c *Config) SyncPrefer() domain.SyncPrefer {
	if c.Sync.Prefer == "" {
		return domain.SyncPreferLocal
	}
	return domain.SyncPrefer(c.Sync.Prefer)
}

// DefaultEisen falls back to regular priority.
func (c *Config) DefaultEisen() domain.Eisen {
	if c.Generation.DefaultEisen == "" {
		return domain.EisenRegular
	}
	return domain.Eisen(c.Generation.DefaultEisen)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dayline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// WriteDefault writes the default config file if none exists.
func WriteDefault(workspace string) error {
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o644)
}

const defaultTemplate = `workspace:
  name: My Life
  timezone: UTC
  features:
    inbox-tasks: true
    habits: true
    chores: true
    metrics: true
    persons: true
    big-plans: true
    vacations: true
    slack-tasks: false
    email-tasks: false
    projects: true

sync:
  prefer: local

generation:
  even_if_not_modified: false
  default_eisen: regular
  default_difficulty: easy
`
