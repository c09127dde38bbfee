// Package config provides unified configuration loading for resonet.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/resonet/internal/lattice"
	"github.com/nvandessel/resonet/internal/node"
	"gopkg.in/yaml.v3"
)

// Node parameter presets.
const (
	PresetDefault = "default"
	PresetLarge   = "large"
)

// Config contains all resonet configuration settings.
type Config struct {
	// Lattice contains grid construction and stepping settings.
	Lattice LatticeConfig `json:"lattice" yaml:"lattice"`

	// Node contains the lattice-wide oscillator parameters.
	Node NodeConfig `json:"node" yaml:"node"`

	// Aging contains the optional lifecycle schedule.
	Aging lattice.AgingConfig `json:"aging" yaml:"aging"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics contains settings for the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LatticeConfig configures lattice construction.
type LatticeConfig struct {
	// Size is the edge length; the lattice holds Size³ nodes.
	Size int `json:"size" yaml:"size"`

	// Seed derives every node's private random stream.
	Seed int64 `json:"seed" yaml:"seed"`

	// Workers is the goroutine count per step. 0 uses GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// Coupling is "resonant" (default) or "attenuated".
	Coupling string `json:"coupling" yaml:"coupling"`

	// Attenuation is the spatial attenuation for attenuated coupling.
	Attenuation float64 `json:"attenuation" yaml:"attenuation"`
}

// NodeConfig holds a parameter preset and explicit overrides on top of it.
type NodeConfig struct {
	// Preset selects the base parameters: "default" or "large".
	Preset string `json:"preset" yaml:"preset"`

	node.Params `json:",inline" yaml:",inline"`
}

// LoggingConfig configures resonet's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables event logging to <dir>/events.jsonl.
	// "trace" additionally logs every node rebirth.
	Level string `json:"level" yaml:"level"`

	// Dir is where the event log is written.
	Dir string `json:"dir" yaml:"dir"`
}

// MetricsConfig configures metrics exposure.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9464". Empty disables it.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace" yaml:"namespace"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Lattice: LatticeConfig{
			Size:        8,
			Seed:        42,
			Workers:     0,
			Coupling:    lattice.CouplingResonant.String(),
			Attenuation: lattice.DefaultAttenuation,
		},
		Node: NodeConfig{
			Preset: PresetDefault,
			Params: node.DefaultParams(),
		},
		Aging: lattice.DefaultAgingConfig(),
		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".resonet",
		},
		Metrics: MetricsConfig{
			Namespace: "resonet",
		},
	}
}

// PresetParams returns the parameters for a preset name.
func PresetParams(name string) (node.Params, error) {
	switch strings.ToLower(name) {
	case "", PresetDefault:
		return node.DefaultParams(), nil
	case PresetLarge:
		return node.LargeScaleParams(), nil
	default:
		return node.Params{}, fmt.Errorf("invalid node preset: %s (valid: default, large)", name)
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.resonet/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".resonet", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadPath loads configuration from path, or from the default locations when
// path is empty, then applies environment variable overrides.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Node fields
// not set in the file take the values of the selected preset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// First pass: find the preset so explicit fields override it.
	var probe struct {
		Node struct {
			Preset string `yaml:"preset"`
		} `yaml:"node"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config := Default()
	if probe.Node.Preset != "" {
		params, err := PresetParams(probe.Node.Preset)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		config.Node.Params = params
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Logging.Dir = expandEnvVars(config.Logging.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Lattice.Size <= 0 || c.Lattice.Size > lattice.MaxSize {
		return fmt.Errorf("lattice size must be between 1 and %d, got %d", lattice.MaxSize, c.Lattice.Size)
	}

	if c.Lattice.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Lattice.Workers)
	}

	if _, err := lattice.ParseCoupling(c.Lattice.Coupling); err != nil {
		return err
	}

	if c.Lattice.Attenuation < 0 || c.Lattice.Attenuation > 1 {
		return fmt.Errorf("attenuation must be between 0 and 1, got %f", c.Lattice.Attenuation)
	}

	if _, err := PresetParams(c.Node.Preset); err != nil {
		return err
	}

	if err := c.Node.Params.Validate(); err != nil {
		return err
	}

	if err := c.Aging.Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// NodeParams returns the configured lattice-wide node parameters.
func (c *Config) NodeParams() node.Params {
	return c.Node.Params
}

// LatticeOptions translates the configuration into lattice construction
// options. Extra options are appended after the configured ones.
func (c *Config) LatticeOptions(extra ...lattice.Option) ([]lattice.Option, error) {
	coupling, err := lattice.ParseCoupling(c.Lattice.Coupling)
	if err != nil {
		return nil, err
	}
	opts := []lattice.Option{
		lattice.WithParams(c.NodeParams()),
		lattice.WithCoupling(coupling),
		lattice.WithAttenuation(c.Lattice.Attenuation),
		lattice.WithAging(c.Aging),
		lattice.WithWorkers(c.Lattice.Workers),
	}
	return append(opts, extra...), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	if v := os.Getenv("RESONET_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RESONET_SIZE: %w", err)
		}
		config.Lattice.Size = n
	}

	if v := os.Getenv("RESONET_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RESONET_SEED: %w", err)
		}
		config.Lattice.Seed = n
	}

	if v := os.Getenv("RESONET_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Lattice.Workers = n
		}
	}

	if v := os.Getenv("RESONET_COUPLING"); v != "" {
		config.Lattice.Coupling = v
	}

	if v := os.Getenv("RESONET_NODE_PRESET"); v != "" {
		params, err := PresetParams(v)
		if err != nil {
			return err
		}
		config.Node.Preset = v
		config.Node.Params = params
	}

	if v := os.Getenv("RESONET_AGING"); v != "" {
		config.Aging.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("RESONET_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("RESONET_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
	}

	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
