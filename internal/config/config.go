package config

import (
	"errors"
	"fmt"
	"github.com/cirruslabs/resource-usage-monitor/internal/poll"
	"gopkg.in/yaml.v3"
	"os"
	"strconv"
	"time"
)

const (
	DefaultEndpoint        = "http://127.0.0.1:12322"
	DefaultRefreshInterval = 5 * time.Second

	envPrefix = "RESOURCE_MONITOR_"
)

var (
	ErrNoEndpoint    = errors.New("metrics endpoint is not set")
	ErrNoResources   = errors.New("neither CPU nor memory monitoring is enabled")
	ErrInvalidConfig = errors.New("invalid configuration")
)

type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Token           string        `yaml:"token"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Backoff         bool          `yaml:"backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	Timeout         time.Duration `yaml:"timeout"`
	CPU             bool          `yaml:"cpu"`
	Memory          bool          `yaml:"memory"`

	// MetricsAddress exposes poller instrumentation when set.
	MetricsAddress string `yaml:"metrics_address"`
}

func Default() *Config {
	return &Config{
		Endpoint:        DefaultEndpoint,
		RefreshInterval: DefaultRefreshInterval,
		Backoff:         true,
		CPU:             true,
		Memory:          true,
	}
}

// Load reads a YAML file on top of the defaults. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields from RESOURCE_MONITOR_* variables.
func (config *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	if value, ok := lookup(envPrefix + "ENDPOINT"); ok {
		config.Endpoint = value
	}
	if value, ok := lookup(envPrefix + "TOKEN"); ok {
		config.Token = value
	}
	if value, ok := lookup(envPrefix + "METRICS_ADDRESS"); ok {
		config.MetricsAddress = value
	}

	durations := map[string]*time.Duration{
		"REFRESH_INTERVAL": &config.RefreshInterval,
		"MAX_BACKOFF":      &config.MaxBackoff,
		"TIMEOUT":          &config.Timeout,
	}
	for key, target := range durations {
		value, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, envPrefix, key, err)
		}
		*target = duration
	}

	flags := map[string]*bool{
		"BACKOFF": &config.Backoff,
		"CPU":     &config.CPU,
		"MEMORY":  &config.Memory,
	}
	for key, target := range flags {
		value, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, envPrefix, key, err)
		}
		*target = enabled
	}

	return nil
}

func (config *Config) Validate() error {
	if config.Endpoint == "" {
		return ErrNoEndpoint
	}
	if !config.CPU && !config.Memory {
		return ErrNoResources
	}
	if err := config.Frequency().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}

	return nil
}

func (config *Config) Frequency() poll.Frequency {
	return poll.Frequency{
		Interval: config.RefreshInterval,
		Backoff:  config.Backoff,
		Max:      config.MaxBackoff,
	}
}
