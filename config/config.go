// Package config loads the YAML partition table and queue definitions used
// by host-side tooling and tests. Firmware embedders that construct devices
// and queues programmatically do not need it.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PartitionConfig describes one flash partition image.
type PartitionConfig struct {
	Name       string `yaml:"name"`
	Path       string `yaml:"path"`        // partition image file
	SectorSize uint32 `yaml:"sector_size"` // erase-unit size in bytes
	Sectors    int    `yaml:"sectors"`     // total sectors; used when creating a new image
	Create     bool   `yaml:"create"`      // create the image if it does not exist
}

// QueueConfig describes one queue and the partition it lives on.
type QueueConfig struct {
	Name         string `yaml:"name"`
	Partition    string `yaml:"partition"`
	RecordSize   uint32 `yaml:"record_size"`
	Overwrite    bool   `yaml:"overwrite"`
	RecoveryMode bool   `yaml:"recovery_mode"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "stderr", "none"
}

// Config is the top-level configuration struct.
type Config struct {
	Partitions []PartitionConfig `yaml:"partitions"`
	Queues     []QueueConfig     `yaml:"queues"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a YAML file at the given path.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()
	return Load(file)
}

// Partition returns the partition config with the given name, if present.
func (c *Config) Partition(name string) (PartitionConfig, bool) {
	for _, p := range c.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return PartitionConfig{}, false
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Partitions))
	for i, p := range c.Partitions {
		if p.Name == "" {
			return fmt.Errorf("partition %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate partition name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Path == "" {
			return fmt.Errorf("partition %q has no image path", p.Name)
		}
		if p.SectorSize == 0 {
			return fmt.Errorf("partition %q has no sector size", p.Name)
		}
		if p.Create && p.Sectors <= 0 {
			return fmt.Errorf("partition %q requests creation without a sector count", p.Name)
		}
	}

	for i, q := range c.Queues {
		if q.Name == "" {
			return fmt.Errorf("queue %d has no name", i)
		}
		if !seen[q.Partition] {
			return fmt.Errorf("queue %q references unknown partition %q", q.Name, q.Partition)
		}
		if q.RecordSize == 0 {
			return fmt.Errorf("queue %q has no record size", q.Name)
		}
	}
	return nil
}
