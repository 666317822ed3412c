// Package config loads the PLC runtime configuration from a YAML file
// and slave device descriptions from INI files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/mapping"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Plc    PlcConfig     `yaml:"plc"`
	Slaves []SlaveConfig `yaml:"slaves"`

	// directory of the config file, device paths resolve against it
	baseDir string
}

type PlcConfig struct {
	Name             string `yaml:"name"`
	CycleTimeUs      int    `yaml:"cycle_time_us"`
	ReceiveTimeoutUs int    `yaml:"receive_timeout_us"`
	GateCycles       uint32 `yaml:"gate_cycles"`
	FaultThreshold   uint32 `yaml:"fault_threshold"`
	ServerAddr       string `yaml:"server_addr"`
	ExternSize       int    `yaml:"extern_size"`
}

type SlaveConfig struct {
	Position uint16 `yaml:"position"`
	Device   string `yaml:"device"`
	Required bool   `yaml:"required"`
}

// Load reads, normalizes and validates a configuration file
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", goecat.ErrConfig, err)
	}
	cfg := &Config{baseDir: filepath.Dir(path)}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", goecat.ErrConfig, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg.Plc.Name == "" {
		cfg.Plc.Name = "goecat"
	}
	if cfg.Plc.CycleTimeUs == 0 {
		cfg.Plc.CycleTimeUs = 1000
	}
	if cfg.Plc.ReceiveTimeoutUs == 0 {
		cfg.Plc.ReceiveTimeoutUs = cfg.Plc.CycleTimeUs
	}
}

func (cfg *Config) Validate() error {
	if cfg.Plc.CycleTimeUs < 0 {
		return fmt.Errorf("%w: cycle time must be positive", goecat.ErrConfig)
	}
	if cfg.Plc.ExternSize < 0 {
		return fmt.Errorf("%w: extern size must be positive", goecat.ErrConfig)
	}
	if len(cfg.Slaves) == 0 {
		return fmt.Errorf("%w: at least one slave required", goecat.ErrConfig)
	}
	seen := make(map[uint16]bool)
	for _, slave := range cfg.Slaves {
		if slave.Device == "" {
			return fmt.Errorf("%w: slave %v has no device file", goecat.ErrConfig, slave.Position)
		}
		if seen[slave.Position] {
			return fmt.Errorf("%w: duplicate slave position %v", goecat.ErrConfig, slave.Position)
		}
		seen[slave.Position] = true
	}
	return nil
}

func (cfg *Config) CycleTime() time.Duration {
	return time.Duration(cfg.Plc.CycleTimeUs) * time.Microsecond
}

func (cfg *Config) ReceiveTimeout() time.Duration {
	return time.Duration(cfg.Plc.ReceiveTimeoutUs) * time.Microsecond
}

// MappedSlaves resolves every configured device description file into
// a slave description, in declaration order
func (cfg *Config) MappedSlaves() ([]mapping.SlaveDescription, error) {
	slaves := make([]mapping.SlaveDescription, 0, len(cfg.Slaves))
	for _, sc := range cfg.Slaves {
		path := sc.Device
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.baseDir, path)
		}
		desc, err := LoadDeviceFile(path, sc.Position)
		if err != nil {
			return nil, err
		}
		desc.Required = sc.Required
		slaves = append(slaves, desc)
	}
	return slaves, nil
}
