// Package config handles configuration for anchor-runner.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
)

// Config represents the workspace configuration (anchor.yaml).
type Config struct {
	Device   DeviceConfig  `yaml:"device"`
	Mapping  MappingConfig `yaml:"mapping"`
	Matcher  MatcherConfig `yaml:"matcher"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	App      AppConfig     `yaml:"app"`
	Report   ReportConfig  `yaml:"report"`
}

// DeviceConfig selects the device and how adb reaches it.
type DeviceConfig struct {
	Serial    string `yaml:"serial"`    // empty: first connected device
	ADBPath   string `yaml:"adbPath"`   // empty: look up adb
	Host      string `yaml:"host"`      // adb server host (-H)
	Port      int    `yaml:"port"`      // adb server port (-P)
	DisplayID *int   `yaml:"displayId"` // screencap -d
	RemoteDir string `yaml:"remoteDir"` // device temp directory
}

// MappingConfig enables override-resolution coordinates.
type MappingConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Physical core.Resolution `yaml:"physical"` // zero: ask the device
	Override core.Resolution `yaml:"override"`
}

// MatcherConfig selects the image matching strategy.
type MatcherConfig struct {
	Mode      string  `yaml:"mode"`      // auto, local, remote
	Threshold float64 `yaml:"threshold"` // local acceptance threshold
}

// TimeoutConfig holds the polling and settle durations.
type TimeoutConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Poll    time.Duration `yaml:"poll"`
	Settle  time.Duration `yaml:"settle"`
}

// AppConfig describes the application under test.
type AppConfig struct {
	Package      string `yaml:"package"`
	Activity     string `yaml:"activity"`
	ResourcePath string `yaml:"resourcePath"` // e.g. res/{package}/{key}@auto.png
}

// ReportConfig controls the step report.
type ReportConfig struct {
	Dir   string `yaml:"dir"`   // empty: no report
	Level string `yaml:"level"` // default, screens, stack, full
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Matcher: MatcherConfig{
			Mode:      "auto",
			Threshold: core.MatchThreshold,
		},
		Timeouts: TimeoutConfig{
			Timeout: 15 * time.Second,
			Poll:    200 * time.Millisecond,
			Settle:  300 * time.Millisecond,
		},
		Device: DeviceConfig{
			RemoteDir: "/data/local/tmp",
		},
		Report: ReportConfig{
			Level: "default",
		},
	}
}

// Load loads configuration from a file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir looks for anchor.yaml or anchor.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	if path := FindConfig(dir); path != "" {
		return Load(path)
	}

	// No config file found, use defaults
	return Default(), nil
}

// Validate checks value ranges and combinations.
func (c *Config) Validate() error {
	if c.Mapping.Enabled {
		if !c.Mapping.Override.Valid() {
			return core.ErrInvalidArgument.WithMessage("mapping.override must be set when mapping is enabled")
		}
		if c.Mapping.Physical != (core.Resolution{}) && !c.Mapping.Physical.Valid() {
			return core.ErrInvalidArgument.WithMessage("mapping.physical must be positive")
		}
	}
	switch c.Matcher.Mode {
	case "", "auto", "local", "remote":
	default:
		return core.ErrInvalidArgument.WithMessage(fmt.Sprintf("matcher.mode %q must be auto, local or remote", c.Matcher.Mode))
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold >= 1 {
		return core.ErrInvalidArgument.WithMessage("matcher.threshold must be in [0,1)")
	}
	if c.Timeouts.Timeout < 0 || c.Timeouts.Poll < 0 || c.Timeouts.Settle < 0 {
		return core.ErrInvalidArgument.WithMessage("timeouts must not be negative")
	}
	if c.Device.Port < 0 || c.Device.Port > 65535 {
		return core.ErrInvalidArgument.WithMessage(fmt.Sprintf("device.port %d out of range", c.Device.Port))
	}
	return nil
}
