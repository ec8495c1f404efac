// Package config provides service configuration for folio using Viper for
// flexible loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the FOLIO_ prefix, and validation. It manages the control
// host binding, preview timing knobs (debounce window, shutdown grace
// period, heartbeat intervals), source-tree ignore rules, and the build
// path's typesetting command.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Preview PreviewConfig `yaml:"preview"`
	Source  SourceConfig  `yaml:"source"`
	Build   BuildConfig   `yaml:"build"`
}

// ServerConfig describes the control host binding. The content server always
// binds an OS-assigned port on localhost and is never configured directly.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Open bool   `yaml:"open"`
}

// PreviewConfig carries the timing knobs of the live-preview session.
type PreviewConfig struct {
	Debounce          time.Duration `yaml:"debounce"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// MissedHeartbeats is how many intervals may elapse before a client
	// counts as disconnected.
	MissedHeartbeats int `yaml:"missed_heartbeats"`
	// MaxWatcherErrors is the consecutive-failure bound after which the
	// session is marked degraded instead of retried.
	MaxWatcherErrors int `yaml:"max_watcher_errors"`
	StartupTimeout   time.Duration `yaml:"startup_timeout"`
}

// SourceConfig scopes which parts of the authoring tree are visible.
type SourceConfig struct {
	// Root is the permitted root; folder listings and switches outside it
	// are rejected.
	Root string `yaml:"root"`
	// IgnoreDirs are build-artifact directories excluded from watching,
	// in addition to dot-directories and the scratch tree.
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// BuildConfig configures the non-preview build path.
type BuildConfig struct {
	OutputDir string   `yaml:"output_dir"`
	// TypesetCommand renders the entry document to PDF; the entry document
	// path and output path are appended as the final two arguments.
	TypesetCommand []string `yaml:"typeset_command"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)
	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 13000
	}
	if config.Preview.Debounce == 0 {
		config.Preview.Debounce = 300 * time.Millisecond
	}
	if config.Preview.ShutdownGrace == 0 {
		config.Preview.ShutdownGrace = 10 * time.Second
	}
	if config.Preview.HeartbeatInterval == 0 {
		config.Preview.HeartbeatInterval = 2 * time.Second
	}
	if config.Preview.MissedHeartbeats == 0 {
		config.Preview.MissedHeartbeats = 3
	}
	if config.Preview.MaxWatcherErrors == 0 {
		config.Preview.MaxWatcherErrors = 5
	}
	if config.Preview.StartupTimeout == 0 {
		config.Preview.StartupTimeout = 10 * time.Second
	}
	if config.Source.Root == "" {
		config.Source.Root = "."
	}
	if len(config.Source.IgnoreDirs) == 0 {
		config.Source.IgnoreDirs = []string{"node_modules", "dist", "output"}
	}
	if config.Build.OutputDir == "" {
		config.Build.OutputDir = "output"
	}
}

// Validate rejects configurations that cannot produce a working session.
func Validate(config *Config) error {
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Preview.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative: %v", config.Preview.Debounce)
	}
	if config.Preview.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown grace must not be negative: %v", config.Preview.ShutdownGrace)
	}
	if config.Preview.MissedHeartbeats < 1 {
		return fmt.Errorf("missed_heartbeats must be at least 1: %d", config.Preview.MissedHeartbeats)
	}
	return nil
}
