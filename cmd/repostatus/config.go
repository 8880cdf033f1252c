package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendConfig describes how to launch the backend process.
type BackendConfig struct {
	// Command is the backend executable.
	Command string `yaml:"command"`

	// Args are passed before the working directory argument.
	Args []string `yaml:"args"`
}

// Config tunes the cache session.
type Config struct {
	Backend BackendConfig `yaml:"backend"`

	// DebounceMs is the refresh debounce window in milliseconds.
	DebounceMs int `yaml:"debounce_ms"`

	// FullRefreshThreshold is the pending-path count at which a
	// refresh covers the whole tree.
	FullRefreshThreshold int `yaml:"full_refresh_threshold"`

	// RevisionChangesCapacity bounds the changed-files cache.
	RevisionChangesCapacity int `yaml:"revision_changes_capacity"`

	// RevisionContentsCapacity bounds the file-contents cache.
	RevisionContentsCapacity int `yaml:"revision_contents_capacity"`

	// WatchFilesystem enables the fsnotify working-tree watcher.
	WatchFilesystem bool `yaml:"watch_filesystem"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
}

// defaultConfig returns the built-in tuning.
func defaultConfig() *Config {
	return &Config{
		Backend:         BackendConfig{Command: "repostatus-backend"},
		DebounceMs:      300,
		WatchFilesystem: true,
		LogLevel:        "warning",
	}
}

// loadConfig reads the YAML file over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
