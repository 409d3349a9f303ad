// Package config provides configuration management for topowatch.
//
// Config file locations (priority order):
//  1. $TOPOWATCH_CONFIG
//  2. ./topowatch.yaml
//  3. ~/.config/topowatch/config.yaml
//  4. /etc/topowatch/config.yaml
//
// The webhook section (shared secret, network allow-list) is hot-reloadable
// through the file watcher; everything else is read once at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	cfg, err := LoadFromPath(path)
	return cfg, path, err
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./topowatch.db"
	}
	if c.Ledger.Dir == "" {
		c.Ledger.Dir = "./incidents"
	}
	if c.Dashboard.BaseURL == "" {
		c.Dashboard.BaseURL = "https://api.meraki.com/api/v1"
	}
	if c.Dashboard.Timeout == 0 {
		c.Dashboard.Timeout = Duration(30 * time.Second)
	}
	if c.ServiceNow.Timeout == 0 {
		c.ServiceNow.Timeout = Duration(30 * time.Second)
	}
	if c.Remediation.Delay == 0 {
		c.Remediation.Delay = Duration(5 * time.Minute)
	}
	if c.Tickets.CleanupDelay == 0 {
		c.Tickets.CleanupDelay = Duration(time.Hour)
	}
	if c.Topology.RebuildInterval == 0 {
		c.Topology.RebuildInterval = Duration(65 * time.Minute)
	}
	if c.Topology.MaxConcurrentBuilds == 0 {
		c.Topology.MaxConcurrentBuilds = 4
	}
}

// Validate checks the settings main cannot run without.
func (c *Config) Validate() error {
	if c.Dashboard.APIKey == "" {
		return fmt.Errorf("dashboard.api_key is required")
	}
	if c.Webhook.SharedSecret == "" {
		return fmt.Errorf("webhook.shared_secret is required")
	}
	if c.ServiceNow.Enabled {
		if c.ServiceNow.Instance == "" || c.ServiceNow.Username == "" || c.ServiceNow.Password == "" {
			return fmt.Errorf("servicenow requires instance, username, and password when enabled")
		}
	}
	return nil
}
