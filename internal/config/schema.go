package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	ListenAddr  string            `yaml:"listen_addr"`
	Database    DatabaseConfig    `yaml:"database"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	ServiceNow  ServiceNowConfig  `yaml:"servicenow"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Remediation RemediationConfig `yaml:"remediation"`
	Tickets     TicketConfig      `yaml:"tickets"`
	Topology    TopologyConfig    `yaml:"topology"`
}

// DatabaseConfig locates the topology store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig locates the incident CSV directory.
type LedgerConfig struct {
	Dir string `yaml:"dir"`
}

// DashboardConfig configures the device directory client.
type DashboardConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// ServiceNowConfig configures the ticketing integration.
type ServiceNowConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Instance string   `yaml:"instance"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"`
}

// WebhookConfig is the hot-reloadable part of the config: the inbound
// shared secret and the optional network allow-list.
type WebhookConfig struct {
	SharedSecret string `yaml:"shared_secret"`
	// TargetNetworks restricts processing to the named networks; empty
	// means all networks are accepted.
	TargetNetworks []string `yaml:"target_networks,omitempty"`
}

// RemediationConfig tunes the camera remediation workflow.
type RemediationConfig struct {
	// Delay is the wait before each status re-check; zero skips waiting.
	Delay Duration `yaml:"delay"`
}

// TicketConfig holds the ticket lifecycle switches.
type TicketConfig struct {
	CleanupEnabled     bool     `yaml:"cleanup_enabled"`
	CleanupDelay       Duration `yaml:"cleanup_delay"`
	SuppressDuplicates bool     `yaml:"suppress_duplicates"`
}

// TopologyConfig tunes the topology builder.
type TopologyConfig struct {
	RebuildInterval     Duration `yaml:"rebuild_interval"`
	MaxConcurrentBuilds int      `yaml:"max_concurrent_builds"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
