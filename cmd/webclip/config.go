package main

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config is the webclip daemon configuration, loaded from YAML.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	MCPQUIC    MCPQUICConfig    `yaml:"mcp_quic"`
	Store      StoreConfig      `yaml:"store"`
	Browser    BrowserConfig    `yaml:"browser"`
	Extract    ExtractConfig    `yaml:"extract"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
}

// HTTPConfig holds the local API listener settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MCPQUICConfig holds the optional MCP-over-QUIC listener settings.
// Without a certificate pair an ephemeral self-signed one is generated.
type MCPQUICConfig struct {
	Addr string `yaml:"addr"`
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// StoreConfig holds capture persistence settings.
type StoreConfig struct {
	// Path to the SQLite database file. Empty means in-memory only.
	Path string `yaml:"path"`
	// Cap is the maximum number of retained captures.
	Cap int `yaml:"cap"`
	// AuditRetentionDays bounds the audit trail. Only used with a
	// SQLite-backed store.
	AuditRetentionDays int `yaml:"audit_retention_days"`
}

// BrowserConfig holds Chrome settings.
type BrowserConfig struct {
	// RemoteURL attaches to an external Chrome instead of launching.
	RemoteURL  string        `yaml:"remote_url"`
	Headful    bool          `yaml:"headful"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// ExtractConfig tunes full-page extraction.
type ExtractConfig struct {
	// MainSelectors override the main-content candidate list.
	MainSelectors []string `yaml:"main_selectors"`
	// MinMainLen is the minimum text length for a main-content
	// candidate to win over the whole document.
	MinMainLen int `yaml:"min_main_len"`
}

// ScreenshotConfig tunes the screenshot guard rails.
type ScreenshotConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Cap, validation.Min(0)),
		validation.Field(&c.Store.AuditRetentionDays, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := validation.ValidateStruct(&c.Extract,
		validation.Field(&c.Extract.MinMainLen, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if err := validation.ValidateStruct(&c.Screenshot,
		validation.Field(&c.Screenshot.Cooldown, validation.Min(time.Duration(0))),
		validation.Field(&c.Screenshot.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		HTTP:  HTTPConfig{Addr: ":8377"},
		Store: StoreConfig{Cap: 100, AuditRetentionDays: 30},
	}
}

// LoadConfig reads and validates a YAML configuration file. Values not
// present in the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
