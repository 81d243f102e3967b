// Package config handles configuration loading and saving.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neo050/Office-Automation-Law-bot/logger"
)

const configFileName = "config.yaml"

var configDirOverride string

// SetConfigDir overrides the config directory for the current process.
// Empty value clears the override.
func SetConfigDir(dir string) {
	configDirOverride = strings.TrimSpace(dir)
}

// Duration wraps time.Duration so it can be written as "5m" / "72h" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Google   GoogleConfig   `yaml:"google"`
	Store    StoreConfig    `yaml:"store"`
	Intake   IntakeConfig   `yaml:"intake"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Idle     IdleConfig     `yaml:"idle"`
	History  HistoryConfig  `yaml:"history"`
	Retry    RetryConfig    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig contains webhook ingress settings.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"` // default: :8197
}

// WhatsAppConfig contains WhatsApp Cloud API credentials.
type WhatsAppConfig struct {
	Token         string `yaml:"token,omitempty"`         // env: WHATSAPP_TOKEN
	PhoneNumberID string `yaml:"phoneNumberId,omitempty"` // env: WHATSAPP_PHONE_NUMBER_ID
	VerifyToken   string `yaml:"verifyToken,omitempty"`   // env: WHATSAPP_VERIFY_TOKEN
	GraphVersion  string `yaml:"graphVersion,omitempty"`  // default: v23.0
	// FallbackTemplate names the pre-approved template used when a
	// free-form send lands outside the re-engagement window. Empty
	// disables the fallback.
	FallbackTemplate string `yaml:"fallbackTemplate,omitempty"`
}

// OpenAIConfig contains model call settings.
type OpenAIConfig struct {
	APIKey       string  `yaml:"apiKey,omitempty"` // env: OPENAI_API_KEY
	APIBase      string  `yaml:"apiBase,omitempty"`
	Model        string  `yaml:"model,omitempty"`        // default: gpt-4o-mini
	SummaryModel string  `yaml:"summaryModel,omitempty"` // default: same as model
	MaxTokens    int     `yaml:"maxTokens,omitempty"`
	Temperature  float64 `yaml:"temperature,omitempty"`
}

// GoogleConfig contains Sheets/Drive settings.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentialsFile,omitempty"` // env: GOOGLE_APPLICATION_CREDENTIALS
	SpreadsheetID   string `yaml:"spreadsheetId,omitempty"`   // env: SHEETS_ID
	SheetName       string `yaml:"sheetName,omitempty"`       // default: Clients
	DriveRootID     string `yaml:"driveRootId,omitempty"`     // env: DRIVE_ROOT_ID
}

// StoreConfig contains shared-store settings.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // SQLite file, default: lawbot.db under the config dir
}

// IntakeConfig bounds the inbound item queue.
type IntakeConfig struct {
	QueueMax       int      `yaml:"queueMax,omitempty"`       // default: 50
	QueueRetention Duration `yaml:"queueRetention,omitempty"` // default: 10m
	DedupWindow    Duration `yaml:"dedupWindow,omitempty"`    // default: 1h
}

// DeliveryConfig tunes the consolidated-link scheduler.
type DeliveryConfig struct {
	LinkDelay     Duration `yaml:"linkDelay,omitempty"`     // default: 5m
	SweepInterval Duration `yaml:"sweepInterval,omitempty"` // default: 10s
}

// IdleConfig tunes the idle finalizer.
type IdleConfig struct {
	QuietPeriod Duration `yaml:"quietPeriod,omitempty"` // default: 6m
}

// HistoryConfig tunes dialogue persistence.
type HistoryConfig struct {
	TTL             Duration `yaml:"ttl,omitempty"`             // default: 72h
	ConfirmationTTL Duration `yaml:"confirmationTtl,omitempty"` // default: 15m
}

// RetryConfig is the outbound resend schedule.
type RetryConfig struct {
	Delays []Duration `yaml:"delays,omitempty"` // default: [0s, 2s, 5s]
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Level   string `yaml:"level,omitempty"`
	Stdout  bool   `yaml:"stdout,omitempty"`
	File    string `yaml:"file,omitempty"`
}

// ConfigDir returns the directory holding config.yaml and local state.
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	if env := strings.TrimSpace(os.Getenv("LAWBOT_CONFIG_DIR")); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".lawbot"), nil
}

// Load reads config.yaml from the config dir and applies defaults plus
// environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configFileName, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("config: read %s: %w", configFileName, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(dir)
	return cfg, nil
}

// Save writes the config back to disk.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0600)
}

// applyEnv fills secrets from the environment when the file leaves them blank.
func (c *Config) applyEnv() {
	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(os.Getenv(key))
		}
	}
	setIfEmpty(&c.WhatsApp.Token, "WHATSAPP_TOKEN")
	setIfEmpty(&c.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setIfEmpty(&c.WhatsApp.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	setIfEmpty(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&c.OpenAI.APIBase, "OPENAI_API_BASE")
	setIfEmpty(&c.Google.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setIfEmpty(&c.Google.SpreadsheetID, "SHEETS_ID")
	setIfEmpty(&c.Google.DriveRootID, "DRIVE_ROOT_ID")
}

// BuildLoggerConfig maps the logging section onto the logger's own config.
func (c *Config) BuildLoggerConfig() logger.Config {
	enabled := c.Logging.Enabled == nil || *c.Logging.Enabled
	return logger.Config{
		Enabled: enabled,
		Level:   c.Logging.Level,
		Stdout:  c.Logging.Stdout,
		File:    c.Logging.File,
	}
}

// RetryDelays returns the resend schedule as plain durations.
func (c *Config) RetryDelays() []time.Duration {
	out := make([]time.Duration, 0, len(c.Retry.Delays))
	for _, d := range c.Retry.Delays {
		out = append(out, d.Std())
	}
	return out
}
