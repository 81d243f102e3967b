package config

import (
	"path/filepath"
	"time"
)

const (
	defaultAddr            = ":8197"
	defaultGraphVersion    = "v23.0"
	defaultModel           = "gpt-4o-mini"
	defaultSheetName       = "Clients"
	defaultQueueMax        = 50
	defaultQueueRetention  = 10 * time.Minute
	defaultDedupWindow     = time.Hour
	defaultLinkDelay       = 5 * time.Minute
	defaultSweepInterval   = 10 * time.Second
	defaultQuietPeriod     = 6 * time.Minute
	defaultHistoryTTL      = 72 * time.Hour
	defaultConfirmationTTL = 15 * time.Minute
)

func defaultRetryDelays() []Duration {
	return []Duration{0, Duration(2 * time.Second), Duration(5 * time.Second)}
}

func defaultLoggingConfig() LoggingConfig {
	enabled := true
	return LoggingConfig{
		Enabled: &enabled,
		Level:   "info",
		Stdout:  true,
		File:    "logs/lawbot.log",
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults("")
	return cfg
}

func (c *Config) applyDefaults(dir string) {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.WhatsApp.GraphVersion == "" {
		c.WhatsApp.GraphVersion = defaultGraphVersion
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaultModel
	}
	if c.OpenAI.SummaryModel == "" {
		c.OpenAI.SummaryModel = c.OpenAI.Model
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = defaultSheetName
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(dir, "lawbot.db")
	}
	if c.Intake.QueueMax <= 0 {
		c.Intake.QueueMax = defaultQueueMax
	}
	if c.Intake.QueueRetention <= 0 {
		c.Intake.QueueRetention = Duration(defaultQueueRetention)
	}
	if c.Intake.DedupWindow <= 0 {
		c.Intake.DedupWindow = Duration(defaultDedupWindow)
	}
	if c.Delivery.LinkDelay <= 0 {
		c.Delivery.LinkDelay = Duration(defaultLinkDelay)
	}
	if c.Delivery.SweepInterval <= 0 {
		c.Delivery.SweepInterval = Duration(defaultSweepInterval)
	}
	if c.Idle.QuietPeriod <= 0 {
		c.Idle.QuietPeriod = Duration(defaultQuietPeriod)
	}
	if c.History.TTL <= 0 {
		c.History.TTL = Duration(defaultHistoryTTL)
	}
	if c.History.ConfirmationTTL <= 0 {
		c.History.ConfirmationTTL = Duration(defaultConfirmationTTL)
	}
	if len(c.Retry.Delays) == 0 {
		c.Retry.Delays = defaultRetryDelays()
	}

	def := defaultLoggingConfig()
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if c.Logging.File == "" && !c.Logging.Stdout {
		c.Logging.Stdout = def.Stdout
		c.Logging.File = def.File
	}
	if c.Logging.Enabled == nil {
		c.Logging.Enabled = def.Enabled
	}
}
