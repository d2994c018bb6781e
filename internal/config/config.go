package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Config represents the main memekeeper configuration
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Admin panel
	Admin AdminConfig `json:"admin" mapstructure:"admin"`

	// AI provider
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Ingestion pipeline
	Ingest IngestConfig `json:"ingest" mapstructure:"ingest"`

	// Reply behavior
	Reply ReplyConfig `json:"reply" mapstructure:"reply"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory (index file and payload storage)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
}

// AdminConfig holds the admin panel server configuration
type AdminConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Provider        string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey          string `json:"api_key" mapstructure:"api_key"`
	ClassifierModel string `json:"classifier_model" mapstructure:"classifier_model"`
	ReplyModel      string `json:"reply_model" mapstructure:"reply_model"`
}

// IngestConfig holds ingestion pipeline configuration
type IngestConfig struct {
	CooldownSeconds        int `json:"cooldown_seconds" mapstructure:"cooldown_seconds"`
	FetchTimeoutSeconds    int `json:"fetch_timeout_seconds" mapstructure:"fetch_timeout_seconds"`
	ClassifyTimeoutSeconds int `json:"classify_timeout_seconds" mapstructure:"classify_timeout_seconds"`
}

// ReplyConfig holds reply behavior configuration
type ReplyConfig struct {
	// Probability in [0,1] that a text message triggers a generated reply
	Probability float64 `json:"probability" mapstructure:"probability"`
	// MenuSampleCap bounds how many tag descriptions are surfaced to the
	// generator per reply
	MenuSampleCap int `json:"menu_sample_cap" mapstructure:"menu_sample_cap"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled: true,
		},
		Admin: AdminConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    5000,
		},
		AI: AIConfig{
			Provider:        "openai",
			ClassifierModel: "gpt-4o-mini",
			ReplyModel:      "gpt-4o-mini",
		},
		Ingest: IngestConfig{
			CooldownSeconds:        30,
			FetchTimeoutSeconds:    15,
			ClassifyTimeoutSeconds: 60,
		},
		Reply: ReplyConfig{
			Probability:   1.0,
			MenuSampleCap: 50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when the Telegram channel is enabled")
	}

	if c.AI.Provider != "openai" && c.AI.Provider != "anthropic" {
		return fmt.Errorf("invalid AI provider %s (must be: openai, anthropic)", c.AI.Provider)
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("AI api_key is required")
	}

	if c.Ingest.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds must not be negative")
	}

	if c.Reply.Probability < 0 || c.Reply.Probability > 1 {
		return fmt.Errorf("reply probability must be in [0,1], got %v", c.Reply.Probability)
	}
	if c.Reply.MenuSampleCap <= 0 {
		return fmt.Errorf("menu_sample_cap must be positive")
	}

	if c.Admin.Enabled && (c.Admin.Port <= 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	return nil
}

// Tunables is the live view of the settings the admin surface and the config
// watcher may change at runtime. Readers get a consistent snapshot without
// restarting the daemon.
type Tunables struct {
	mu               sync.RWMutex
	cooldown         time.Duration
	replyProbability float64
	menuSampleCap    int
}

// NewTunables creates the live view from a loaded config
func NewTunables(cfg *Config) *Tunables {
	t := &Tunables{}
	t.Apply(cfg)
	return t
}

// Apply refreshes the view from a (re)loaded config
func (t *Tunables) Apply(cfg *Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cooldown = time.Duration(cfg.Ingest.CooldownSeconds) * time.Second
	t.replyProbability = cfg.Reply.Probability
	t.menuSampleCap = cfg.Reply.MenuSampleCap
}

// Cooldown returns the current classification cooldown
func (t *Tunables) Cooldown() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cooldown
}

// ReplyProbability returns the current reply probability
func (t *Tunables) ReplyProbability() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.replyProbability
}

// MenuSampleCap returns the current menu sample cap
func (t *Tunables) MenuSampleCap() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.menuSampleCap
}
