package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Telegram.Enabled)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, 5000, cfg.Admin.Port)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 30, cfg.Ingest.CooldownSeconds)
	assert.Equal(t, 1.0, cfg.Reply.Probability)
	assert.Equal(t, 50, cfg.Reply.MenuSampleCap)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Telegram.BotToken = "token"
		cfg.AI.APIKey = "key"
		return cfg
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing bot token", func(t *testing.T) {
		cfg := valid()
		cfg.Telegram.BotToken = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bot token not required when telegram disabled", func(t *testing.T) {
		cfg := valid()
		cfg.Telegram.Enabled = false
		cfg.Telegram.BotToken = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := valid()
		cfg.AI.Provider = "llama"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := valid()
		cfg.AI.APIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative cooldown", func(t *testing.T) {
		cfg := valid()
		cfg.Ingest.CooldownSeconds = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("probability out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Reply.Probability = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive menu cap", func(t *testing.T) {
		cfg := valid()
		cfg.Reply.MenuSampleCap = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid admin port", func(t *testing.T) {
		cfg := valid()
		cfg.Admin.Port = 70000
		assert.Error(t, cfg.Validate())
	})
}

func TestTunables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.CooldownSeconds = 10
	cfg.Reply.Probability = 0.25
	cfg.Reply.MenuSampleCap = 7

	tun := NewTunables(cfg)
	require.NotNil(t, tun)

	assert.Equal(t, 10*time.Second, tun.Cooldown())
	assert.Equal(t, 0.25, tun.ReplyProbability())
	assert.Equal(t, 7, tun.MenuSampleCap())

	t.Run("apply updates all fields", func(t *testing.T) {
		updated := DefaultConfig()
		updated.Ingest.CooldownSeconds = 60
		updated.Reply.Probability = 0.9
		updated.Reply.MenuSampleCap = 12

		tun.Apply(updated)

		assert.Equal(t, time.Minute, tun.Cooldown())
		assert.Equal(t, 0.9, tun.ReplyProbability())
		assert.Equal(t, 12, tun.MenuSampleCap())
	})
}
