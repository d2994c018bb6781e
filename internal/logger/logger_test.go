package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		log, err := New(Config{Level: "debug", Console: true})
		require.NoError(t, err)
		defer log.Close()
		assert.NotNil(t, log)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		log, err := New(Config{Level: "chatty"})
		require.NoError(t, err)
		defer log.Close()
		assert.Equal(t, "info", log.GetZerolog().GetLevel().String())
	})

	t.Run("file output creates directory and file", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "logs", "memekeeper.log")

		log, err := New(Config{Level: "info", File: logFile})
		require.NoError(t, err)
		defer log.Close()

		log.Info().Msg("hello")

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
}
