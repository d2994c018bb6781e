package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		p, err := New("openai", "sk-test")
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Name())
	})

	t.Run("anthropic", func(t *testing.T) {
		p, err := New("anthropic", "sk-test")
		require.NoError(t, err)
		assert.Equal(t, "anthropic", p.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New("gemini", "key")
		assert.Error(t, err)
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := New("openai", "")
		assert.Error(t, err)
	})
}

func TestRequestImageMIME(t *testing.T) {
	assert.Equal(t, "image/jpeg", Request{}.imageMIME())
	assert.Equal(t, "image/png", Request{ImageMIME: "image/png"}.imageMIME())
}
