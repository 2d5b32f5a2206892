package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
)

func TestNewLLMService_UnknownProvider(t *testing.T) {
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = "openai"

	_, err := NewLLMService(config, arbor.NewLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestNewLLMService_MissingAPIKey(t *testing.T) {
	t.Run("Claude", func(t *testing.T) {
		config := common.NewDefaultConfig()
		config.LLM.DefaultProvider = common.LLMProviderClaude
		config.Claude.APIKey = ""

		_, err := NewLLMService(config, arbor.NewLogger())
		assert.Error(t, err)
	})

	t.Run("Gemini", func(t *testing.T) {
		config := common.NewDefaultConfig()
		config.LLM.DefaultProvider = common.LLMProviderGemini
		config.Gemini.APIKey = ""

		_, err := NewLLMService(config, arbor.NewLogger())
		assert.Error(t, err)
	})
}
