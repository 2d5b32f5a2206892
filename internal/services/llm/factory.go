package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
)

// NewLLMService creates the LLM service selected by llm.default_provider
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.LLM.DefaultProvider {
	case common.LLMProviderClaude, "":
		return NewClaudeService(&config.Claude, logger)
	case common.LLMProviderGemini:
		return NewGeminiService(&config.Gemini, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (supported: claude, gemini)", config.LLM.DefaultProvider)
	}
}
