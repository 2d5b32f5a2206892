// -----------------------------------------------------------------------
// Embedding Service - Dense vector generation via the Gemini embedding API
// -----------------------------------------------------------------------

package embeddings

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"google.golang.org/genai"
)

// Service implements the EmbeddingService interface using Gemini embeddings.
// Document ingestion uses the SEMANTIC_SIMILARITY task type; query-time
// embeddings use RETRIEVAL_QUERY, matching how the vectors are compared.
type Service struct {
	config  *common.EmbeddingConfig
	client  *genai.Client
	logger  arbor.ILogger
	timeout time.Duration
}

var _ interfaces.EmbeddingService = (*Service)(nil)

// NewService creates a new embedding service
func NewService(embeddingConfig *common.EmbeddingConfig, apiKey string, logger arbor.ILogger) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google API key is required for embedding service (set via GOOGLE_API_KEY, CONVOCA_GEMINI_API_KEY, or gemini.api_key in config)")
	}

	if embeddingConfig.Model == "" {
		embeddingConfig.Model = "gemini-embedding-001"
	}
	if embeddingConfig.Dimension <= 0 {
		embeddingConfig.Dimension = 768
	}

	timeout, err := time.ParseDuration(embeddingConfig.Timeout)
	if err != nil || timeout <= 0 {
		timeout = time.Minute
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &Service{
		config:  embeddingConfig,
		client:  client,
		logger:  logger,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", embeddingConfig.Model).
		Int("dimension", embeddingConfig.Dimension).
		Int("max_chars", embeddingConfig.MaxChars).
		Msg("Embedding service initialized")

	return service, nil
}

// Embed generates a vector for the given text. Text beyond the configured
// character limit is truncated client-side; the API would otherwise reject
// the request outright.
func (s *Service) Embed(ctx context.Context, text string, taskType interfaces.EmbeddingTaskType) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	if truncated := truncateText(text, s.config.MaxChars); len(truncated) < len(text) {
		s.logger.Debug().
			Int("original_length", len(text)).
			Int("max_chars", s.config.MaxChars).
			Msg("Truncating text for embedding")
		text = truncated
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outputDim := int32(s.config.Dimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
		TaskType:             string(taskType),
	}

	start := time.Now()
	result, err := s.client.Models.EmbedContent(timeoutCtx, s.config.Model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != s.config.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.config.Dimension, len(embedding))
	}

	s.logger.Debug().
		Int("text_length", len(text)).
		Int("dimension", len(embedding)).
		Str("task_type", string(taskType)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return embedding, nil
}

// truncateText cuts text to at most maxBytes, backing off to the previous
// rune boundary so a multi-byte character is never split
func truncateText(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ModelName returns the embedding model identifier
func (s *Service) ModelName() string {
	return s.config.Model
}

// Dimension returns the configured embedding dimension
func (s *Service) Dimension() int {
	return s.config.Dimension
}
