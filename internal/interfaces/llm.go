package interfaces

import (
	"context"
)

// Message is one turn of an LLM conversation
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMService is a text-in, text-out completion service
type LLMService interface {
	// Chat generates a completion for the conversation history
	Chat(ctx context.Context, messages []Message) (string, error)

	// ModelName returns the model identifier used for completions.
	// It doubles as the extraction version tag.
	ModelName() string

	HealthCheck(ctx context.Context) error
	Close() error
}

// EmbeddingTaskType selects the embedding optimisation target.
// Ingestion always uses TaskSemanticSimilarity; queries always use TaskRetrievalQuery.
type EmbeddingTaskType string

const (
	TaskSemanticSimilarity EmbeddingTaskType = "SEMANTIC_SIMILARITY"
	TaskRetrievalQuery     EmbeddingTaskType = "RETRIEVAL_QUERY"
)

// EmbeddingService generates fixed-dimension dense vectors
type EmbeddingService interface {
	// Embed generates a vector for text. Inputs beyond the configured
	// character limit are truncated client-side before the call.
	Embed(ctx context.Context, text string, taskType EmbeddingTaskType) ([]float32, error)

	ModelName() string
	Dimension() int
}
