package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/convoca/internal/models"
)

// DocumentProcessor downloads and extracts text from grant PDFs
type DocumentProcessor interface {
	// ProcessDocument downloads the grant's classified PDF (when present),
	// extracts its text, and creates the grant's extraction row. Grants
	// without a usable PDF get a metadata-only extraction.
	ProcessDocument(ctx context.Context, item *models.StagingItem, grant *models.Grant) (*models.Extraction, error)
}

// ExtractionService runs LLM summarisation and structured field extraction
type ExtractionService interface {
	// ExtractFields generates the summary and the structured field set for an
	// extraction, normalises controlled vocabularies, and persists the result.
	// A malformed LLM response that survives the repair chain is stored with
	// the extraction error recorded rather than failing the item.
	ExtractFields(ctx context.Context, extraction *models.Extraction) (*models.Extraction, error)
}

// SearchService answers semantic queries over the embedded corpus
type SearchService interface {
	// Search embeds the query text and runs a filtered vector search
	Search(ctx context.Context, query string, k int, minSimilarity float64, filters *models.SearchFilters) ([]*models.SearchHit, error)

	// FindSimilar returns grants similar to a reference grant
	FindSimilar(ctx context.Context, grantID string, k int, minSimilarity float64) ([]*models.SearchHit, error)
}

// DeleteMessageFunc acknowledges a received queue message. Calling it removes
// the message; not calling it before the visibility timeout makes the message
// visible again for redelivery.
type DeleteMessageFunc func() error

// QueueManager is a named-queue transport with visibility-timeout redelivery
type QueueManager interface {
	// Publish appends a task to the named stage queue
	Publish(queueName string, msg *models.TaskMessage) error

	// PublishDelayed appends a task that becomes visible only after delay,
	// which is how retry backoff is expressed on the queue
	PublishDelayed(queueName string, msg *models.TaskMessage, delay time.Duration) error

	// Receive pops the oldest visible message. Returns models.ErrNoMessage
	// when nothing is visible. The returned delete function acknowledges the
	// message after the handler completes (late ack).
	Receive(queueName string) (*models.TaskMessage, DeleteMessageFunc, error)

	// Depth reports the number of messages in the queue, visible or not
	Depth(queueName string) (int, error)

	Close() error
}
