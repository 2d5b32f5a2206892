package interfaces

import (
	"github.com/ternarybob/convoca/internal/models"
)

// StagingStorage persists pipeline cursors (StagingItem rows)
type StagingStorage interface {
	// UpsertStaging inserts or refreshes a staging item by external ID.
	// Terminal rows (completed/failed/skipped) are returned unchanged.
	// The returned bool is true when a new row was inserted.
	UpsertStaging(externalID, batchID, pdfURL, grantID string) (*models.StagingItem, bool, error)

	GetStaging(id string) (*models.StagingItem, error)
	GetStagingByExternalID(externalID string) (*models.StagingItem, error)

	// TransitionStatus is the CAS claim: it succeeds only when the item's
	// current status is one of from. Used both to claim work
	// (pending -> processing) and to finalise it.
	TransitionStatus(stagingID string, from []models.StagingStatus, to models.StagingStatus, stage models.Stage, errMsg string) (bool, error)

	// IncrementRetry bumps the retry counter and records the error message
	IncrementRetry(stagingID string, errMsg string) (*models.StagingItem, error)

	// Requeue resets a terminal item to pending with RetryCount=0
	Requeue(stagingID string) (*models.StagingItem, error)

	ListStagingByStatus(status models.StagingStatus, limit int) ([]*models.StagingItem, error)
	ListStagingByBatch(batchID string) ([]*models.StagingItem, error)
	CountStagingByStatus() (map[models.StagingStatus]int, error)
	DeleteStaging(id string) error
}

// GrantStorage persists grants fetched from the source registry
type GrantStorage interface {
	// UpsertGrant inserts or updates by external ID, preserving ID and CreatedAt
	UpsertGrant(grant *models.Grant) (*models.Grant, error)

	GetGrant(id string) (*models.Grant, error)
	GetGrantByExternalID(externalID string) (*models.Grant, error)

	// DeleteGrant cascades to the grant's extraction and embedding
	DeleteGrant(id string) error

	CountGrants() (int, error)
}

// ExtractionStorage persists per-grant LLM output and text artifacts
type ExtractionStorage interface {
	// CreateExtraction fails when an extraction already exists for the grant
	CreateExtraction(extraction *models.Extraction) (*models.Extraction, error)

	// UpsertExtractionFields overwrites the LLM-owned columns of an extraction
	UpsertExtractionFields(extractionID string, fields models.ExtractionFields, model string, confidence float64, summary string, extractionErr string) (*models.Extraction, error)

	GetExtraction(id string) (*models.Extraction, error)
	GetExtractionByGrantID(grantID string) (*models.Extraction, error)
	GetExtractionByStagingID(stagingID string) (*models.Extraction, error)

	// ListExtractionsNeedingLLM returns extractions whose model tag differs
	// from target (or is empty). force includes extractions already tagged.
	ListExtractionsNeedingLLM(target string, force bool, limit int) ([]*models.Extraction, error)

	// ListExtractionsNeedingEmbedding returns extractions with non-empty text
	// and no embedding row
	ListExtractionsNeedingEmbedding(limit int) ([]*models.Extraction, error)

	DeleteExtraction(id string) error
	CountExtractions() (int, error)
}

// EmbeddingStorage persists dense vectors and serves similarity queries
type EmbeddingStorage interface {
	// CreateEmbedding fails when the extraction already has an embedding,
	// unless replace is set. Dimensions must equal len(vector).
	CreateEmbedding(embedding *models.Embedding, replace bool) (*models.Embedding, error)

	GetEmbedding(id string) (*models.Embedding, error)
	GetEmbeddingByExtractionID(extractionID string) (*models.Embedding, error)

	// VectorSearch runs a cosine similarity query with AND-composed metadata
	// filters. Hits are sorted by score descending, ties by Grant.ID descending.
	VectorSearch(vector []float32, k int, minSimilarity float64, filters *models.SearchFilters) ([]*models.SearchHit, error)

	// FindSimilar looks up the reference grant's embedding and searches,
	// excluding the reference grant from the results
	FindSimilar(grantID string, k int, minSimilarity float64) ([]*models.SearchHit, error)

	DeleteEmbedding(id string) error
	CountEmbeddings() (int, error)

	// IndexSize and IndexDimension report vector index readiness for stats()
	IndexSize() int
	IndexDimension() int
}

// StorageManager aggregates the typed storages over one database
type StorageManager interface {
	StagingStorage() StagingStorage
	GrantStorage() GrantStorage
	ExtractionStorage() ExtractionStorage
	EmbeddingStorage() EmbeddingStorage
	Close() error
}
