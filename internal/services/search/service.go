// -----------------------------------------------------------------------
// Search Service - Synchronous semantic search over the embedded corpus
// -----------------------------------------------------------------------

package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
)

var _ interfaces.SearchService = (*Service)(nil)

// Service implements the SearchService interface. Queries are embedded with
// the RETRIEVAL_QUERY task type and resolved against the vector index; the
// pipeline's writers are never blocked by a search.
type Service struct {
	embedder   interfaces.EmbeddingService
	embeddings interfaces.EmbeddingStorage
	logger     arbor.ILogger
}

// NewService creates a new search service
func NewService(embedder interfaces.EmbeddingService, embeddings interfaces.EmbeddingStorage, logger arbor.ILogger) *Service {
	return &Service{
		embedder:   embedder,
		embeddings: embeddings,
		logger:     logger,
	}
}

// Search embeds the query text and runs a filtered vector search
func (s *Service) Search(ctx context.Context, query string, k int, minSimilarity float64, filters *models.SearchFilters) ([]*models.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, query, interfaces.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.embeddings.VectorSearch(vector, k, minSimilarity, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	s.logger.Debug().
		Int("query_length", len(query)).
		Int("hits", len(hits)).
		Dur("duration", time.Since(start)).
		Msg("Search completed")

	return hits, nil
}

// FindSimilar returns grants similar to a reference grant, excluding the
// reference itself
func (s *Service) FindSimilar(ctx context.Context, grantID string, k int, minSimilarity float64) ([]*models.SearchHit, error) {
	if grantID == "" {
		return nil, fmt.Errorf("grant ID cannot be empty")
	}
	return s.embeddings.FindSimilar(grantID, k, minSimilarity)
}
