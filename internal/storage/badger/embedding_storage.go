package badger

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EmbeddingStorage implements the EmbeddingStorage interface for Badger,
// pairing the persistent embedding bucket with an in-memory cosine index
type EmbeddingStorage struct {
	db          *BadgerDB
	logger      arbor.ILogger
	grants      interfaces.GrantStorage
	extractions interfaces.ExtractionStorage
	index       *vectorIndex
}

// NewEmbeddingStorage creates a new EmbeddingStorage instance and rebuilds
// the vector index from the stored embeddings
func NewEmbeddingStorage(db *BadgerDB, logger arbor.ILogger, grants interfaces.GrantStorage, extractions interfaces.ExtractionStorage) (interfaces.EmbeddingStorage, error) {
	s := &EmbeddingStorage{
		db:          db,
		logger:      logger,
		grants:      grants,
		extractions: extractions,
		index:       newVectorIndex(),
	}

	if err := s.rebuildIndex(); err != nil {
		return nil, fmt.Errorf("failed to rebuild vector index: %w", err)
	}

	return s, nil
}

func (s *EmbeddingStorage) rebuildIndex() error {
	var embeddings []models.Embedding
	if err := s.db.Store().Find(&embeddings, nil); err != nil {
		return fmt.Errorf("failed to scan embeddings: %w", err)
	}

	loaded := 0
	for i := range embeddings {
		emb := &embeddings[i]
		extraction, err := s.extractions.GetExtraction(emb.ExtractionID)
		if err != nil {
			s.logger.Warn().Str("embedding_id", emb.ID).Str("extraction_id", emb.ExtractionID).
				Msg("Skipping orphaned embedding during index rebuild")
			continue
		}
		if err := s.index.Add(emb.ID, emb.ExtractionID, extraction.GrantID, emb.Vector); err != nil {
			s.logger.Warn().Err(err).Str("embedding_id", emb.ID).Msg("Skipping embedding during index rebuild")
			continue
		}
		loaded++
	}

	if loaded > 0 {
		s.logger.Info().Int("vectors", loaded).Int("dimension", s.index.Dimension()).
			Msg("Vector index rebuilt")
	}
	return nil
}

func (s *EmbeddingStorage) CreateEmbedding(embedding *models.Embedding, replace bool) (*models.Embedding, error) {
	if embedding.ID == "" {
		return nil, fmt.Errorf("embedding ID is required")
	}
	if embedding.ExtractionID == "" {
		return nil, fmt.Errorf("embedding extraction ID is required")
	}
	if len(embedding.Vector) == 0 {
		return nil, fmt.Errorf("embedding vector is empty")
	}
	if embedding.Dimensions != len(embedding.Vector) {
		return nil, fmt.Errorf("embedding dimension mismatch: declared %d, vector has %d", embedding.Dimensions, len(embedding.Vector))
	}

	existing, _ := s.GetEmbeddingByExtractionID(embedding.ExtractionID)
	if existing != nil {
		if !replace {
			return nil, fmt.Errorf("embedding already exists for extraction %s", embedding.ExtractionID)
		}
		embedding.ID = existing.ID
		embedding.CreatedAt = existing.CreatedAt
	} else {
		embedding.CreatedAt = time.Now()
	}
	embedding.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(embedding.ID, embedding); err != nil {
		return nil, fmt.Errorf("failed to save embedding: %w", err)
	}

	extraction, err := s.extractions.GetExtraction(embedding.ExtractionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve extraction for index: %w", err)
	}
	if err := s.index.Add(embedding.ID, embedding.ExtractionID, extraction.GrantID, embedding.Vector); err != nil {
		return nil, fmt.Errorf("failed to index embedding: %w", err)
	}

	return embedding, nil
}

func (s *EmbeddingStorage) GetEmbedding(id string) (*models.Embedding, error) {
	var embedding models.Embedding
	if err := s.db.Store().Get(id, &embedding); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("embedding not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return &embedding, nil
}

func (s *EmbeddingStorage) GetEmbeddingByExtractionID(extractionID string) (*models.Embedding, error) {
	var embeddings []models.Embedding
	if err := s.db.Store().Find(&embeddings, badgerhold.Where("ExtractionID").Eq(extractionID)); err != nil {
		return nil, fmt.Errorf("failed to find embedding: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding not found for extraction: %s", extractionID)
	}
	return &embeddings[0], nil
}

// VectorSearch runs a cosine query against the index and enriches the hits
// with grant and extraction rows, applying the metadata filters post-scan
func (s *EmbeddingStorage) VectorSearch(vector []float32, k int, minSimilarity float64, filters *models.SearchFilters) ([]*models.SearchHit, error) {
	return s.search(vector, k, minSimilarity, filters, "")
}

// FindSimilar searches with the reference grant's own vector, excluding the
// reference grant from the results
func (s *EmbeddingStorage) FindSimilar(grantID string, k int, minSimilarity float64) ([]*models.SearchHit, error) {
	extraction, err := s.extractions.GetExtractionByGrantID(grantID)
	if err != nil {
		return nil, fmt.Errorf("grant %s has no extraction: %w", grantID, err)
	}
	embedding, err := s.GetEmbeddingByExtractionID(extraction.ID)
	if err != nil {
		return nil, fmt.Errorf("grant %s has no embedding: %w", grantID, err)
	}
	return s.search(embedding.Vector, k, minSimilarity, nil, grantID)
}

func (s *EmbeddingStorage) search(vector []float32, k int, minSimilarity float64, filters *models.SearchFilters, excludeGrantID string) ([]*models.SearchHit, error) {
	if k <= 0 {
		k = 10
	}

	scored, err := s.index.Search(vector, minSimilarity)
	if err != nil {
		return nil, err
	}

	hits := make([]*models.SearchHit, 0, k)
	for _, entry := range scored {
		if entry.GrantID == excludeGrantID && excludeGrantID != "" {
			continue
		}

		grant, err := s.grants.GetGrant(entry.GrantID)
		if err != nil {
			// Index can briefly lead the store after a cascade delete
			continue
		}
		if !matchesFilters(grant, filters) {
			continue
		}

		hit := &models.SearchHit{
			Grant: grant,
			Score: entry.Score,
		}
		if extraction, err := s.extractions.GetExtraction(entry.ExtractionID); err == nil {
			hit.Extraction = extraction
		}
		hits = append(hits, hit)

		if len(hits) >= k {
			break
		}
	}

	return hits, nil
}

// matchesFilters applies the AND-composed metadata predicates
func matchesFilters(grant *models.Grant, filters *models.SearchFilters) bool {
	if filters == nil {
		return true
	}
	if filters.Organismo != "" && !strings.Contains(strings.ToLower(grant.Organismo), strings.ToLower(filters.Organismo)) {
		return false
	}
	if filters.Ambito != "" && !strings.EqualFold(grant.Ambito, filters.Ambito) {
		return false
	}
	if filters.Finalidad != "" && grant.Finalidad != filters.Finalidad {
		return false
	}
	if filters.DateFrom != nil {
		if grant.FechaFinSolicitud.IsZero() || grant.FechaFinSolicitud.Before(*filters.DateFrom) {
			return false
		}
	}
	if filters.DateTo != nil {
		if grant.FechaFinSolicitud.IsZero() || grant.FechaFinSolicitud.After(*filters.DateTo) {
			return false
		}
	}
	if filters.OnlyOpen && !grant.Abierta {
		return false
	}
	return true
}

func (s *EmbeddingStorage) DeleteEmbedding(id string) error {
	if err := s.db.Store().Delete(id, &models.Embedding{}); err != nil {
		if err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to delete embedding: %w", err)
		}
	}
	s.index.Remove(id)
	return nil
}

func (s *EmbeddingStorage) CountEmbeddings() (int, error) {
	count, err := s.db.Store().Count(&models.Embedding{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return int(count), nil
}

// IndexSize reports the number of vectors currently in the in-memory index
func (s *EmbeddingStorage) IndexSize() int {
	return s.index.Size()
}

// IndexDimension reports the dimension of the in-memory index, 0 when empty
func (s *EmbeddingStorage) IndexDimension() int {
	return s.index.Dimension()
}
