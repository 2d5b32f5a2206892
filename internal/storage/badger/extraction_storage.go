package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ExtractionStorage implements the ExtractionStorage interface for Badger
type ExtractionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewExtractionStorage creates a new ExtractionStorage instance
func NewExtractionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ExtractionStorage {
	return &ExtractionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ExtractionStorage) CreateExtraction(extraction *models.Extraction) (*models.Extraction, error) {
	if extraction.ID == "" {
		return nil, fmt.Errorf("extraction ID is required")
	}
	if extraction.GrantID == "" {
		return nil, fmt.Errorf("extraction grant ID is required")
	}

	if existing, err := s.GetExtractionByGrantID(extraction.GrantID); err == nil && existing != nil {
		return nil, fmt.Errorf("extraction already exists for grant %s", extraction.GrantID)
	}

	now := time.Now()
	extraction.CreatedAt = now
	extraction.UpdatedAt = now

	if err := s.db.Store().Insert(extraction.ID, extraction); err != nil {
		return nil, fmt.Errorf("failed to create extraction: %w", err)
	}
	return extraction, nil
}

// UpsertExtractionFields overwrites the LLM-owned columns of an extraction,
// leaving the text artifact columns untouched
func (s *ExtractionStorage) UpsertExtractionFields(extractionID string, fields models.ExtractionFields, model string, confidence float64, summary string, extractionErr string) (*models.Extraction, error) {
	extraction, err := s.GetExtraction(extractionID)
	if err != nil {
		return nil, err
	}

	extraction.Fields = fields
	extraction.ExtractionModel = model
	extraction.ExtractionConfidence = confidence
	if summary != "" {
		extraction.ExtractedSummary = summary
	}
	extraction.ExtractionError = extractionErr
	extraction.UpdatedAt = time.Now()

	if err := s.db.Store().Update(extraction.ID, extraction); err != nil {
		return nil, fmt.Errorf("failed to update extraction fields: %w", err)
	}
	return extraction, nil
}

func (s *ExtractionStorage) GetExtraction(id string) (*models.Extraction, error) {
	var extraction models.Extraction
	if err := s.db.Store().Get(id, &extraction); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("extraction not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get extraction: %w", err)
	}
	return &extraction, nil
}

func (s *ExtractionStorage) GetExtractionByGrantID(grantID string) (*models.Extraction, error) {
	var extractions []models.Extraction
	if err := s.db.Store().Find(&extractions, badgerhold.Where("GrantID").Eq(grantID)); err != nil {
		return nil, fmt.Errorf("failed to find extraction: %w", err)
	}
	if len(extractions) == 0 {
		return nil, fmt.Errorf("extraction not found for grant: %s", grantID)
	}
	return &extractions[0], nil
}

func (s *ExtractionStorage) GetExtractionByStagingID(stagingID string) (*models.Extraction, error) {
	var extractions []models.Extraction
	if err := s.db.Store().Find(&extractions, badgerhold.Where("StagingID").Eq(stagingID)); err != nil {
		return nil, fmt.Errorf("failed to find extraction: %w", err)
	}
	if len(extractions) == 0 {
		return nil, fmt.Errorf("extraction not found for staging item: %s", stagingID)
	}
	return &extractions[0], nil
}

// ListExtractionsNeedingLLM returns extractions whose model tag differs from
// target. With force set, extractions already tagged with target are included
// too, which is how reprocessing after a model upgrade works.
func (s *ExtractionStorage) ListExtractionsNeedingLLM(target string, force bool, limit int) ([]*models.Extraction, error) {
	query := badgerhold.Where("ExtractedText").Ne("")
	if !force {
		query = query.And("ExtractionModel").Ne(target)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var extractions []models.Extraction
	if err := s.db.Store().Find(&extractions, query); err != nil {
		return nil, fmt.Errorf("failed to list extractions needing extraction: %w", err)
	}

	result := make([]*models.Extraction, 0, len(extractions))
	for i := range extractions {
		result = append(result, &extractions[i])
	}
	return result, nil
}

// ListExtractionsNeedingEmbedding returns extractions with non-empty text and
// no embedding row yet
func (s *ExtractionStorage) ListExtractionsNeedingEmbedding(limit int) ([]*models.Extraction, error) {
	var extractions []models.Extraction
	if err := s.db.Store().Find(&extractions, badgerhold.Where("ExtractedText").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}

	result := make([]*models.Extraction, 0, len(extractions))
	for i := range extractions {
		var embeddings []models.Embedding
		if err := s.db.Store().Find(&embeddings, badgerhold.Where("ExtractionID").Eq(extractions[i].ID)); err != nil {
			return nil, fmt.Errorf("failed to check embedding for extraction %s: %w", extractions[i].ID, err)
		}
		if len(embeddings) > 0 {
			continue
		}
		result = append(result, &extractions[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *ExtractionStorage) DeleteExtraction(id string) error {
	if err := s.db.Store().Delete(id, &models.Extraction{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete extraction: %w", err)
	}
	return nil
}

func (s *ExtractionStorage) CountExtractions() (int, error) {
	count, err := s.db.Store().Count(&models.Extraction{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count extractions: %w", err)
	}
	return int(count), nil
}
