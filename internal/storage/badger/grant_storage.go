package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// GrantStorage implements the GrantStorage interface for Badger
type GrantStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// Wired by the manager after construction; used for cascade deletes
	extractions interfaces.ExtractionStorage
	embeddings  interfaces.EmbeddingStorage
}

// NewGrantStorage creates a new GrantStorage instance
func NewGrantStorage(db *BadgerDB, logger arbor.ILogger) interfaces.GrantStorage {
	return &GrantStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertGrant inserts or updates a grant by external ID. On update the
// existing ID and CreatedAt are preserved so downstream references stay valid.
func (s *GrantStorage) UpsertGrant(grant *models.Grant) (*models.Grant, error) {
	if grant.ExternalID == "" {
		return nil, fmt.Errorf("grant external ID is required")
	}

	now := time.Now()

	existing, err := s.GetGrantByExternalID(grant.ExternalID)
	if err == nil && existing != nil {
		grant.ID = existing.ID
		grant.CreatedAt = existing.CreatedAt
	} else {
		if grant.ID == "" {
			grant.ID = common.NewGrantID()
		}
		grant.CreatedAt = now
	}
	grant.UpdatedAt = now

	if err := s.db.Store().Upsert(grant.ID, grant); err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}
	return grant, nil
}

func (s *GrantStorage) GetGrant(id string) (*models.Grant, error) {
	var grant models.Grant
	if err := s.db.Store().Get(id, &grant); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("grant not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &grant, nil
}

func (s *GrantStorage) GetGrantByExternalID(externalID string) (*models.Grant, error) {
	var grants []models.Grant
	if err := s.db.Store().Find(&grants, badgerhold.Where("ExternalID").Eq(externalID)); err != nil {
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}
	if len(grants) == 0 {
		return nil, fmt.Errorf("grant not found for external ID: %s", externalID)
	}
	return &grants[0], nil
}

// DeleteGrant removes the grant together with its extraction and embedding
func (s *GrantStorage) DeleteGrant(id string) error {
	if s.extractions != nil {
		if extraction, err := s.extractions.GetExtractionByGrantID(id); err == nil && extraction != nil {
			if s.embeddings != nil {
				if embedding, err := s.embeddings.GetEmbeddingByExtractionID(extraction.ID); err == nil && embedding != nil {
					if err := s.embeddings.DeleteEmbedding(embedding.ID); err != nil {
						return fmt.Errorf("failed to cascade delete embedding: %w", err)
					}
				}
			}
			if err := s.extractions.DeleteExtraction(extraction.ID); err != nil {
				return fmt.Errorf("failed to cascade delete extraction: %w", err)
			}
		}
	}

	if err := s.db.Store().Delete(id, &models.Grant{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	return nil
}

func (s *GrantStorage) CountGrants() (int, error) {
	count, err := s.db.Store().Count(&models.Grant{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count grants: %w", err)
	}
	return int(count), nil
}
