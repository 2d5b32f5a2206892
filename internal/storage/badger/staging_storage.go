package badger

import (
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// StagingStorage implements the StagingStorage interface for Badger
type StagingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStagingStorage creates a new StagingStorage instance
func NewStagingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StagingStorage {
	return &StagingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *StagingStorage) UpsertStaging(externalID, batchID, pdfURL, grantID string) (*models.StagingItem, bool, error) {
	if externalID == "" {
		return nil, false, fmt.Errorf("external ID is required")
	}

	var item *models.StagingItem
	inserted := false

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing []models.StagingItem
		if err := s.db.Store().TxFind(txn, &existing, badgerhold.Where("ExternalID").Eq(externalID)); err != nil {
			return fmt.Errorf("failed to look up staging item: %w", err)
		}

		now := time.Now()

		if len(existing) > 0 {
			item = &existing[0]
			// Terminal rows are never reopened by ingestion; only requeue does that
			if item.Status.IsTerminal() {
				return nil
			}
			item.BatchID = batchID
			if pdfURL != "" {
				item.PDFURL = pdfURL
				item.PDFURLHash = common.HashString(pdfURL)
			}
			if grantID != "" {
				item.GrantID = grantID
			}
			item.UpdatedAt = now
			if err := s.db.Store().TxUpdate(txn, item.ID, item); err != nil {
				return fmt.Errorf("failed to refresh staging item: %w", err)
			}
			return nil
		}

		item = &models.StagingItem{
			ID:         common.NewStagingID(),
			ExternalID: externalID,
			Status:     models.StagingPending,
			BatchID:    batchID,
			PDFURL:     pdfURL,
			GrantID:    grantID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if pdfURL != "" {
			item.PDFURLHash = common.HashString(pdfURL)
		}
		if err := s.db.Store().TxInsert(txn, item.ID, item); err != nil {
			return fmt.Errorf("failed to insert staging item: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return item, inserted, nil
}

func (s *StagingStorage) GetStaging(id string) (*models.StagingItem, error) {
	var item models.StagingItem
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("staging item not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get staging item: %w", err)
	}
	return &item, nil
}

func (s *StagingStorage) GetStagingByExternalID(externalID string) (*models.StagingItem, error) {
	var items []models.StagingItem
	if err := s.db.Store().Find(&items, badgerhold.Where("ExternalID").Eq(externalID)); err != nil {
		return nil, fmt.Errorf("failed to find staging item: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("staging item not found for external ID: %s", externalID)
	}
	return &items[0], nil
}

// TransitionStatus performs the compare-and-set claim. The update is applied
// only when the item's current status is one of from; a false return with a
// nil error means another worker got there first.
func (s *StagingStorage) TransitionStatus(stagingID string, from []models.StagingStatus, to models.StagingStatus, stage models.Stage, errMsg string) (bool, error) {
	applied := false

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var item models.StagingItem
		if err := s.db.Store().TxGet(txn, stagingID, &item); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("staging item not found: %s", stagingID)
			}
			return fmt.Errorf("failed to get staging item: %w", err)
		}

		matched := false
		for _, status := range from {
			if item.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		item.Status = to
		if stage != "" {
			item.LastStage = stage
		}
		item.ErrorMessage = errMsg
		item.UpdatedAt = time.Now()

		if err := s.db.Store().TxUpdate(txn, item.ID, &item); err != nil {
			return fmt.Errorf("failed to update staging item: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *StagingStorage) IncrementRetry(stagingID string, errMsg string) (*models.StagingItem, error) {
	var item models.StagingItem

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxGet(txn, stagingID, &item); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("staging item not found: %s", stagingID)
			}
			return fmt.Errorf("failed to get staging item: %w", err)
		}

		item.RetryCount++
		item.ErrorMessage = errMsg
		item.UpdatedAt = time.Now()

		if err := s.db.Store().TxUpdate(txn, item.ID, &item); err != nil {
			return fmt.Errorf("failed to update staging item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Requeue resets a terminal item back to pending with a fresh retry budget
func (s *StagingStorage) Requeue(stagingID string) (*models.StagingItem, error) {
	var item models.StagingItem

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		if err := s.db.Store().TxGet(txn, stagingID, &item); err != nil {
			if err == badgerhold.ErrNotFound {
				return fmt.Errorf("staging item not found: %s", stagingID)
			}
			return fmt.Errorf("failed to get staging item: %w", err)
		}

		if !item.Status.IsTerminal() {
			return fmt.Errorf("staging item %s is %s, only terminal items can be requeued", stagingID, item.Status)
		}

		item.Status = models.StagingPending
		item.RetryCount = 0
		item.ErrorMessage = ""
		item.UpdatedAt = time.Now()

		if err := s.db.Store().TxUpdate(txn, item.ID, &item); err != nil {
			return fmt.Errorf("failed to update staging item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *StagingStorage) ListStagingByStatus(status models.StagingStatus, limit int) ([]*models.StagingItem, error) {
	query := badgerhold.Where("Status").Eq(status).Index("Status")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []models.StagingItem
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to list staging items: %w", err)
	}

	result := make([]*models.StagingItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

func (s *StagingStorage) ListStagingByBatch(batchID string) ([]*models.StagingItem, error) {
	var items []models.StagingItem
	if err := s.db.Store().Find(&items, badgerhold.Where("BatchID").Eq(batchID).Index("BatchID")); err != nil {
		return nil, fmt.Errorf("failed to list staging items by batch: %w", err)
	}

	result := make([]*models.StagingItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

func (s *StagingStorage) CountStagingByStatus() (map[models.StagingStatus]int, error) {
	counts := make(map[models.StagingStatus]int)
	for _, status := range []models.StagingStatus{
		models.StagingPending,
		models.StagingProcessing,
		models.StagingCompleted,
		models.StagingFailed,
		models.StagingSkipped,
	} {
		count, err := s.db.Store().Count(&models.StagingItem{}, badgerhold.Where("Status").Eq(status).Index("Status"))
		if err != nil {
			return nil, fmt.Errorf("failed to count staging items (%s): %w", status, err)
		}
		counts[status] = int(count)
	}
	return counts, nil
}

func (s *StagingStorage) DeleteStaging(id string) error {
	if err := s.db.Store().Delete(id, &models.StagingItem{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete staging item: %w", err)
	}
	return nil
}
