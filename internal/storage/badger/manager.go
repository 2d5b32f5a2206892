package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	staging    interfaces.StagingStorage
	grant      interfaces.GrantStorage
	extraction interfaces.ExtractionStorage
	embedding  interfaces.EmbeddingStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager. The embedding storage
// rebuilds its in-memory vector index from the stored rows before the
// manager is returned.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	grant := NewGrantStorage(db, logger)
	extraction := NewExtractionStorage(db, logger)

	embedding, err := NewEmbeddingStorage(db, logger, grant, extraction)
	if err != nil {
		db.Close()
		return nil, err
	}

	manager := &Manager{
		db:         db,
		staging:    NewStagingStorage(db, logger),
		grant:      grant,
		extraction: extraction,
		embedding:  embedding,
		logger:     logger,
	}

	// Grant deletes cascade through the extraction and embedding storages
	grant.(*GrantStorage).extractions = extraction
	grant.(*GrantStorage).embeddings = embedding

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// StagingStorage returns the Staging storage interface
func (m *Manager) StagingStorage() interfaces.StagingStorage {
	return m.staging
}

// GrantStorage returns the Grant storage interface
func (m *Manager) GrantStorage() interfaces.GrantStorage {
	return m.grant
}

// ExtractionStorage returns the Extraction storage interface
func (m *Manager) ExtractionStorage() interfaces.ExtractionStorage {
	return m.extraction
}

// EmbeddingStorage returns the Embedding storage interface
func (m *Manager) EmbeddingStorage() interfaces.EmbeddingStorage {
	return m.embedding
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
