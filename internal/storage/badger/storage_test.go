package badger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	return openTestManager(t, t.TempDir())
}

func openTestManager(t *testing.T, path string) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

// seedGrantWithEmbedding creates a grant, its extraction, and an embedding
// with the given vector
func seedGrantWithEmbedding(t *testing.T, storage interfaces.StorageManager, externalID, organismo string, vector []float32) *models.Grant {
	t.Helper()

	grant, err := storage.GrantStorage().UpsertGrant(&models.Grant{
		ExternalID: externalID,
		Titulo:     "Convocatoria " + externalID,
		Organismo:  organismo,
	})
	require.NoError(t, err)

	extraction, err := storage.ExtractionStorage().CreateExtraction(&models.Extraction{
		ID:            common.NewExtractionID(),
		GrantID:       grant.ID,
		StagingID:     common.NewStagingID(),
		ExternalID:    externalID,
		ExtractedText: "texto extraído de " + externalID,
	})
	require.NoError(t, err)

	_, err = storage.EmbeddingStorage().CreateEmbedding(&models.Embedding{
		ID:           common.NewEmbeddingID(),
		ExtractionID: extraction.ID,
		Vector:       vector,
		ModelName:    "test-embedding",
		Dimensions:   len(vector),
	}, false)
	require.NoError(t, err)

	return grant
}
