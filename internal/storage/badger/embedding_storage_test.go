package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/models"
)

func TestVectorSearch(t *testing.T) {
	storage := newTestManager(t)

	// Similarities against the query (1,0): 0.9, 0.7, 0.3
	gA := seedGrantWithEmbedding(t, storage, "100", "Junta de Andalucía", []float32{0.9, 0.43589})
	gB := seedGrantWithEmbedding(t, storage, "200", "Xunta de Galicia", []float32{0.7, 0.71414})
	seedGrantWithEmbedding(t, storage, "300", "Gobierno de Canarias", []float32{0.3, 0.95394})

	hits, err := storage.EmbeddingStorage().VectorSearch([]float32{1, 0}, 2, 0.4, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, gA.ID, hits[0].Grant.ID)
	assert.Equal(t, gB.ID, hits[1].Grant.ID)
	assert.InDelta(t, 0.9, hits[0].Score, 0.001)
	assert.InDelta(t, 0.7, hits[1].Score, 0.001)

	// Hits are enriched with the extraction row
	require.NotNil(t, hits[0].Extraction)
	assert.Equal(t, "100", hits[0].Extraction.ExternalID)
}

func TestVectorSearch_Filters(t *testing.T) {
	storage := newTestManager(t)

	seedGrantWithEmbedding(t, storage, "100", "Junta de Andalucía", []float32{0.9, 0.43589})
	gB := seedGrantWithEmbedding(t, storage, "200", "Xunta de Galicia", []float32{0.7, 0.71414})

	// Organismo is a case-insensitive substring match
	hits, err := storage.EmbeddingStorage().VectorSearch([]float32{1, 0}, 10, 0,
		&models.SearchFilters{Organismo: "galicia"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, gB.ID, hits[0].Grant.ID)

	hits, err = storage.EmbeddingStorage().VectorSearch([]float32{1, 0}, 10, 0,
		&models.SearchFilters{Organismo: "ministerio"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = storage.EmbeddingStorage().VectorSearch([]float32{1, 0}, 10, 0,
		&models.SearchFilters{OnlyOpen: true})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFindSimilar_ExcludesReference(t *testing.T) {
	storage := newTestManager(t)

	gA := seedGrantWithEmbedding(t, storage, "100", "A", []float32{1, 0})
	gB := seedGrantWithEmbedding(t, storage, "200", "B", []float32{0.9, 0.43589})

	hits, err := storage.EmbeddingStorage().FindSimilar(gA.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, gB.ID, hits[0].Grant.ID)

	// A grant without an embedding cannot anchor a similarity query
	grant, err := storage.GrantStorage().UpsertGrant(&models.Grant{ExternalID: "300"})
	require.NoError(t, err)
	_, err = storage.EmbeddingStorage().FindSimilar(grant.ID, 10, 0)
	assert.Error(t, err)
}

func TestCreateEmbedding_Validation(t *testing.T) {
	storage := newTestManager(t)
	embeddings := storage.EmbeddingStorage()

	grant := seedGrantWithEmbedding(t, storage, "100", "A", []float32{1, 0})
	extraction, err := storage.ExtractionStorage().GetExtractionByGrantID(grant.ID)
	require.NoError(t, err)

	// Second embedding for the same extraction requires replace
	dup := &models.Embedding{
		ID:           common.NewEmbeddingID(),
		ExtractionID: extraction.ID,
		Vector:       []float32{0, 1},
		Dimensions:   2,
	}
	_, err = embeddings.CreateEmbedding(dup, false)
	assert.Error(t, err)

	replaced, err := embeddings.CreateEmbedding(dup, true)
	require.NoError(t, err)
	// Replacement reuses the original row ID
	existing, err := embeddings.GetEmbeddingByExtractionID(extraction.ID)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, replaced.ID)
	assert.Equal(t, 1, embeddings.IndexSize())

	// Declared dimension must match the vector
	_, err = embeddings.CreateEmbedding(&models.Embedding{
		ID:           common.NewEmbeddingID(),
		ExtractionID: "ext_other",
		Vector:       []float32{1, 0},
		Dimensions:   768,
	}, false)
	assert.Error(t, err)
}

func TestDeleteGrant_Cascades(t *testing.T) {
	storage := newTestManager(t)

	grant := seedGrantWithEmbedding(t, storage, "100", "A", []float32{1, 0})
	seedGrantWithEmbedding(t, storage, "200", "B", []float32{0, 1})

	require.NoError(t, storage.GrantStorage().DeleteGrant(grant.ID))

	_, err := storage.ExtractionStorage().GetExtractionByGrantID(grant.ID)
	assert.Error(t, err)

	count, err := storage.EmbeddingStorage().CountEmbeddings()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, storage.EmbeddingStorage().IndexSize())
}

func TestIndexRebuildOnOpen(t *testing.T) {
	path := t.TempDir()

	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	seedGrantWithEmbedding(t, manager, "100", "A", []float32{1, 0})
	seedGrantWithEmbedding(t, manager, "200", "B", []float32{0.9, 0.43589})
	require.NoError(t, manager.Close())

	reopened := openTestManager(t, path)
	assert.Equal(t, 2, reopened.EmbeddingStorage().IndexSize())
	assert.Equal(t, 2, reopened.EmbeddingStorage().IndexDimension())

	hits, err := reopened.EmbeddingStorage().VectorSearch([]float32{1, 0}, 10, 0.5, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
