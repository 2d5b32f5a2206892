package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/convoca/internal/models"
)

func TestUpsertStaging(t *testing.T) {
	storage := newTestManager(t)
	staging := storage.StagingStorage()

	item, inserted, err := staging.UpsertStaging("812345", "batch_1", "https://example.org/doc.pdf", "grant_1")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, models.StagingPending, item.Status)
	assert.NotEmpty(t, item.ID)
	assert.NotEmpty(t, item.PDFURLHash)
	assert.Equal(t, "grant_1", item.GrantID)

	// Same external ID again: refreshed, not duplicated
	again, inserted, err := staging.UpsertStaging("812345", "batch_2", "https://example.org/doc.pdf", "grant_1")
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, item.ID, again.ID)
	assert.Equal(t, "batch_2", again.BatchID)
	assert.Equal(t, "grant_1", again.GrantID)

	counts, err := staging.CountStagingByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StagingPending])
}

func TestUpsertStaging_TerminalUnchanged(t *testing.T) {
	storage := newTestManager(t)
	staging := storage.StagingStorage()

	item, _, err := staging.UpsertStaging("812345", "batch_1", "", "grant_1")
	require.NoError(t, err)

	applied, err := staging.TransitionStatus(item.ID,
		[]models.StagingStatus{models.StagingPending}, models.StagingCompleted,
		models.StagePDF, "")
	require.NoError(t, err)
	require.True(t, applied)

	// Re-ingestion must not reopen a completed item
	again, inserted, err := staging.UpsertStaging("812345", "batch_2", "", "grant_1")
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, models.StagingCompleted, again.Status)
	assert.Equal(t, "batch_1", again.BatchID)
}

func TestUpsertStaging_RequiresExternalID(t *testing.T) {
	storage := newTestManager(t)
	_, _, err := storage.StagingStorage().UpsertStaging("", "batch_1", "", "")
	assert.Error(t, err)
}

func TestTransitionStatus_CAS(t *testing.T) {
	storage := newTestManager(t)
	staging := storage.StagingStorage()

	item, _, err := staging.UpsertStaging("812345", "batch_1", "", "grant_1")
	require.NoError(t, err)

	// First claim wins
	applied, err := staging.TransitionStatus(item.ID,
		[]models.StagingStatus{models.StagingPending}, models.StagingProcessing,
		models.StagePDF, "")
	require.NoError(t, err)
	assert.True(t, applied)

	// Second claim of the same item loses quietly
	applied, err = staging.TransitionStatus(item.ID,
		[]models.StagingStatus{models.StagingPending}, models.StagingProcessing,
		models.StagePDF, "")
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = staging.TransitionStatus(item.ID,
		[]models.StagingStatus{models.StagingProcessing}, models.StagingCompleted,
		models.StagePDF, "")
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := staging.GetStaging(item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StagingCompleted, got.Status)
	assert.Equal(t, models.StagePDF, got.LastStage)
}

func TestIncrementRetryAndRequeue(t *testing.T) {
	storage := newTestManager(t)
	staging := storage.StagingStorage()

	item, _, err := staging.UpsertStaging("812345", "batch_1", "", "grant_1")
	require.NoError(t, err)

	updated, err := staging.IncrementRetry(item.ID, "download timed out")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, "download timed out", updated.ErrorMessage)

	// Only terminal items can be requeued
	_, err = staging.Requeue(item.ID)
	assert.Error(t, err)

	applied, err := staging.TransitionStatus(item.ID,
		[]models.StagingStatus{models.StagingPending}, models.StagingFailed,
		models.StagePDF, "download timed out")
	require.NoError(t, err)
	require.True(t, applied)

	requeued, err := staging.Requeue(item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StagingPending, requeued.Status)
	assert.Equal(t, 0, requeued.RetryCount)
	assert.Empty(t, requeued.ErrorMessage)
}

func TestListStagingByStatus(t *testing.T) {
	storage := newTestManager(t)
	staging := storage.StagingStorage()

	for _, id := range []string{"100", "200", "300"} {
		_, _, err := staging.UpsertStaging(id, "batch_1", "", "")
		require.NoError(t, err)
	}

	pending, err := staging.ListStagingByStatus(models.StagingPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	limited, err := staging.ListStagingByStatus(models.StagingPending, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	byBatch, err := staging.ListStagingByBatch("batch_1")
	require.NoError(t, err)
	assert.Len(t, byBatch, 3)
}
