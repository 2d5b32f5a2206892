package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	badgerstorage "github.com/ternarybob/convoca/internal/storage/badger"
)

// fakeLLM answers the summary call first, then the fields call
type fakeLLM struct {
	summary string
	fields  string
	calls   int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	f.calls++
	if f.calls == 1 {
		return f.summary, nil
	}
	return f.fields, nil
}

func (f *fakeLLM) ModelName() string                    { return "test-model-1" }
func (f *fakeLLM) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeLLM) Close() error                          { return nil }

func setupExtraction(t *testing.T) (interfaces.StorageManager, *models.Extraction, *models.Grant) {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	grant, err := storage.GrantStorage().UpsertGrant(&models.Grant{
		ExternalID: "123456",
		Titulo:     "Ayudas a la promoción cultural",
	})
	require.NoError(t, err)

	extraction, err := storage.ExtractionStorage().CreateExtraction(&models.Extraction{
		ID:            common.NewExtractionID(),
		GrantID:       grant.ID,
		StagingID:     common.NewStagingID(),
		ExternalID:    grant.ExternalID,
		ExtractedText: "Convocatoria de ayudas para actividades culturales y turísticas del municipio.",
	})
	require.NoError(t, err)

	return storage, extraction, grant
}

func TestExtractFields(t *testing.T) {
	storage, extraction, grant := setupExtraction(t)

	summary := strings.Repeat("Resumen de la convocatoria con beneficiario y cuantía. ", 3)
	llm := &fakeLLM{
		summary: summary,
		fields:  `{"title": "Ayudas culturales", "sectors_raw": "cultura y turismo", "region_mentioned": "Sevilla"}`,
	}

	service := NewService(llm, storage.ExtractionStorage(), storage.GrantStorage(), arbor.NewLogger())

	updated, err := service.ExtractFields(context.Background(), extraction)
	require.NoError(t, err)

	assert.Equal(t, "test-model-1", updated.ExtractionModel)
	assert.Equal(t, "Ayudas culturales", updated.Fields.Title)
	assert.Equal(t, []string{"Cultura y artes", "Turismo"}, updated.Fields.SectorsInferred)
	assert.Equal(t, "ES618", updated.Fields.RegionCode)
	assert.Greater(t, updated.ExtractionConfidence, 0.7)
	assert.Empty(t, updated.ExtractionError)
	assert.Equal(t, strings.TrimSpace(summary), updated.ExtractedSummary)

	// Sector back-fill: the grant had none of its own
	refreshed, err := storage.GrantStorage().GetGrant(grant.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cultura y artes", "Turismo"}, refreshed.SectoresNormalizados)
}

func TestExtractFields_GrantSectorsNotOverwritten(t *testing.T) {
	storage, extraction, grant := setupExtraction(t)

	grant.SectoresNormalizados = []string{"Deporte"}
	_, err := storage.GrantStorage().UpsertGrant(grant)
	require.NoError(t, err)

	llm := &fakeLLM{
		summary: strings.Repeat("Resumen suficientemente largo de la convocatoria. ", 3),
		fields:  `{"sectors_raw": "cultura"}`,
	}
	service := NewService(llm, storage.ExtractionStorage(), storage.GrantStorage(), arbor.NewLogger())

	_, err = service.ExtractFields(context.Background(), extraction)
	require.NoError(t, err)

	refreshed, err := storage.GrantStorage().GetGrant(grant.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Deporte"}, refreshed.SectoresNormalizados)
}

func TestExtractFields_UnparseableResponse(t *testing.T) {
	storage, extraction, _ := setupExtraction(t)

	llm := &fakeLLM{
		summary: strings.Repeat("Resumen válido de la convocatoria con detalle. ", 3),
		fields:  "Lo siento, no puedo devolver un objeto JSON.",
	}
	service := NewService(llm, storage.ExtractionStorage(), storage.GrantStorage(), arbor.NewLogger())

	updated, err := service.ExtractFields(context.Background(), extraction)
	require.NoError(t, err)

	// The summary is kept but the model tag stays unset so a later run retries
	assert.Empty(t, updated.ExtractionModel)
	assert.Equal(t, float64(0), updated.ExtractionConfidence)
	assert.NotEmpty(t, updated.ExtractedSummary)
	assert.NotEmpty(t, updated.ExtractionError)
	assert.Empty(t, updated.Fields.Title)

	// And the selector still offers it to the llm stage
	pending, err := storage.ExtractionStorage().ListExtractionsNeedingLLM("test-model-1", false, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, extraction.ID, pending[0].ID)
}

func TestExtractFields_EmptyText(t *testing.T) {
	storage, extraction, _ := setupExtraction(t)

	extraction.ExtractedText = "   "
	service := NewService(&fakeLLM{}, storage.ExtractionStorage(), storage.GrantStorage(), arbor.NewLogger())

	_, err := service.ExtractFields(context.Background(), extraction)
	assert.Error(t, err)
}
