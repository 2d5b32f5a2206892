package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
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

type fakeRegistry struct {
	documents map[string][]byte
	err       error
	downloads int
}

func (f *fakeRegistry) Search(ctx context.Context, opts models.SearchOptions, page, size int) (*interfaces.RegistrySearchResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeRegistry) GetDetail(ctx context.Context, externalID string) (*interfaces.GrantDetail, error) {
	return nil, errors.New("not used")
}

func (f *fakeRegistry) DownloadDocument(ctx context.Context, documentID string) ([]byte, error) {
	f.downloads++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("unknown document %s", documentID)
	}
	return data, nil
}

func (f *fakeRegistry) Iterate(ctx context.Context, opts models.SearchOptions, maxItems int) interfaces.RegistryIterator {
	return nil
}

func setupProcessor(t *testing.T, registry interfaces.RegistryClient) (*Processor, interfaces.StorageManager) {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	processor := NewProcessor(registry, storage.GrantStorage(), storage.ExtractionStorage(),
		&common.DownloadsConfig{Dir: t.TempDir()}, logger)
	return processor, storage
}

func seedGrantAndStaging(t *testing.T, storage interfaces.StorageManager, docs []models.GrantDocument) (*models.StagingItem, *models.Grant) {
	t.Helper()

	grant, err := storage.GrantStorage().UpsertGrant(&models.Grant{
		ExternalID: "812345",
		Titulo:     "Ayudas a proyectos culturales",
		Documentos: docs,
	})
	require.NoError(t, err)

	item, _, err := storage.StagingStorage().UpsertStaging("812345", "batch_1", "", grant.ID)
	require.NoError(t, err)
	return item, grant
}

func TestProcessDocument(t *testing.T) {
	body := strings.Repeat("Convocatoria de subvenciones destinadas a proyectos culturales. ", 10)
	registry := &fakeRegistry{documents: map[string][]byte{
		"doc2": buildTestPDF(t, body),
	}}
	processor, storage := setupProcessor(t, registry)

	item, grant := seedGrantAndStaging(t, storage, []models.GrantDocument{
		{ID: "doc1", Filename: "anexo_i.pdf"},
		{ID: "doc2", Filename: "convocatoria.pdf"},
	})

	extraction, err := processor.ProcessDocument(context.Background(), item, grant)
	require.NoError(t, err)
	assert.Equal(t, grant.ID, extraction.GrantID)
	assert.Equal(t, item.ID, extraction.StagingID)
	assert.Equal(t, 1, extraction.PageCount)
	assert.Greater(t, extraction.WordCount, 0)
	assert.Contains(t, extraction.ExtractedText, "subvenciones")
	assert.False(t, extraction.IsScanned)

	// Markdown artifact written next to the downloads dir
	require.NotEmpty(t, extraction.MarkdownPath)
	artifact, err := os.ReadFile(extraction.MarkdownPath)
	require.NoError(t, err)
	assert.Contains(t, string(artifact), "Ayudas a proyectos culturales")

	// Grant carries the primary-PDF pointer
	updated, err := storage.GrantStorage().GetGrant(grant.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasPDF)
	assert.Equal(t, "doc2", updated.PDFID)
	assert.NotEmpty(t, updated.PDFHash)
}

func TestProcessDocument_ExistingExtractionReturned(t *testing.T) {
	registry := &fakeRegistry{}
	processor, storage := setupProcessor(t, registry)

	item, grant := seedGrantAndStaging(t, storage, []models.GrantDocument{
		{ID: "doc1", Filename: "convocatoria.pdf"},
	})

	existing, err := storage.ExtractionStorage().CreateExtraction(&models.Extraction{
		ID:            common.NewExtractionID(),
		GrantID:       grant.ID,
		StagingID:     item.ID,
		ExternalID:    grant.ExternalID,
		ExtractedText: "texto previo",
	})
	require.NoError(t, err)

	extraction, err := processor.ProcessDocument(context.Background(), item, grant)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, extraction.ID)
	assert.Zero(t, registry.downloads)
}

func TestProcessDocument_NoDocuments(t *testing.T) {
	processor, storage := setupProcessor(t, &fakeRegistry{})

	item, grant := seedGrantAndStaging(t, storage, nil)

	_, err := processor.ProcessDocument(context.Background(), item, grant)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestProcessDocument_FallbackWithoutPDFExtension(t *testing.T) {
	// Registry filenames are often bare identifiers; the document is still
	// downloaded and accepted when its bytes are a real PDF
	body := strings.Repeat("Bases reguladoras de las subvenciones convocadas. ", 10)
	registry := &fakeRegistry{documents: map[string][]byte{
		"doc1": buildTestPDF(t, body),
	}}
	processor, storage := setupProcessor(t, registry)

	item, grant := seedGrantAndStaging(t, storage, []models.GrantDocument{
		{ID: "doc1", Filename: "documento"},
	})

	extraction, err := processor.ProcessDocument(context.Background(), item, grant)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.downloads)
	assert.Contains(t, extraction.ExtractedText, "subvenciones")
	assert.False(t, extraction.IsScanned)
}

func TestProcessDocument_ScannedPDF(t *testing.T) {
	registry := &fakeRegistry{documents: map[string][]byte{
		"doc1": buildImagePDF(t, 2),
	}}
	processor, storage := setupProcessor(t, registry)

	item, grant := seedGrantAndStaging(t, storage, []models.GrantDocument{
		{ID: "doc1", Filename: "convocatoria.pdf"},
	})

	extraction, err := processor.ProcessDocument(context.Background(), item, grant)
	require.NoError(t, err)
	assert.True(t, extraction.IsScanned)
	assert.Empty(t, extraction.ExtractedText)
	assert.Zero(t, extraction.WordCount)
	assert.Equal(t, 2, extraction.PageCount)
	assert.NotEmpty(t, extraction.ExtractionError)

	// The artifact still exists so the item reads as processed, not lost
	require.NotEmpty(t, extraction.MarkdownPath)
	artifact, err := os.ReadFile(extraction.MarkdownPath)
	require.NoError(t, err)
	assert.Contains(t, string(artifact), "Documento escaneado")
}

func TestProcessDocument_DownloadFailure(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("connection reset")}
	processor, storage := setupProcessor(t, registry)

	item, grant := seedGrantAndStaging(t, storage, []models.GrantDocument{
		{ID: "doc1", Filename: "convocatoria.pdf"},
	})

	_, err := processor.ProcessDocument(context.Background(), item, grant)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doc1")
}

func TestSelectPrimaryDocument(t *testing.T) {
	tests := []struct {
		name string
		docs []models.GrantDocument
		want string // expected document ID, "" for nil
	}{
		{
			name: "Convocatoria beats earlier annex",
			docs: []models.GrantDocument{
				{ID: "a", Filename: "anexo_i.pdf"},
				{ID: "b", Filename: "Convocatoria_2026.PDF"},
			},
			want: "b",
		},
		{
			name: "Bases reguladoras preferred",
			docs: []models.GrantDocument{
				{ID: "a", Filename: "extracto.pdf"},
				{ID: "b", Filename: "bases_reguladoras.pdf"},
			},
			want: "b",
		},
		{
			name: "First PDF as fallback",
			docs: []models.GrantDocument{
				{ID: "a", Filename: "memoria.docx"},
				{ID: "b", Filename: "anexo_i.pdf"},
				{ID: "c", Filename: "anexo_ii.pdf"},
			},
			want: "b",
		},
		{
			name: "First document when nothing looks like a PDF",
			docs: []models.GrantDocument{
				{ID: "a", Filename: "solicitud.doc"},
				{ID: "b", Filename: "memoria.docx"},
			},
			want: "a",
		},
		{
			name: "Empty list",
			docs: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := selectPrimaryDocument(tt.docs)
			if tt.want == "" {
				assert.Nil(t, doc)
				return
			}
			require.NotNil(t, doc)
			assert.Equal(t, tt.want, doc.ID)
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Collapses space runs",
			input: "plazo   de \t presentación",
			want:  "plazo de presentación",
		},
		{
			name:  "CRLF and form feeds become newlines",
			input: "página uno\r\npágina dos\fpágina tres",
			want:  "página uno\npágina dos\npágina tres",
		},
		{
			name:  "Blank line runs collapse to one",
			input: "artículo 1\n\n\n\n\nartículo 2",
			want:  "artículo 1\n\nartículo 2",
		},
		{
			name:  "Trailing spaces stripped per line",
			input: "línea uno   \nlínea dos",
			want:  "línea uno\nlínea dos",
		},
		{
			name:  "Surrounding whitespace trimmed",
			input: "\n\n  texto  \n\n",
			want:  "texto",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeWhitespace(tt.input))
		})
	}
}
