// -----------------------------------------------------------------------
// Document Processor - Download grant PDFs and produce text extractions
// -----------------------------------------------------------------------

package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
)

// scannedCharsPerPage is the threshold below which a PDF is treated as a
// scan: image-only documents typically extract to almost nothing.
const scannedCharsPerPage = 100

// ErrNoDocument marks a grant with no document to process. The caller skips
// the item instead of retrying.
var ErrNoDocument = errors.New("grant has no document to process")

var _ interfaces.DocumentProcessor = (*Processor)(nil)

// Processor implements the DocumentProcessor interface. It downloads the
// grant's primary PDF into the content-addressed downloads directory,
// extracts its text, and writes the extraction row plus a markdown artifact.
type Processor struct {
	registry    interfaces.RegistryClient
	extractor   *Extractor
	grants      interfaces.GrantStorage
	extractions interfaces.ExtractionStorage
	logger      arbor.ILogger
	config      *common.DownloadsConfig
}

// NewProcessor creates a new document processor
func NewProcessor(registry interfaces.RegistryClient, grants interfaces.GrantStorage, extractions interfaces.ExtractionStorage, config *common.DownloadsConfig, logger arbor.ILogger) *Processor {
	return &Processor{
		registry:    registry,
		extractor:   NewExtractor(logger),
		grants:      grants,
		extractions: extractions,
		logger:      logger,
		config:      config,
	}
}

// ProcessDocument downloads and extracts the grant's primary PDF and creates
// the extraction row. A grant that already has an extraction is returned
// as-is. Scanned PDFs produce an empty artifact with is_scanned set; a later
// OCR strategy is the extension point for recovering their text.
func (p *Processor) ProcessDocument(ctx context.Context, item *models.StagingItem, grant *models.Grant) (*models.Extraction, error) {
	if existing, err := p.extractions.GetExtractionByGrantID(grant.ID); err == nil && existing != nil {
		return existing, nil
	}

	doc := selectPrimaryDocument(grant.Documentos)
	if doc == nil {
		return nil, ErrNoDocument
	}

	extraction := &models.Extraction{
		ID:         common.NewExtractionID(),
		GrantID:    grant.ID,
		StagingID:  item.ID,
		ExternalID: grant.ExternalID,
	}

	if err := p.processPDF(ctx, grant, doc, extraction); err != nil {
		return nil, err
	}

	extraction.ExtractedText = normalizeWhitespace(extraction.ExtractedText)
	extraction.WordCount = len(strings.Fields(extraction.ExtractedText))

	if path, err := p.writeMarkdownArtifact(grant, doc, extraction); err != nil {
		p.logger.Warn().Err(err).Str("external_id", grant.ExternalID).Msg("Failed to write markdown artifact")
	} else {
		extraction.MarkdownPath = path
	}

	return p.extractions.CreateExtraction(extraction)
}

// processPDF downloads the document, stores it content-addressed, and fills
// the extraction's text artifact fields
func (p *Processor) processPDF(ctx context.Context, grant *models.Grant, doc *models.GrantDocument, extraction *models.Extraction) error {
	data, err := p.registry.DownloadDocument(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to download document %s: %w", doc.ID, err)
	}

	hash := common.HashSHA256(data)
	pdfPath := filepath.Join(p.config.Dir, fmt.Sprintf("%s_%s.pdf", common.SanitizeID(grant.ExternalID), hash[:8]))

	// Content-addressed: an existing file with the same hash is the same
	// bytes, so a retry after a crash reuses the previous download
	if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
		if err := os.MkdirAll(p.config.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create downloads directory: %w", err)
		}
		if err := os.WriteFile(pdfPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write PDF file: %w", err)
		}
	}

	grant.PDFID = doc.ID
	grant.PDFURL = doc.URL
	grant.PDFHash = hash
	grant.HasPDF = true
	if _, err := p.grants.UpsertGrant(grant); err != nil {
		return fmt.Errorf("failed to update grant PDF pointer: %w", err)
	}

	result, err := p.extractor.ExtractFromBytes(data, common.SanitizeID(grant.ExternalID))
	if err != nil {
		return fmt.Errorf("failed to extract PDF text: %w", err)
	}

	extraction.PageCount = result.PageCount

	// Scan detection: image-only PDFs extract to near-empty pages. The
	// extraction keeps an empty artifact and records the condition.
	if result.PageCount > 0 && result.TextChars()/result.PageCount < scannedCharsPerPage {
		p.logger.Debug().Str("external_id", grant.ExternalID).
			Int("pages", result.PageCount).Int("chars", result.TextChars()).
			Msg("PDF appears to be scanned, no text layer to extract")
		extraction.IsScanned = true
		extraction.ExtractionError = "no extractable text layer (scanned document)"
		extraction.ExtractedText = ""
		return nil
	}

	extraction.ExtractedText = result.FullText()
	return nil
}

// selectPrimaryDocument picks the document the pipeline treats as
// authoritative. Documents whose filename names the call or its terms win
// over annexes, then the first PDF in registry order. When no filename looks
// like a PDF the first document is still tried: registry filenames are often
// bare identifiers, and the download path rejects non-PDF bytes anyway.
func selectPrimaryDocument(docs []models.GrantDocument) *models.GrantDocument {
	var firstPDF *models.GrantDocument
	for i := range docs {
		doc := &docs[i]
		name := strings.ToLower(doc.Filename)
		if !strings.HasSuffix(name, ".pdf") {
			continue
		}
		if strings.Contains(name, "convocatoria") || strings.Contains(name, "bases") {
			return doc
		}
		if firstPDF == nil {
			firstPDF = doc
		}
	}
	if firstPDF == nil && len(docs) > 0 {
		return &docs[0]
	}
	return firstPDF
}

var (
	spacesRe   = regexp.MustCompile(`[ \t]+`)
	newlinesRe = regexp.MustCompile(`\n{3,}`)
)

// normalizeWhitespace collapses runs of spaces and blank lines left behind by
// PDF content extraction and strips form feeds
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = spacesRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	text = strings.Join(lines, "\n")

	text = newlinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// writeMarkdownArtifact writes a human-readable markdown rendering of the
// extraction into the markdown/ sibling of the downloads directory
func (p *Processor) writeMarkdownArtifact(grant *models.Grant, doc *models.GrantDocument, extraction *models.Extraction) (string, error) {
	dir := filepath.Join(p.config.Dir, "..", "markdown")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	name := common.SanitizeID(grant.ExternalID)
	if grant.PDFHash != "" {
		name = fmt.Sprintf("%s_%s", name, grant.PDFHash[:8])
	}
	path := filepath.Join(dir, name+".md")

	var b strings.Builder
	b.WriteString("# " + grant.Titulo + "\n\n")
	b.WriteString("- **Convocatoria**: " + grant.ExternalID + "\n")
	b.WriteString("- **Documento**: " + doc.Filename + "\n")
	b.WriteString(fmt.Sprintf("- **Páginas**: %d\n", extraction.PageCount))
	b.WriteString(fmt.Sprintf("- **Palabras**: %d\n", extraction.WordCount))
	b.WriteString("- **Método de extracción**: pdfcpu\n")
	if extraction.IsScanned {
		b.WriteString("- **Documento escaneado**: sí\n")
	}
	b.WriteString("\n---\n\n")
	b.WriteString(extraction.ExtractedText)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", err
	}
	return path, nil
}
