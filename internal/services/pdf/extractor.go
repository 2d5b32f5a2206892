// -----------------------------------------------------------------------
// PDF Extractor - Extract text content from grant PDF documents
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// ExtractResult holds the page texts pulled from one PDF
type ExtractResult struct {
	Pages     []string // 1-indexed page order, empty string for pages without text
	PageCount int
}

// Extractor extracts text from PDF bytes using pdfcpu
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

// NewExtractor creates a new PDF extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "convoca-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// ExtractFromBytes extracts per-page text from PDF bytes.
// pdfcpu works on files, so the bytes go through a temp file.
func (e *Extractor) ExtractFromBytes(pdfContent []byte, tag string) (*ExtractResult, error) {
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%s_%d.pdf", tag, os.Getpid()))
	if err := os.WriteFile(tempFile, pdfContent, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if pdfCtx.Encrypt != nil {
		return nil, fmt.Errorf("PDF is encrypted")
	}

	pageCount := pdfCtx.PageCount
	result := &ExtractResult{
		Pages:     make([]string, pageCount),
		PageCount: pageCount,
	}

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%s_%d", tag, os.Getpid()))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		// Some PDFs (pure image scans in particular) yield no extractable
		// content; report the empty pages rather than failing the document
		e.logger.Warn().Err(err).Str("tag", tag).Msg("Failed to extract PDF content")
		return result, nil
	}

	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		// pdfcpu names extracted files "<basename>_Content_page_<n>.txt"
		idx := strings.LastIndex(file.Name(), "Content_page_")
		if idx < 0 {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name()[idx:], "Content_page_%d", &pageNum); err != nil {
			continue
		}
		if pageNum < 1 || pageNum > pageCount {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		result.Pages[pageNum-1] = string(content)
	}

	return result, nil
}

// FullText joins the page texts with page markers, skipping empty pages
func (r *ExtractResult) FullText() string {
	var builder strings.Builder
	for i, text := range r.Pages {
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", i+1))
		}
		builder.WriteString(text)
	}
	return builder.String()
}

// TextChars counts the extracted characters across all pages
func (r *ExtractResult) TextChars() int {
	total := 0
	for _, text := range r.Pages {
		total += len(strings.TrimSpace(text))
	}
	return total
}
