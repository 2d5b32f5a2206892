// -----------------------------------------------------------------------
// Stage Handlers - pdf, llm, and embed stage logic plus batch commands
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"github.com/ternarybob/convoca/internal/registry"
	"github.com/ternarybob/convoca/internal/services/pdf"
)

// outcome classifies what a stage handler did with one item
type outcome string

const (
	outcomeCompleted outcome = "completed"
	outcomeSkipped   outcome = "skipped"
	outcomeRetried   outcome = "retried"
	outcomeFailed    outcome = "failed"
	outcomeMissed    outcome = "missed" // claim lost to a concurrent worker
)

// BatchResult tallies one batch command invocation
type BatchResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

func (r *BatchResult) record(o outcome) {
	switch o {
	case outcomeCompleted:
		r.Processed++
	case outcomeSkipped:
		r.Skipped++
	case outcomeRetried:
		r.Retried++
	case outcomeFailed:
		r.Failed++
	}
}

// processPDFItem runs the pdf stage for one staging item. The item is
// claimed with a compare-and-swap on its status, so concurrent workers and
// redelivered queue messages collapse to a single execution.
func (c *Coordinator) processPDFItem(ctx context.Context, stagingID string) (outcome, error) {
	staging := c.storage.StagingStorage()

	claimed, err := staging.TransitionStatus(stagingID,
		[]models.StagingStatus{models.StagingPending}, models.StagingProcessing,
		models.StagePDF, "")
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to claim staging item %s: %w", stagingID, err)
	}
	if !claimed {
		return outcomeMissed, nil
	}

	item, err := staging.GetStaging(stagingID)
	if err != nil {
		return outcomeFailed, err
	}

	grant, err := c.lookupGrant(item)
	if err != nil {
		return c.finalizePDFFailure(ctx, item, fmt.Errorf("grant lookup failed: %w", err))
	}

	extraction, err := c.processor.ProcessDocument(ctx, item, grant)
	if err != nil {
		if errors.Is(err, pdf.ErrNoDocument) || errors.Is(err, registry.ErrNotPDF) {
			if _, terr := staging.TransitionStatus(stagingID,
				[]models.StagingStatus{models.StagingProcessing}, models.StagingSkipped,
				models.StagePDF, err.Error()); terr != nil {
				return outcomeFailed, terr
			}
			c.logger.Info().Str("external_id", item.ExternalID).Err(err).Msg("Staging item skipped")
			return outcomeSkipped, nil
		}
		return c.finalizePDFFailure(ctx, item, err)
	}

	if _, err := staging.TransitionStatus(stagingID,
		[]models.StagingStatus{models.StagingProcessing}, models.StagingCompleted,
		models.StagePDF, ""); err != nil {
		return outcomeFailed, err
	}

	// The llm and embed stages both run off the extraction text, so both
	// tasks fan out from here
	if err := c.publish(QueueLLM, models.StageLLM, models.LLMTask{ExtractionID: extraction.ID}); err != nil {
		c.logger.Warn().Err(err).Str("extraction_id", extraction.ID).Msg("Failed to enqueue llm task")
	}
	if err := c.publish(QueueEmbed, models.StageEmbed, models.EmbedTask{ExtractionID: extraction.ID}); err != nil {
		c.logger.Warn().Err(err).Str("extraction_id", extraction.ID).Msg("Failed to enqueue embed task")
	}

	c.logger.Info().
		Str("external_id", item.ExternalID).
		Int("pages", extraction.PageCount).
		Int("words", extraction.WordCount).
		Bool("scanned", extraction.IsScanned).
		Msg("PDF stage completed")

	return outcomeCompleted, nil
}

// lookupGrant resolves the staging item's grant, by key when the cursor
// carries the grant ID and by external ID for rows written before it did
func (c *Coordinator) lookupGrant(item *models.StagingItem) (*models.Grant, error) {
	if item.GrantID != "" {
		return c.storage.GrantStorage().GetGrant(item.GrantID)
	}
	return c.storage.GrantStorage().GetGrantByExternalID(item.ExternalID)
}

// finalizePDFFailure applies the retry policy after a pdf stage error: the
// item goes back to pending with a delayed re-publish until the retry budget
// is spent, then to failed.
func (c *Coordinator) finalizePDFFailure(ctx context.Context, item *models.StagingItem, cause error) (outcome, error) {
	staging := c.storage.StagingStorage()

	updated, err := staging.IncrementRetry(item.ID, cause.Error())
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to record retry for %s: %w", item.ExternalID, err)
	}

	if updated.RetryCount >= c.config.Pipeline.MaxRetries {
		if _, err := staging.TransitionStatus(item.ID,
			[]models.StagingStatus{models.StagingProcessing}, models.StagingFailed,
			models.StagePDF, cause.Error()); err != nil {
			return outcomeFailed, err
		}
		c.logger.Error().
			Str("external_id", item.ExternalID).
			Int("retry_count", updated.RetryCount).
			Err(cause).
			Msg("Staging item failed after exhausting retries")
		return outcomeFailed, nil
	}

	if _, err := staging.TransitionStatus(item.ID,
		[]models.StagingStatus{models.StagingProcessing}, models.StagingPending,
		models.StagePDF, cause.Error()); err != nil {
		return outcomeFailed, err
	}

	delay := backoffForRetry(updated.RetryCount)
	if err := c.publishDelayed(QueuePDF, models.StagePDF, models.PDFTask{StagingID: item.ID}, delay); err != nil {
		return outcomeFailed, fmt.Errorf("failed to re-enqueue pdf task: %w", err)
	}

	c.logger.Warn().
		Str("external_id", item.ExternalID).
		Int("retry_count", updated.RetryCount).
		Dur("backoff", delay).
		Err(cause).
		Msg("PDF stage retrying")

	return outcomeRetried, nil
}

// llmItem runs the llm stage for one extraction. Work selection is by model
// tag: an extraction already tagged with the current model is done unless
// force is set. Scanned or empty extractions have no text and are skipped.
func (c *Coordinator) llmItem(ctx context.Context, extractionID string, force bool) (outcome, error) {
	extraction, err := c.storage.ExtractionStorage().GetExtraction(extractionID)
	if err != nil {
		return outcomeFailed, err
	}

	if strings.TrimSpace(extraction.ExtractedText) == "" {
		return outcomeSkipped, nil
	}
	if !force && extraction.ExtractionModel == c.llm.ModelName() {
		return outcomeSkipped, nil
	}

	if err := c.llmLimiter.Wait(ctx); err != nil {
		return outcomeFailed, err
	}

	if _, err := c.extractor.ExtractFields(ctx, extraction); err != nil {
		return outcomeFailed, fmt.Errorf("llm stage failed for %s: %w", extraction.ExternalID, err)
	}
	return outcomeCompleted, nil
}

// embedItem runs the embed stage for one extraction. The extracted text is
// embedded for storage with the semantic-similarity task type; queries use
// the retrieval-query type at search time.
func (c *Coordinator) embedItem(ctx context.Context, extractionID string, reprocess bool) (outcome, error) {
	extraction, err := c.storage.ExtractionStorage().GetExtraction(extractionID)
	if err != nil {
		return outcomeFailed, err
	}

	text := strings.TrimSpace(extraction.ExtractedText)
	if text == "" {
		return outcomeSkipped, nil
	}

	embeddings := c.storage.EmbeddingStorage()
	if existing, err := embeddings.GetEmbeddingByExtractionID(extractionID); err == nil && existing != nil && !reprocess {
		return outcomeSkipped, nil
	}

	if err := c.embedLimiter.Wait(ctx); err != nil {
		return outcomeFailed, err
	}

	vector, err := c.embedder.Embed(ctx, extraction.ExtractedText, interfaces.TaskSemanticSimilarity)
	if err != nil {
		return outcomeFailed, fmt.Errorf("embedding failed for %s: %w", extraction.ExternalID, err)
	}

	_, err = embeddings.CreateEmbedding(&models.Embedding{
		ID:           common.NewEmbeddingID(),
		ExtractionID: extraction.ID,
		Vector:       vector,
		ModelName:    c.embedder.ModelName(),
		Dimensions:   len(vector),
		TextLength:   len(extraction.ExtractedText),
	}, reprocess)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to store embedding for %s: %w", extraction.ExternalID, err)
	}

	c.logger.Info().
		Str("external_id", extraction.ExternalID).
		Int("dimensions", len(vector)).
		Msg("Embed stage completed")

	return outcomeCompleted, nil
}

// ProcessPDFBatch runs the pdf stage over pending staging items, at most
// limit of them (0 means all)
func (c *Coordinator) ProcessPDFBatch(ctx context.Context, limit int) (*BatchResult, error) {
	items, err := c.storage.StagingStorage().ListStagingByStatus(models.StagingPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}

	result := &BatchResult{}
	for _, item := range items {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		o, err := c.processPDFItem(ctx, item.ID)
		if err != nil {
			c.logger.Warn().Err(err).Str("external_id", item.ExternalID).Msg("PDF batch item errored")
			result.Errors++
			continue
		}
		result.record(o)
	}
	return result, nil
}

// LLMBatch runs the llm stage over extractions whose model tag is stale, at
// most limit of them. With force set, already-current extractions rerun too.
func (c *Coordinator) LLMBatch(ctx context.Context, limit int, force bool) (*BatchResult, error) {
	extractions, err := c.storage.ExtractionStorage().ListExtractionsNeedingLLM(c.llm.ModelName(), force, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}

	result := &BatchResult{}
	for _, extraction := range extractions {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		o, err := c.llmItem(ctx, extraction.ID, force)
		if err != nil {
			c.logger.Warn().Err(err).Str("external_id", extraction.ExternalID).Msg("LLM batch item errored")
			result.Errors++
			continue
		}
		result.record(o)
	}
	return result, nil
}

// EmbedBatch runs the embed stage over extractions without an embedding, at
// most limit of them. With reprocess set, existing embeddings are replaced.
func (c *Coordinator) EmbedBatch(ctx context.Context, limit int, reprocess bool) (*BatchResult, error) {
	var extractions []*models.Extraction
	var err error
	if reprocess {
		// Force-true with an empty target selects every extraction with text
		extractions, err = c.storage.ExtractionStorage().ListExtractionsNeedingLLM("", true, limit)
	} else {
		extractions, err = c.storage.ExtractionStorage().ListExtractionsNeedingEmbedding(limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}

	result := &BatchResult{}
	for _, extraction := range extractions {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		o, err := c.embedItem(ctx, extraction.ID, reprocess)
		if err != nil {
			c.logger.Warn().Err(err).Str("external_id", extraction.ExternalID).Msg("Embed batch item errored")
			result.Errors++
			continue
		}
		result.record(o)
	}
	return result, nil
}

// deadline bounds a stage handler invocation with the configured hard deadline
func (c *Coordinator) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.Pipeline.HardDeadlineDuration())
}

// warnPastSoftDeadline logs when a task ran longer than the soft deadline
func (c *Coordinator) warnPastSoftDeadline(stage models.Stage, started time.Time) {
	elapsed := time.Since(started)
	if elapsed > c.config.Pipeline.SoftDeadlineDuration() {
		c.logger.Warn().Str("stage", string(stage)).Dur("elapsed", elapsed).Msg("Task exceeded soft deadline")
	}
}
