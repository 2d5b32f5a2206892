// -----------------------------------------------------------------------
// Pipeline Coordinator - Orchestrates the four-stage ingestion pipeline
// -----------------------------------------------------------------------

package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"golang.org/x/time/rate"
)

// Stage queue names. One queue per stage; payloads are the matching
// models.*Task types.
const (
	QueueFetch = "fetch"
	QueuePDF   = "pdf"
	QueueLLM   = "llm"
	QueueEmbed = "embed"
)

// retryBaseDelay is the first re-publish delay for a failed pdf task.
// Subsequent attempts double it, capped at retryMaxDelay.
const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = 10 * time.Minute
)

// Coordinator wires the stage services together and exposes the operator
// commands: ingest, per-stage batch runs, requeue, and stats. The same
// stage handlers back both the one-shot batch commands and the serve-mode
// worker pools.
type Coordinator struct {
	config    *common.Config
	storage   interfaces.StorageManager
	queue     interfaces.QueueManager
	registry  interfaces.RegistryClient
	processor interfaces.DocumentProcessor
	extractor interfaces.ExtractionService
	llm       interfaces.LLMService
	embedder  interfaces.EmbeddingService
	logger    arbor.ILogger

	llmLimiter   *rate.Limiter
	embedLimiter *rate.Limiter
}

// NewCoordinator creates a pipeline coordinator over the shared storage and
// queue. The LLM service is passed separately from the extraction service
// because the coordinator needs its model tag for work selection.
func NewCoordinator(
	config *common.Config,
	storage interfaces.StorageManager,
	queueMgr interfaces.QueueManager,
	registryClient interfaces.RegistryClient,
	processor interfaces.DocumentProcessor,
	extractor interfaces.ExtractionService,
	llm interfaces.LLMService,
	embedder interfaces.EmbeddingService,
	logger arbor.ILogger,
) *Coordinator {
	return &Coordinator{
		config:       config,
		storage:      storage,
		queue:        queueMgr,
		registry:     registryClient,
		processor:    processor,
		extractor:    extractor,
		llm:          llm,
		embedder:     embedder,
		logger:       logger,
		llmLimiter:   perMinuteLimiter(config.Pipeline.LLMRatePerMin),
		embedLimiter: perMinuteLimiter(config.Pipeline.EmbedRatePerMin),
	}
}

// perMinuteLimiter builds a rate limiter from a per-minute throughput cap.
// A non-positive cap disables limiting.
func perMinuteLimiter(perMin int) *rate.Limiter {
	if perMin <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1)
}

// publish marshals a stage payload and enqueues it immediately
func (c *Coordinator) publish(queueName string, stage models.Stage, payload interface{}) error {
	return c.publishDelayed(queueName, stage, payload, 0)
}

// publishDelayed marshals a stage payload and enqueues it with a visibility delay
func (c *Coordinator) publishDelayed(queueName string, stage models.Stage, payload interface{}, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s task: %w", stage, err)
	}
	msg := &models.TaskMessage{Stage: stage, Payload: data}
	if delay > 0 {
		return c.queue.PublishDelayed(queueName, msg, delay)
	}
	return c.queue.Publish(queueName, msg)
}

// backoffForRetry computes the re-publish delay after retryCount attempts
func backoffForRetry(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := retryBaseDelay
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

// Stats assembles the operator-facing pipeline snapshot
func (c *Coordinator) Stats() (*models.PipelineStats, error) {
	stagingCounts, err := c.storage.StagingStorage().CountStagingByStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to count staging items: %w", err)
	}

	grantCount, err := c.storage.GrantStorage().CountGrants()
	if err != nil {
		return nil, fmt.Errorf("failed to count grants: %w", err)
	}
	extractionCount, err := c.storage.ExtractionStorage().CountExtractions()
	if err != nil {
		return nil, fmt.Errorf("failed to count extractions: %w", err)
	}
	embeddings := c.storage.EmbeddingStorage()
	embeddingCount, err := embeddings.CountEmbeddings()
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	stats := &models.PipelineStats{
		StagingByStatus: stagingCounts,
		Grants:          grantCount,
		Extractions:     extractionCount,
		Embeddings:      embeddingCount,
		IndexSize:       embeddings.IndexSize(),
		IndexDimension:  embeddings.IndexDimension(),
	}
	stats.IndexReady = stats.IndexSize == embeddingCount

	failed, err := c.storage.StagingStorage().ListStagingByStatus(models.StagingFailed, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed items: %w", err)
	}
	for _, item := range failed {
		stats.FailedItems = append(stats.FailedItems, models.FailedItem{
			ExternalID:   item.ExternalID,
			LastStage:    item.LastStage,
			RetryCount:   item.RetryCount,
			ErrorMessage: item.ErrorMessage,
		})
	}

	return stats, nil
}

// Requeue resets a terminal staging item back to pending and enqueues a pdf
// task for it. The item is addressed by its registry external ID.
func (c *Coordinator) Requeue(externalID string) (*models.StagingItem, error) {
	item, err := c.storage.StagingStorage().GetStagingByExternalID(externalID)
	if err != nil {
		return nil, err
	}

	item, err = c.storage.StagingStorage().Requeue(item.ID)
	if err != nil {
		return nil, err
	}

	if err := c.publish(QueuePDF, models.StagePDF, models.PDFTask{StagingID: item.ID}); err != nil {
		return nil, fmt.Errorf("failed to enqueue pdf task for %s: %w", externalID, err)
	}

	c.logger.Info().Str("external_id", externalID).Msg("Staging item requeued")
	return item, nil
}

// RequeueAllFailed requeues every failed staging item, returning the count
func (c *Coordinator) RequeueAllFailed() (int, error) {
	failed, err := c.storage.StagingStorage().ListStagingByStatus(models.StagingFailed, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed items: %w", err)
	}

	requeued := 0
	for _, item := range failed {
		if _, err := c.Requeue(item.ExternalID); err != nil {
			c.logger.Warn().Err(err).Str("external_id", item.ExternalID).Msg("Failed to requeue item")
			continue
		}
		requeued++
	}
	return requeued, nil
}
