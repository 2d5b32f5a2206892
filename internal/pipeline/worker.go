// -----------------------------------------------------------------------
// Worker Pools - serve-mode stage workers polling the stage queues
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
)

// maxPDFBacklog is the pdf queue depth past which the fetch stage pauses
// before walking more of the registry listing
const maxPDFBacklog = 5000

// workerStagger spaces out worker startup so a pool does not stampede the
// queue on its first poll
const workerStagger = 100 * time.Millisecond

// stageHandler processes one decoded queue message. A nil return
// acknowledges the message; an error leaves it for visibility-timeout
// redelivery.
type stageHandler func(ctx context.Context, msg *models.TaskMessage) error

// workerPool runs N workers against one stage queue
type workerPool struct {
	queueName    string
	concurrency  int
	pollInterval time.Duration
	handler      stageHandler
	queue        interfaces.QueueManager
	logger       arbor.ILogger
	wg           sync.WaitGroup
}

func (p *workerPool) start(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *workerPool) wait() {
	p.wg.Wait()
}

func (p *workerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	// Staggered start
	select {
	case <-time.After(time.Duration(id) * workerStagger):
	case <-ctx.Done():
		return
	}

	p.logger.Debug().Str("queue", p.queueName).Int("worker", id).Msg("Worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Str("queue", p.queueName).Int("worker", id).Msg("Worker stopping")
			return
		case <-ticker.C:
			// Drain everything visible before going back to sleep
			for p.processOne(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processOne receives and handles a single message, reporting whether a
// message was available
func (p *workerPool) processOne(ctx context.Context) bool {
	msg, deleteFn, err := p.queue.Receive(p.queueName)
	if err != nil {
		if !errors.Is(err, models.ErrNoMessage) {
			p.logger.Error().Err(err).Str("queue", p.queueName).Msg("Failed to receive message")
		}
		return false
	}

	if err := p.handler(ctx, msg); err != nil {
		// Not acknowledged: the message reappears after the visibility
		// timeout, up to the queue's receive budget
		p.logger.Warn().Err(err).Str("queue", p.queueName).Msg("Task failed, leaving for redelivery")
		return true
	}

	if err := deleteFn(); err != nil {
		p.logger.Error().Err(err).Str("queue", p.queueName).Msg("Failed to acknowledge message")
	}
	return true
}

// EnqueueFetch publishes a fetch task for the serve-mode fetch workers
func (c *Coordinator) EnqueueFetch(opts models.SearchOptions, maxItems int) error {
	return c.publish(QueueFetch, models.StageFetch, models.FetchTask{
		BatchID:  "",
		Filter:   opts,
		MaxItems: maxItems,
	})
}

// RunWorkers starts the per-stage worker pools and blocks until ctx is
// cancelled and all workers have drained
func (c *Coordinator) RunWorkers(ctx context.Context) error {
	pollInterval := c.config.Queue.PollIntervalDuration()

	pools := []*workerPool{
		{
			queueName:    QueueFetch,
			concurrency:  c.config.Pipeline.FetchConcurrency,
			pollInterval: pollInterval,
			handler:      c.handleFetchTask,
			queue:        c.queue,
			logger:       c.logger,
		},
		{
			queueName:    QueuePDF,
			concurrency:  c.config.Pipeline.PDFConcurrency,
			pollInterval: pollInterval,
			handler:      c.handlePDFTask,
			queue:        c.queue,
			logger:       c.logger,
		},
		{
			queueName:    QueueLLM,
			concurrency:  c.config.Pipeline.LLMConcurrency,
			pollInterval: pollInterval,
			handler:      c.handleLLMTask,
			queue:        c.queue,
			logger:       c.logger,
		},
		{
			queueName:    QueueEmbed,
			concurrency:  c.config.Pipeline.EmbedConcurrency,
			pollInterval: pollInterval,
			handler:      c.handleEmbedTask,
			queue:        c.queue,
			logger:       c.logger,
		},
	}

	c.logger.Info().
		Int("fetch", c.config.Pipeline.FetchConcurrency).
		Int("pdf", c.config.Pipeline.PDFConcurrency).
		Int("llm", c.config.Pipeline.LLMConcurrency).
		Int("embed", c.config.Pipeline.EmbedConcurrency).
		Msg("Starting pipeline workers")

	for _, pool := range pools {
		pool.start(ctx)
	}

	<-ctx.Done()
	for _, pool := range pools {
		pool.wait()
	}

	c.logger.Info().Msg("Pipeline workers stopped")
	return nil
}

func (c *Coordinator) handleFetchTask(ctx context.Context, msg *models.TaskMessage) error {
	var task models.FetchTask
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		return fmt.Errorf("invalid fetch task payload: %w", err)
	}

	// Backpressure: let the pdf stage catch up before listing more
	if err := c.waitForBacklog(ctx, QueuePDF, maxPDFBacklog); err != nil {
		return err
	}

	_, err := c.Ingest(ctx, task.Filter, task.MaxItems)
	return err
}

func (c *Coordinator) handlePDFTask(ctx context.Context, msg *models.TaskMessage) error {
	var task models.PDFTask
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		return fmt.Errorf("invalid pdf task payload: %w", err)
	}

	taskCtx, cancel := c.deadline(ctx)
	defer cancel()

	started := time.Now()
	_, err := c.processPDFItem(taskCtx, task.StagingID)
	c.warnPastSoftDeadline(models.StagePDF, started)
	return err
}

func (c *Coordinator) handleLLMTask(ctx context.Context, msg *models.TaskMessage) error {
	var task models.LLMTask
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		return fmt.Errorf("invalid llm task payload: %w", err)
	}

	taskCtx, cancel := c.deadline(ctx)
	defer cancel()

	started := time.Now()
	_, err := c.llmItem(taskCtx, task.ExtractionID, task.ForceReprocess)
	c.warnPastSoftDeadline(models.StageLLM, started)
	return err
}

func (c *Coordinator) handleEmbedTask(ctx context.Context, msg *models.TaskMessage) error {
	var task models.EmbedTask
	if err := json.Unmarshal(msg.Payload, &task); err != nil {
		return fmt.Errorf("invalid embed task payload: %w", err)
	}

	taskCtx, cancel := c.deadline(ctx)
	defer cancel()

	started := time.Now()
	_, err := c.embedItem(taskCtx, task.ExtractionID, task.Reprocess)
	c.warnPastSoftDeadline(models.StageEmbed, started)
	return err
}

// waitForBacklog blocks while the named queue's depth exceeds max
func (c *Coordinator) waitForBacklog(ctx context.Context, queueName string, max int) error {
	for {
		depth, err := c.queue.Depth(queueName)
		if err != nil {
			return err
		}
		if depth <= max {
			return nil
		}
		c.logger.Debug().Str("queue", queueName).Int("depth", depth).Msg("Backlog high, fetch pausing")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}
