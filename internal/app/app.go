// -----------------------------------------------------------------------
// Application Wiring - construct storage, queue, clients, and services
// -----------------------------------------------------------------------

package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/pipeline"
	"github.com/ternarybob/convoca/internal/queue"
	"github.com/ternarybob/convoca/internal/registry"
	"github.com/ternarybob/convoca/internal/services/embeddings"
	"github.com/ternarybob/convoca/internal/services/extraction"
	"github.com/ternarybob/convoca/internal/services/llm"
	"github.com/ternarybob/convoca/internal/services/pdf"
	"github.com/ternarybob/convoca/internal/services/search"
	badgerstorage "github.com/ternarybob/convoca/internal/storage/badger"
	"github.com/timshannon/badgerhold/v4"
)

// App owns the shared infrastructure: storage, queue transport, and the
// registry client. LLM and embedding services are constructed lazily because
// they need API keys that stats-style commands should not require.
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	Storage   interfaces.StorageManager
	Queue     interfaces.QueueManager
	Registry  interfaces.RegistryClient
	Processor interfaces.DocumentProcessor

	llm      interfaces.LLMService
	embedder interfaces.EmbeddingService
}

// New initializes the application infrastructure
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	store, ok := storage.(*badgerstorage.Manager).DB().(*badgerhold.Store)
	if !ok {
		storage.Close()
		return nil, fmt.Errorf("unexpected storage backend")
	}

	queueMgr, err := queue.NewBadgerManager(store.Badger(),
		config.Queue.VisibilityTimeoutDuration(), config.Queue.MaxReceive, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	retryAfterMax, err := time.ParseDuration(config.Registry.RetryAfterMax)
	if err != nil {
		retryAfterMax = 2 * time.Minute
	}

	registryClient := registry.NewClient(
		registry.WithBaseURL(config.Registry.BaseURL),
		registry.WithHTTPClient(&http.Client{Timeout: config.Registry.RequestTimeoutDuration()}),
		registry.WithLogger(logger),
		registry.WithRateLimit(config.Registry.RateLimit),
		registry.WithMaxRetries(config.Registry.MaxRetries),
		registry.WithRetryAfterMax(retryAfterMax),
		registry.WithMaxPDFBytes(config.Downloads.MaxPDFBytes),
		registry.WithUserAgent(config.Registry.UserAgent),
	)

	processor := pdf.NewProcessor(registryClient, storage.GrantStorage(),
		storage.ExtractionStorage(), &config.Downloads, logger)

	return &App{
		Config:    config,
		Logger:    logger,
		Storage:   storage,
		Queue:     queueMgr,
		Registry:  registryClient,
		Processor: processor,
	}, nil
}

// LLM returns the configured LLM service, constructing it on first use
func (a *App) LLM() (interfaces.LLMService, error) {
	if a.llm != nil {
		return a.llm, nil
	}
	service, err := llm.NewLLMService(a.Config, a.Logger)
	if err != nil {
		return nil, err
	}
	a.llm = service
	return a.llm, nil
}

// Embedder returns the embedding service, constructing it on first use
func (a *App) Embedder() (interfaces.EmbeddingService, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	service, err := embeddings.NewService(&a.Config.Embedding, a.Config.Gemini.APIKey, a.Logger)
	if err != nil {
		return nil, err
	}
	a.embedder = service
	return a.embedder, nil
}

// Coordinator builds the pipeline coordinator. The LLM and embedding
// services are only wired in when the invoking command needs them, so that
// ingest or stats never fail on a missing API key.
func (a *App) Coordinator(needLLM, needEmbed bool) (*pipeline.Coordinator, error) {
	var llmService interfaces.LLMService
	var extractor interfaces.ExtractionService
	var embedder interfaces.EmbeddingService

	if needLLM {
		service, err := a.LLM()
		if err != nil {
			return nil, err
		}
		llmService = service
		extractor = extraction.NewService(service, a.Storage.ExtractionStorage(),
			a.Storage.GrantStorage(), a.Logger)
	}
	if needEmbed {
		service, err := a.Embedder()
		if err != nil {
			return nil, err
		}
		embedder = service
	}

	return pipeline.NewCoordinator(a.Config, a.Storage, a.Queue, a.Registry,
		a.Processor, extractor, llmService, embedder, a.Logger), nil
}

// SearchService builds the semantic search service
func (a *App) SearchService() (interfaces.SearchService, error) {
	embedder, err := a.Embedder()
	if err != nil {
		return nil, err
	}
	return search.NewService(embedder, a.Storage.EmbeddingStorage(), a.Logger), nil
}

// Close releases the queue, LLM client, and database in dependency order
func (a *App) Close() error {
	if a.llm != nil {
		if err := a.llm.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}
	if err := a.Queue.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close queue")
	}
	return a.Storage.Close()
}
