package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Registry    RegistryConfig  `toml:"registry"`
	Downloads   DownloadsConfig `toml:"downloads"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	LLM         LLMConfig       `toml:"llm"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Logging     LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // How often workers poll for messages, e.g. "1s"
	VisibilityTimeout string `toml:"visibility_timeout"` // Message visibility timeout for redelivery, e.g. "10m"
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before dead-letter
}

// RegistryConfig contains the remote grants registry API configuration
type RegistryConfig struct {
	BaseURL        string `toml:"base_url"`         // Registry API base URL
	RequestTimeout string `toml:"request_timeout"`  // HTTP request timeout (default: "30s")
	MaxRetries     int    `toml:"max_retries"`      // Retry attempts for transient errors (default: 3)
	RateLimit      int    `toml:"rate_limit"`       // Requests per second against the registry (default: 5)
	PageSize       int    `toml:"page_size"`        // Listing page size, capped at 100
	RetryAfterMax  string `toml:"retry_after_max"`  // Upper bound honoured for Retry-After (default: "120s")
	UserAgent      string `toml:"user_agent"`       // User agent sent to the registry
}

// DownloadsConfig controls the content-addressed PDF store on disk
type DownloadsConfig struct {
	Dir         string `toml:"dir"`           // Directory for downloaded PDFs (markdown artifacts in a sibling markdown/ dir)
	MaxPDFBytes int64  `toml:"max_pdf_bytes"` // Maximum accepted PDF size in bytes (default: 30 MiB)
}

// PipelineConfig controls per-stage worker pools
type PipelineConfig struct {
	FetchConcurrency int    `toml:"fetch_concurrency"` // Fetch stage workers (default: 2)
	PDFConcurrency   int    `toml:"pdf_concurrency"`   // PDF stage workers (default: 8)
	LLMConcurrency   int    `toml:"llm_concurrency"`   // LLM stage workers (default: 4)
	EmbedConcurrency int    `toml:"embed_concurrency"` // Embed stage workers (default: 2)
	LLMRatePerMin    int    `toml:"llm_rate_per_min"`  // LLM stage throughput cap (default: 100/min)
	EmbedRatePerMin  int    `toml:"embed_rate_per_min"` // Embed stage throughput cap (default: 15/min)
	MaxRetries       int    `toml:"max_retries"`       // Per-task retry budget (default: 3)
	SoftDeadline     string `toml:"soft_deadline"`     // Per-task soft deadline (default: "5m")
	HardDeadline     string `toml:"hard_deadline"`     // Per-task hard deadline, task aborted past this (default: "10m")
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the provider used for extraction calls
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "claude" or "gemini" (default: "claude")
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (or ANTHROPIC_API_KEY)
	Model       string  `toml:"model"`       // Model for extraction (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.1, extraction wants determinism)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google API key (or GOOGLE_API_KEY)
	Model       string  `toml:"model"`       // Chat model (default: "gemini-2.0-flash")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.1)
}

// EmbeddingConfig contains the embedding service configuration
type EmbeddingConfig struct {
	Model     string `toml:"model"`      // Embedding model (default: "gemini-embedding-001")
	Dimension int    `toml:"dimension"`  // Vector dimension (default: 768)
	MaxChars  int    `toml:"max_chars"`  // Client-side truncation limit (default: 60000)
	Timeout   string `toml:"timeout"`    // Request timeout (default: "1m")
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in convoca.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			VisibilityTimeout: "10m", // Matches the hard task deadline so crashed tasks redeliver
			MaxReceive:        4,     // First delivery + 3 retries
		},
		Registry: RegistryConfig{
			BaseURL:        "https://www.infosubvenciones.es/bdnstrans/api",
			RequestTimeout: "30s",
			MaxRetries:     3,
			RateLimit:      5,
			PageSize:       50,
			RetryAfterMax:  "120s",
			UserAgent:      "convoca/" + Version,
		},
		Downloads: DownloadsConfig{
			Dir:         "./data/downloads",
			MaxPDFBytes: 30 * 1024 * 1024,
		},
		Pipeline: PipelineConfig{
			FetchConcurrency: 2,
			PDFConcurrency:   8,
			LLMConcurrency:   4,
			EmbedConcurrency: 2,
			LLMRatePerMin:    100,
			EmbedRatePerMin:  15,
			MaxRetries:       3,
			SoftDeadline:     "5m",
			HardDeadline:     "10m",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.1,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.0-flash",
			Timeout:     "5m",
			Temperature: 0.1,
		},
		Embedding: EmbeddingConfig{
			Model:     "gemini-embedding-001",
			Dimension: 768,
			MaxChars:  60000,
			Timeout:   "1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CONVOCA_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("CONVOCA_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if baseURL := os.Getenv("CONVOCA_REGISTRY_BASE_URL"); baseURL != "" {
		config.Registry.BaseURL = baseURL
	}
	if dir := os.Getenv("CONVOCA_DOWNLOADS_DIR"); dir != "" {
		config.Downloads.Dir = dir
	}

	// API keys: provider-native variables first, CONVOCA_* as fallback
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	} else if key := os.Getenv("CONVOCA_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	} else if key := os.Getenv("CONVOCA_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}

	if provider := os.Getenv("CONVOCA_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if level := os.Getenv("CONVOCA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if retries := os.Getenv("CONVOCA_PIPELINE_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Pipeline.MaxRetries = n
		}
	}
}

// Validate checks the configuration for fatal startup errors.
// Per-command requirements (API keys) are checked by the commands that need them.
func (c *Config) Validate() error {
	if c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage.badger.path is required")
	}
	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	if c.Registry.PageSize > 100 {
		return fmt.Errorf("registry.page_size must be <= 100 (got %d)", c.Registry.PageSize)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive (got %d)", c.Embedding.Dimension)
	}
	if _, err := time.ParseDuration(c.Queue.VisibilityTimeout); err != nil {
		return fmt.Errorf("invalid queue.visibility_timeout %q: %w", c.Queue.VisibilityTimeout, err)
	}
	if _, err := time.ParseDuration(c.Pipeline.HardDeadline); err != nil {
		return fmt.Errorf("invalid pipeline.hard_deadline %q: %w", c.Pipeline.HardDeadline, err)
	}
	return nil
}

// PollInterval returns the parsed queue poll interval with a safe fallback.
func (q *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(q.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// VisibilityTimeoutDuration returns the parsed visibility timeout with a safe fallback.
func (q *QueueConfig) VisibilityTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(q.VisibilityTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// SoftDeadlineDuration returns the parsed soft task deadline with a safe fallback.
func (p *PipelineConfig) SoftDeadlineDuration() time.Duration {
	d, err := time.ParseDuration(p.SoftDeadline)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// HardDeadlineDuration returns the parsed hard task deadline with a safe fallback.
func (p *PipelineConfig) HardDeadlineDuration() time.Duration {
	d, err := time.ParseDuration(p.HardDeadline)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// RequestTimeoutDuration returns the parsed registry request timeout with a safe fallback.
func (r *RegistryConfig) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(r.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
