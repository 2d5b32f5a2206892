package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when a queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// TaskMessage is the structure stored in a stage queue.
// Keep it small - just enough to route and claim the work.
type TaskMessage struct {
	Stage   Stage           `json:"stage"`
	Payload json.RawMessage `json:"payload"`
}

// FetchTask is the fetch-stage payload
type FetchTask struct {
	BatchID  string        `json:"batch_id"`
	Filter   SearchOptions `json:"filter"`
	MaxItems int           `json:"max_items"`
}

// PDFTask is the pdf-stage payload
type PDFTask struct {
	StagingID string `json:"staging_id"`
}

// LLMTask is the llm-stage payload
type LLMTask struct {
	ExtractionID   string `json:"extraction_id"`
	ForceReprocess bool   `json:"force_reprocess"`
}

// EmbedTask is the embed-stage payload
type EmbedTask struct {
	ExtractionID string `json:"extraction_id"`
	Reprocess    bool   `json:"reprocess"`
}

// SearchOptions is the controlled filter set accepted by the registry listing endpoint
type SearchOptions struct {
	PurposeCode      string   `json:"purpose_code,omitempty"`
	BeneficiaryCodes []string `json:"beneficiary_codes,omitempty"`
	OnlyOpen         bool     `json:"only_open,omitempty"`
}
