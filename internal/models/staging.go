package models

import (
	"time"
)

// StagingStatus is the lifecycle state of a StagingItem
type StagingStatus string

const (
	StagingPending    StagingStatus = "pending"
	StagingProcessing StagingStatus = "processing"
	StagingCompleted  StagingStatus = "completed"
	StagingFailed     StagingStatus = "failed"
	StagingSkipped    StagingStatus = "skipped"
)

// IsTerminal reports whether the status is a terminal state.
// Terminal items are only re-entered via an explicit requeue.
func (s StagingStatus) IsTerminal() bool {
	return s == StagingCompleted || s == StagingFailed || s == StagingSkipped
}

// Stage identifies one of the four pipeline stages
type Stage string

const (
	StageFetch Stage = "fetch"
	StagePDF   Stage = "pdf"
	StageLLM   Stage = "llm"
	StageEmbed Stage = "embed"
)

// StagingItem is the pipeline cursor for one grant. One row per external ID;
// the staged state machine in Status is the single source of progress truth.
type StagingItem struct {
	ID           string        `json:"id" badgerhold:"key"`
	ExternalID   string        `json:"external_id" badgerhold:"unique"`
	Status       StagingStatus `json:"status" badgerhold:"index"`
	BatchID      string        `json:"batch_id" badgerhold:"index"`
	RetryCount   int           `json:"retry_count"`
	LastStage    Stage         `json:"last_stage,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	PDFURL       string        `json:"pdf_url,omitempty"`
	PDFURLHash   string        `json:"pdf_url_hash,omitempty"` // SHA-256 hex of PDFURL
	GrantID      string        `json:"grant_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IngestResult summarises one fetch-stage invocation
type IngestResult struct {
	BatchID    string `json:"batch_id"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
}
