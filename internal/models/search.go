package models

import (
	"time"
)

// SearchFilters are the metadata predicates composed (AND) with a vector search
type SearchFilters struct {
	Organismo string     `json:"organismo,omitempty"` // substring match
	Ambito    string     `json:"ambito,omitempty"`
	Finalidad string     `json:"finalidad,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"` // against FechaFinSolicitud
	DateTo    *time.Time `json:"date_to,omitempty"`
	OnlyOpen  bool       `json:"only_open,omitempty"`
}

// SearchHit is one result of a vector search, enriched with grant and
// extraction metadata. Score is 1 - cosine distance, clamped to [0,1].
type SearchHit struct {
	Grant      *Grant      `json:"grant"`
	Extraction *Extraction `json:"extraction,omitempty"`
	Score      float64     `json:"score"`
}

// PipelineStats is the operator-facing stats() snapshot
type PipelineStats struct {
	StagingByStatus map[StagingStatus]int `json:"staging_by_status"`
	Grants          int                   `json:"grants"`
	Extractions     int                   `json:"extractions"`
	Embeddings      int                   `json:"embeddings"`
	IndexSize       int                   `json:"index_size"`
	IndexDimension  int                   `json:"index_dimension"`
	IndexReady      bool                  `json:"index_ready"`
	FailedItems     []FailedItem          `json:"failed_items,omitempty"`
}

// FailedItem surfaces a failed staging item with its recorded error
type FailedItem struct {
	ExternalID   string `json:"external_id"`
	LastStage    Stage  `json:"last_stage"`
	RetryCount   int    `json:"retry_count"`
	ErrorMessage string `json:"error_message"`
}
