package models

import (
	"time"
)

// Embedding is the dense vector representation of one Extraction.
// Dimensions always equals len(Vector); the storage layer rejects mismatches.
type Embedding struct {
	ID           string    `json:"id" badgerhold:"key"`
	ExtractionID string    `json:"extraction_id" badgerhold:"unique"`
	Vector       []float32 `json:"vector"`
	ModelName    string    `json:"model_name"`
	Dimensions   int       `json:"dimensions"`
	TextLength   int       `json:"text_length"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
