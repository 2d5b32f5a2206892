package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewStagingID generates a unique staging item ID with the "stg_" prefix
func NewStagingID() string {
	return "stg_" + uuid.New().String()
}

// NewGrantID generates a unique grant ID with the "grant_" prefix
func NewGrantID() string {
	return "grant_" + uuid.New().String()
}

// NewExtractionID generates a unique extraction ID with the "ext_" prefix
func NewExtractionID() string {
	return "ext_" + uuid.New().String()
}

// NewEmbeddingID generates a unique embedding ID with the "emb_" prefix
func NewEmbeddingID() string {
	return "emb_" + uuid.New().String()
}

// NewBatchID generates a batch ID with the "batch_" prefix
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}

// HashSHA256 returns the hex-encoded SHA-256 digest of data
func HashSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex-encoded SHA-256 digest of s
func HashString(s string) string {
	return HashSHA256([]byte(s))
}

// SanitizeID makes an external identifier safe for use in filenames.
// Anything outside [a-zA-Z0-9._-] becomes an underscore.
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
