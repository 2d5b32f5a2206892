package badger

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// indexEntry is one vector in the in-memory similarity index
type indexEntry struct {
	EmbeddingID  string
	ExtractionID string
	GrantID      string
	Vector       []float32
	Norm         float64
}

// scoredEntry is an index entry paired with its query similarity
type scoredEntry struct {
	indexEntry
	Score float64
}

// vectorIndex is a brute-force cosine index held in memory beside the Badger
// embedding bucket. Badger has no native vector type, so the index is rebuilt
// from the stored rows at startup and kept in sync on every write. At the
// corpus sizes this pipeline handles (tens of thousands of grants at 768
// dimensions) a linear scan answers queries in single-digit milliseconds.
type vectorIndex struct {
	mu        sync.RWMutex
	entries   map[string]indexEntry // keyed by embedding ID
	dimension int
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{
		entries: make(map[string]indexEntry),
	}
}

// Add inserts or replaces a vector. The first vector fixes the index
// dimension; later vectors must match it.
func (idx *vectorIndex) Add(embeddingID, extractionID, grantID string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for embedding %s", embeddingID)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dimension == 0 {
		idx.dimension = len(vector)
	} else if len(vector) != idx.dimension {
		return fmt.Errorf("vector dimension mismatch: index has %d, got %d", idx.dimension, len(vector))
	}

	idx.entries[embeddingID] = indexEntry{
		EmbeddingID:  embeddingID,
		ExtractionID: extractionID,
		GrantID:      grantID,
		Vector:       vector,
		Norm:         vectorNorm(vector),
	}
	return nil
}

func (idx *vectorIndex) Remove(embeddingID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, embeddingID)
	if len(idx.entries) == 0 {
		idx.dimension = 0
	}
}

// Search returns all entries with similarity >= minSimilarity, sorted by
// score descending with ties broken by grant ID descending. Filtering and
// the k cut happen in the caller, which can reject hits on metadata the
// index does not carry.
func (idx *vectorIndex) Search(query []float32, minSimilarity float64) ([]scoredEntry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.dimension > 0 && len(query) != idx.dimension {
		return nil, fmt.Errorf("query dimension mismatch: index has %d, got %d", idx.dimension, len(query))
	}

	queryNorm := vectorNorm(query)
	if queryNorm == 0 {
		return nil, fmt.Errorf("query vector has zero norm")
	}

	results := make([]scoredEntry, 0, len(idx.entries))
	for _, entry := range idx.entries {
		score := cosineSimilarity(query, queryNorm, entry.Vector, entry.Norm)
		if score < minSimilarity {
			continue
		}
		results = append(results, scoredEntry{indexEntry: entry, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].GrantID > results[j].GrantID
	})

	return results, nil
}

func (idx *vectorIndex) Get(embeddingID string) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entry, ok := idx.entries[embeddingID]
	if !ok {
		return nil, false
	}
	return entry.Vector, true
}

func (idx *vectorIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *vectorIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes 1 - cosine distance, clamped to [0,1].
// A zero-norm stored vector scores 0 rather than producing NaN.
func cosineSimilarity(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	score := dot / (aNorm * bNorm)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
