package retrieval

import (
	"context"
	"time"
)

// Source types stored alongside each vector.
const (
	SourceQA  = "qa"
	SourceDoc = "doc"
)

// VectorStore persists embedded training records and searches them by
// cosine similarity. The SQLite implementation scans every row; a backend
// with an ANN index can replace it behind this interface.
type VectorStore interface {
	// Insert adds records atomically.
	Insert(ctx context.Context, records []Record) error

	// Search returns the topK records most similar to vector. An empty
	// sourceType searches every record.
	Search(ctx context.Context, vector []float32, topK int, sourceType string) ([]ScoredRecord, error)

	// GetByIDs returns the records with the given IDs, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]Record, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// ExportAll returns every record, oldest first.
	ExportAll(ctx context.Context) ([]Record, error)

	// Count returns the number of records of sourceType, or of all records
	// when sourceType is empty.
	Count(ctx context.Context, sourceType string) (int, error)
}

// Record is one embedded training item. For question/answer pairs Question
// holds the question that was embedded and TextChunk the answer; documents
// leave Question empty.
type Record struct {
	ID         string    `json:"id"`
	SourceType string    `json:"source_type"`
	Question   string    `json:"question,omitempty"`
	TextChunk  string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredRecord is a Record with its similarity to the search vector.
type ScoredRecord struct {
	Record
	Score float32
}
