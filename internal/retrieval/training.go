package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// QA is a stored question with its JSON answer.
type QA struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float32 `json:"score"`
}

// Doc is a stored free-text document.
type Doc struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// TrainingStore embeds training data and keeps it in a VectorStore for later
// recall. Question/answer pairs are indexed by the question; documents by
// their full text.
type TrainingStore struct {
	embedder *Embedder
	store    VectorStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewTrainingStore creates a TrainingStore. A nil logger means slog.Default().
func NewTrainingStore(embedder *Embedder, store VectorStore, logger *slog.Logger) *TrainingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainingStore{embedder: embedder, store: store, logger: logger, now: time.Now}
}

// AddQuestionAnswer stores queries[i] with answers[i].
func (t *TrainingStore) AddQuestionAnswer(ctx context.Context, queries, answers []string) error {
	if len(queries) != len(answers) {
		return fmt.Errorf("got %d queries and %d answers", len(queries), len(answers))
	}
	vecs, err := t.embedder.EmbedBatch(ctx, queries)
	if err != nil {
		return err
	}
	now := t.now()
	records := make([]Record, len(queries))
	for i := range queries {
		records[i] = Record{
			ID:         uuid.NewString(),
			SourceType: SourceQA,
			Question:   queries[i],
			TextChunk:  answers[i],
			Embedding:  vecs[i],
			CreatedAt:  now,
		}
	}
	if err := t.store.Insert(ctx, records); err != nil {
		return fmt.Errorf("storing question/answer pairs: %w", err)
	}
	t.logger.Info("training pairs stored", "count", len(records))
	return nil
}

// AddDocs stores free-text documents.
func (t *TrainingStore) AddDocs(ctx context.Context, docs []string) error {
	vecs, err := t.embedder.EmbedBatch(ctx, docs)
	if err != nil {
		return err
	}
	now := t.now()
	records := make([]Record, len(docs))
	for i, d := range docs {
		records[i] = Record{
			ID:         uuid.NewString(),
			SourceType: SourceDoc,
			TextChunk:  d,
			Embedding:  vecs[i],
			CreatedAt:  now,
		}
	}
	if err := t.store.Insert(ctx, records); err != nil {
		return fmt.Errorf("storing documents: %w", err)
	}
	t.logger.Info("training documents stored", "count", len(records))
	return nil
}

// RelevantQA returns up to k stored pairs whose question is closest to query.
func (t *TrainingStore) RelevantQA(ctx context.Context, query string, k int) ([]QA, error) {
	scored, err := t.search(ctx, query, k, SourceQA)
	if err != nil {
		return nil, err
	}
	out := make([]QA, len(scored))
	for i, s := range scored {
		out[i] = QA{Question: s.Question, Answer: s.TextChunk, Score: s.Score}
	}
	return out, nil
}

// RelevantDocs returns up to k stored documents closest to query.
func (t *TrainingStore) RelevantDocs(ctx context.Context, query string, k int) ([]Doc, error) {
	scored, err := t.search(ctx, query, k, SourceDoc)
	if err != nil {
		return nil, err
	}
	out := make([]Doc, len(scored))
	for i, s := range scored {
		out[i] = Doc{Text: s.TextChunk, Score: s.Score}
	}
	return out, nil
}

// Counts returns the number of stored pairs and documents.
func (t *TrainingStore) Counts(ctx context.Context) (qa, docs int, err error) {
	if qa, err = t.store.Count(ctx, SourceQA); err != nil {
		return 0, 0, err
	}
	if docs, err = t.store.Count(ctx, SourceDoc); err != nil {
		return 0, 0, err
	}
	return qa, docs, nil
}

// Export returns every stored record, oldest first, without embeddings.
func (t *TrainingStore) Export(ctx context.Context) ([]Record, error) {
	records, err := t.store.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Embedding = nil
	}
	return records, nil
}

// Forget removes one stored pair or document by record id.
func (t *TrainingStore) Forget(ctx context.Context, id string) error {
	if err := t.store.Delete(ctx, id); err != nil {
		return err
	}
	t.logger.Info("training record removed", "id", id)
	return nil
}

func (t *TrainingStore) search(ctx context.Context, query string, k int, sourceType string) ([]ScoredRecord, error) {
	vec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return t.store.Search(ctx, vec, k, sourceType)
}
