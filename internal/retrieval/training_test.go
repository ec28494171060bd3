package retrieval

import (
	"context"
	"testing"
)

func newTrainingStore(t *testing.T) *TrainingStore {
	t.Helper()
	return NewTrainingStore(NewEmbedder(&bagOfWords{}, "m"), openTestStore(t), nil)
}

func TestTrainingStore_RecallsClosestPair(t *testing.T) {
	ctx := context.Background()
	ts := newTrainingStore(t)

	err := ts.AddQuestionAnswer(ctx,
		[]string{"total freight per country", "number of orders per month"},
		[]string{`{"measures":["Orders.total_freight"]}`, `{"measures":["Orders.order_count"]}`},
	)
	if err != nil {
		t.Fatalf("AddQuestionAnswer: %v", err)
	}

	got, err := ts.RelevantQA(ctx, "freight per country", 1)
	if err != nil {
		t.Fatalf("RelevantQA: %v", err)
	}
	if len(got) != 1 || got[0].Question != "total freight per country" || got[0].Answer != `{"measures":["Orders.total_freight"]}` {
		t.Errorf("RelevantQA = %+v", got)
	}
}

func TestTrainingStore_DocsAndPairsAreSeparate(t *testing.T) {
	ctx := context.Background()
	ts := newTrainingStore(t)

	if err := ts.AddDocs(ctx, []string{"freight is charged per country"}); err != nil {
		t.Fatalf("AddDocs: %v", err)
	}
	if err := ts.AddQuestionAnswer(ctx, []string{"freight per country"}, []string{"{}"}); err != nil {
		t.Fatalf("AddQuestionAnswer: %v", err)
	}

	docs, err := ts.RelevantDocs(ctx, "freight per country", 5)
	if err != nil {
		t.Fatalf("RelevantDocs: %v", err)
	}
	if len(docs) != 1 || docs[0].Text != "freight is charged per country" {
		t.Errorf("RelevantDocs = %+v", docs)
	}

	qa, nDocs, err := ts.Counts(ctx)
	if err != nil || qa != 1 || nDocs != 1 {
		t.Errorf("Counts = %d %d %v", qa, nDocs, err)
	}
}

func TestTrainingStore_LengthMismatch(t *testing.T) {
	ts := newTrainingStore(t)
	if err := ts.AddQuestionAnswer(context.Background(), []string{"a", "b"}, []string{"{}"}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestTrainingStore_EmbeddingFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ts := NewTrainingStore(NewEmbedder(&bagOfWords{fail: "bad"}, "m"), store, nil)

	if err := ts.AddDocs(ctx, []string{"good", "bad"}); err == nil {
		t.Fatal("expected embedding error")
	}
	if n, _ := store.Count(ctx, ""); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestTrainingStore_ExportAndForget(t *testing.T) {
	ctx := context.Background()
	ts := newTrainingStore(t)

	if err := ts.AddDocs(ctx, []string{"freight is charged per country"}); err != nil {
		t.Fatal(err)
	}
	if err := ts.AddQuestionAnswer(ctx, []string{"freight per country"}, []string{"{}"}); err != nil {
		t.Fatal(err)
	}

	records, err := ts.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Export returned %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.Embedding != nil {
			t.Errorf("record %s carries its embedding", r.ID)
		}
	}

	var docID string
	for _, r := range records {
		if r.SourceType == SourceDoc {
			docID = r.ID
		}
	}
	if err := ts.Forget(ctx, docID); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if qa, docs, _ := ts.Counts(ctx); qa != 1 || docs != 0 {
		t.Errorf("Counts after Forget = %d %d, want 1 0", qa, docs)
	}
	if err := ts.Forget(ctx, docID); err == nil {
		t.Error("forgetting an unknown id should fail")
	}
}
