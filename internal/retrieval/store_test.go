package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/semagent/internal/storage"
)

// openTestStore returns a SQLiteStore over a migrated in-memory database.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSQLiteStore(st.DB())
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	vec := makeTestVector(64, 0.1)
	err := s.Insert(ctx, []Record{{
		ID:         "r1",
		SourceType: SourceQA,
		Question:   "total freight per country",
		TextChunk:  `{"measures":["Orders.total_freight"]}`,
		Embedding:  vec,
		CreatedAt:  time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(ctx, vec, 1, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score < 0.99 || results[0].ID != "r1" || results[0].Question != "total freight per country" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestSearch_TopKSortedBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// Axis-aligned vectors make the expected ranking exact.
	var records []Record
	for i := 0; i < 5; i++ {
		v := []float32{1, float32(i)}
		records = append(records, Record{ID: fmt.Sprintf("r%d", i), SourceType: SourceDoc, TextChunk: "t", Embedding: v})
	}
	if err := s.Insert(ctx, records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 3, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"r0", "r1", "r2"} {
		if results[i].ID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestSearch_FiltersBySourceType(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	vec := makeTestVector(8, 0.2)
	s.Insert(ctx, []Record{
		{ID: "qa", SourceType: SourceQA, Question: "q", TextChunk: "a", Embedding: vec},
		{ID: "doc", SourceType: SourceDoc, TextChunk: "d", Embedding: vec},
	})

	results, err := s.Search(ctx, vec, 5, SourceDoc)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "doc" {
		t.Errorf("results = %v", results)
	}
	if n, _ := s.Count(ctx, SourceQA); n != 1 {
		t.Errorf("Count(qa) = %d, want 1", n)
	}
	if n, _ := s.Count(ctx, ""); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestSearch_EmptyAndZeroVector(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if results, err := s.Search(ctx, makeTestVector(8, 0.1), 5, ""); err != nil || len(results) != 0 {
		t.Errorf("empty store: %v %v", results, err)
	}
	s.Insert(ctx, []Record{{ID: "r", SourceType: SourceDoc, TextChunk: "t", Embedding: makeTestVector(8, 0.1)}})
	if results, err := s.Search(ctx, make([]float32, 8), 5, ""); err != nil || results != nil {
		t.Errorf("zero vector: %v %v", results, err)
	}
}

func TestInsert_RollsBackOnDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	vec := makeTestVector(4, 0.1)
	err := s.Insert(ctx, []Record{
		{ID: "a", SourceType: SourceDoc, TextChunk: "1", Embedding: vec},
		{ID: "a", SourceType: SourceDoc, TextChunk: "2", Embedding: vec},
	})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if n, _ := s.Count(ctx, ""); n != 0 {
		t.Errorf("Count = %d, want 0 after rollback", n)
	}
}

func TestDeleteAndExport(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Insert(ctx, []Record{
		{ID: "r1", SourceType: SourceDoc, TextChunk: "first", Embedding: makeTestVector(16, 0.1), CreatedAt: base},
		{ID: "r2", SourceType: SourceDoc, TextChunk: "second", Embedding: makeTestVector(16, 0.2), CreatedAt: base.Add(time.Hour)},
	})

	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "r1"); err == nil {
		t.Error("second delete should fail")
	}

	exported, err := s.ExportAll(ctx)
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(exported) != 1 || exported[0].ID != "r2" || len(exported[0].Embedding) != 16 {
		t.Errorf("exported = %+v", exported)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
