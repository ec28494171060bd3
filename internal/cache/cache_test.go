package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kalambet/semagent/internal/dataset"
)

func mustDataset(t *testing.T, name string, cols ...dataset.Column) *dataset.Dataset {
	t.Helper()
	d, err := dataset.New(name, cols...)
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	return d
}

func TestSchemaKey_Stability(t *testing.T) {
	a := mustDataset(t, "countries", dataset.Strings("country", "France"), dataset.Floats("gdp", 1.5))
	moreRows := mustDataset(t, "countries", dataset.Strings("country", "France", "Japan"), dataset.Floats("gdp", 1.5, 2))

	if SchemaKey(a, dataset.SerializerCSV) != SchemaKey(moreRows, dataset.SerializerCSV) {
		t.Error("row values should not change the key")
	}
	if SchemaKey(a, "") != SchemaKey(a, dataset.SerializerCSV) {
		t.Error("empty serializer should behave like csv")
	}
	if len(SchemaKey(a, dataset.SerializerCSV)) != 64 {
		t.Error("key should be a hex sha-256 digest")
	}
}

func TestSchemaKey_Changes(t *testing.T) {
	base := mustDataset(t, "countries", dataset.Strings("country", "France"), dataset.Floats("gdp", 1.5))
	key := SchemaKey(base, dataset.SerializerCSV)

	variants := map[string]string{
		"serializer": SchemaKey(base, dataset.SerializerYAML),
		"name":       SchemaKey(mustDataset(t, "nations", dataset.Strings("country", "France"), dataset.Floats("gdp", 1.5)), dataset.SerializerCSV),
		"kind":       SchemaKey(mustDataset(t, "countries", dataset.Strings("country", "France"), dataset.Ints("gdp", 1)), dataset.SerializerCSV),
		"order":      SchemaKey(mustDataset(t, "countries", dataset.Floats("gdp", 1.5), dataset.Strings("country", "France")), dataset.SerializerCSV),
	}
	for what, k := range variants {
		if k == key {
			t.Errorf("changing the %s should change the key", what)
		}
	}
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	if _, ok, err := m.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := m.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("Get = %q %v %v, want last write", v, ok, err)
	}
	if err := m.Set(ctx, "", "x"); err == nil {
		t.Error("empty key should be rejected")
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	if err := m.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(30 * time.Second)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Error("entry should still be live")
	}
	clock = clock.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be dropped", m.Len())
	}
}

func TestMemory_ExpiryKeepsConcurrentSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	if err := m.Set(ctx, "k", "old"); err != nil {
		t.Fatal(err)
	}

	// The first clock read happens after Get released its read lock; a Set
	// landing right there must survive the expiry of the old entry.
	later := start.Add(2 * time.Minute)
	setDone := false
	m.now = func() time.Time {
		if !setDone {
			setDone = true
			if err := m.Set(ctx, "k", "fresh"); err != nil {
				t.Fatal(err)
			}
		}
		return later
	}

	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || v != "fresh" {
		t.Fatalf("Get = %q, %v, %v; want the fresh entry", v, ok, err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory(0)
	if err := m.Set(ctx, "k", "v"); err == nil {
		t.Error("Set should fail on a cancelled context")
	}
	if _, _, err := m.Get(ctx, "k"); err == nil {
		t.Error("Get should fail on a cancelled context")
	}
}
