// Package cache stores resolved semantic schemas across agent instances.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/kalambet/semagent/internal/dataset"
)

// Cache is a keyed string store. Get reports a miss with ok=false and a nil
// error; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

const keyVersion = "semagent/schema/v1"

// SchemaKey derives the cache key for the schema of ds rendered with ser.
// Only the dataset name, the serializer and the ordered column names and
// kinds take part, so appending rows keeps the key stable.
func SchemaKey(ds *dataset.Dataset, ser dataset.Serializer) string {
	if ser == "" {
		ser = dataset.SerializerCSV
	}
	h := sha256.New()
	io.WriteString(h, keyVersion+"\n")
	io.WriteString(h, string(ser)+"\n")
	io.WriteString(h, ds.Name()+"\n")
	for _, c := range ds.Columns() {
		io.WriteString(h, c.Name+":"+c.Kind.String()+"\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}
