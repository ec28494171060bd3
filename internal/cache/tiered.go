package cache

import (
	"context"
	"errors"
	"log/slog"
)

// Deleter is implemented by caches that can drop a single entry.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Tiered reads through a fast front cache to a persistent back cache.
// Back hits are copied to the front; writes and deletes go to both, back
// first.
type Tiered struct {
	front Cache
	back  Cache
}

// NewTiered layers front over back.
func NewTiered(front, back Cache) *Tiered {
	return &Tiered{front: front, back: back}
}

func (t *Tiered) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := t.front.Get(ctx, key)
	if err != nil {
		slog.Debug("front cache read failed", "key", key, "error", err)
	} else if ok {
		return v, true, nil
	}

	v, ok, err = t.back.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := t.front.Set(ctx, key, v); err != nil {
		slog.Debug("front cache fill failed", "key", key, "error", err)
	}
	return v, true, nil
}

func (t *Tiered) Set(ctx context.Context, key, value string) error {
	if err := t.back.Set(ctx, key, value); err != nil {
		return err
	}
	return t.front.Set(ctx, key, value)
}

// Delete drops key from every layer that supports deletion.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, c := range []Cache{t.back, t.front} {
		if d, ok := c.(Deleter); ok {
			if err := d.Delete(ctx, key); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
