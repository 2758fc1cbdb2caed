// Package cache persists snapshots of synchronized data on the device so the
// app can render before the network answers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"linova-go/internal/apperr"
)

// Store is a batched key/value store holding JSON documents.
type Store interface {
	// Get returns the raw values for the keys that exist; missing keys are omitted.
	Get(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, keys []string) error
}

// Decode unmarshals one cached value. A failure is reported as a
// cache-parse error and leaves dest untouched.
func Decode(key string, raw []byte, dest any) error {
	if len(raw) == 0 {
		return apperr.CacheParse("decode "+key, fmt.Errorf("empty value"))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return apperr.CacheParse("decode "+key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, store Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}
