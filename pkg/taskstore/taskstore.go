// Package taskstore is the durable key/value record every pipeline stage
// reads and writes through. It is the only channel a paused job learns that
// user mappings have arrived, so it must outlive both the API process and
// any worker executing the fan-out.
//
// Three backends are provided: Redis (the default), Postgres, and an
// in-memory map for tests. The backend is picked by the STORE_ADAPTER
// environment variable.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound marks a key with no stored value.
var ErrNotFound = errors.New("key not found")

// Store is the injected key/value contract. Values are opaque bytes; the
// JSON helpers below cover the common case. Writes are last-writer-wins,
// single writer per stage is the caller's discipline.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Key builders. The scheme separates the task record (status, per-stage
// metadata) from the per-job payloads written alongside it.
func TaskKey(taskID string) string         { return "task:" + taskID }
func SoftMatchKey(jobID string) string     { return "softmatch:" + jobID }
func MappingsKey(jobID string) string      { return "mappings:" + jobID }
func CommonSamplesKey(jobID string) string { return "common_ids:" + jobID }
func ContinuationKey(taskID string) string { return "continuation:" + taskID }

// GetJSON reads key and unmarshals it into out.
func GetJSON(ctx context.Context, s Store, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// UpdateJSON reads key into a fresh T, applies fn and writes the result
// back. A missing key starts from the zero value.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(*T)) error {
	var value T
	if err := GetJSON(ctx, s, key, &value); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	fn(&value)
	return SetJSON(ctx, s, key, value)
}
