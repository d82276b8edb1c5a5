// Package statestore provides the durable per-key state store used by the
// actor runtime. Every backend offers per-key get/set/delete with
// read-your-writes consistency. None of them offer multi-key transactions.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrKeyNotFound is returned by Get when the key has never been written or
// has been deleted.
var ErrKeyNotFound = errors.New("state key not found")

// Store is a durable key/value store holding JSON documents.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// BulkGet returns the values for every key that exists. Missing keys are
	// omitted from the result.
	BulkGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// Query returns every value whose key starts with prefix and whose
	// top-level JSON fields equal every entry of filter. An empty filter
	// matches all values under the prefix.
	Query(ctx context.Context, prefix string, filter map[string]any) ([][]byte, error)

	// Close releases backend resources.
	Close() error
}

// Key builds a namespaced state key: "<namespace>||<kind>||<id>".
func Key(namespace, kind, id string) string {
	return namespace + "||" + kind + "||" + id
}

// KindPrefix returns the key prefix shared by every entity of kind.
func KindPrefix(namespace, kind string) string {
	return namespace + "||" + kind + "||"
}

// matchesFilter reports whether the JSON object in value has every field in
// filter set to an equal value. Values are compared after a JSON round trip so
// numbers and strings compare the way the backend stored them.
func matchesFilter(value []byte, filter map[string]any) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return false, fmt.Errorf("failed to decode stored value: %w", err)
	}
	for field, want := range filter {
		got, ok := doc[field]
		if !ok {
			return false, nil
		}
		if !jsonEqual(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
