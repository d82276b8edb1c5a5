package actor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// compressedState is the stored envelope of a compressed entity.
type compressedState struct {
	CompressedState string `json:"compressedState"`
}

// CompressedEntity stores a JSON document gzip-compressed inside a single
// entity value, so one entity can hold an arbitrarily large map.
type CompressedEntity[T any] struct {
	inner *Entity[compressedState]
}

// NewCompressedEntity returns a handle for (kind, id).
func NewCompressedEntity[T any](rt *Runtime, kind, id string) *CompressedEntity[T] {
	return &CompressedEntity[T]{inner: NewEntity[compressedState](rt, kind, id)}
}

// GetOrThrowDecompressed loads and decompresses the state. Fails with
// ErrStateNotFound when absent.
func (c *CompressedEntity[T]) GetOrThrowDecompressed(ctx context.Context) (T, error) {
	var zero T
	env, err := c.inner.GetOrThrow(ctx)
	if err != nil {
		return zero, err
	}
	return decompress[T](env)
}

// TryGetDecompressed is the non-failing form of GetOrThrowDecompressed.
func (c *CompressedEntity[T]) TryGetDecompressed(ctx context.Context) (bool, T, error) {
	var zero T
	found, env, err := c.inner.TryGet(ctx)
	if err != nil || !found {
		return found, zero, err
	}
	v, err := decompress[T](env)
	if err != nil {
		return false, zero, err
	}
	return true, v, nil
}

// SetCompressed compresses and overwrites the state.
func (c *CompressedEntity[T]) SetCompressed(ctx context.Context, value T) error {
	env, err := compress(value)
	if err != nil {
		return err
	}
	return c.inner.Set(ctx, env)
}

// UpdateCompressed runs a read-modify-write span over the whole document.
// fn receives the current value (zero when absent) and returns the value to
// store; returning ErrNoChange skips the write.
func (c *CompressedEntity[T]) UpdateCompressed(ctx context.Context, fn func(current T, found bool) (T, error)) (T, error) {
	var result T
	_, err := c.inner.Mutate(ctx, func(env *compressedState, found bool) (*compressedState, error) {
		var current T
		if found {
			v, err := decompress[T](env)
			if err != nil {
				return nil, err
			}
			current = v
		}
		next, err := fn(current, found)
		if err != nil {
			result = current
			return nil, err
		}
		result = next
		return compress(next)
	})
	return result, err
}

// Delete removes the state.
func (c *CompressedEntity[T]) Delete(ctx context.Context) error {
	return c.inner.Delete(ctx)
}

func compress[T any](value T) (*compressedState, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compressed state: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to gzip state: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to gzip state: %w", err)
	}

	return &compressedState{CompressedState: base64.StdEncoding.EncodeToString(buf.Bytes())}, nil
}

func decompress[T any](env *compressedState) (T, error) {
	var value T
	data, err := base64.StdEncoding.DecodeString(env.CompressedState)
	if err != nil {
		return value, fmt.Errorf("failed to decode compressed state: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return value, fmt.Errorf("failed to open gzip state: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return value, fmt.Errorf("failed to gunzip state: %w", err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, fmt.Errorf("failed to decode decompressed state: %w", err)
	}
	return value, nil
}
