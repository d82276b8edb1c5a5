package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/lexi/pkg/statestore"
)

// Entity is a typed handle to the state of one (kind, id).
type Entity[T any] struct {
	rt   *Runtime
	kind string
	id   string
	key  string
}

// NewEntity returns a handle for (kind, id). Handles are cheap; the lock
// table lives on the runtime.
func NewEntity[T any](rt *Runtime, kind, id string) *Entity[T] {
	return &Entity[T]{
		rt:   rt,
		kind: kind,
		id:   id,
		key:  statestore.Key(rt.namespace, kind, id),
	}
}

// ID returns the entity id.
func (e *Entity[T]) ID() string { return e.id }

// Kind returns the entity kind.
func (e *Entity[T]) Kind() string { return e.kind }

// TryGet loads the state without failing when it is absent.
func (e *Entity[T]) TryGet(ctx context.Context) (bool, *T, error) {
	unlock, err := e.rt.lock(ctx, e.key)
	if err != nil {
		return false, nil, err
	}
	defer unlock()
	return e.load(ctx)
}

// GetOrThrow loads the state and fails with ErrStateNotFound when absent.
func (e *Entity[T]) GetOrThrow(ctx context.Context) (*T, error) {
	found, state, err := e.TryGet(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, e.notFound()
	}
	return state, nil
}

// Init writes the first state. A second Init overwrites; no already-exists
// error is raised.
func (e *Entity[T]) Init(ctx context.Context, state *T) error {
	return e.Set(ctx, state)
}

// Set unconditionally overwrites the state.
func (e *Entity[T]) Set(ctx context.Context, state *T) error {
	unlock, err := e.rt.lock(ctx, e.key)
	if err != nil {
		return err
	}
	defer unlock()
	return e.store(ctx, state)
}

// Delete removes the state. Later TryGet calls report not found.
func (e *Entity[T]) Delete(ctx context.Context) error {
	unlock, err := e.rt.lock(ctx, e.key)
	if err != nil {
		return err
	}
	defer unlock()
	if err := e.rt.store.Delete(ctx, e.key); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", e.kind, e.id, err)
	}
	return nil
}

// Update runs a read-modify-write span on existing state while holding the
// entity's lock. fn mutates the state in place; returning ErrNoChange skips
// the write, any other error aborts it. Fails with ErrStateNotFound when the
// entity has no state.
func (e *Entity[T]) Update(ctx context.Context, fn func(state *T) error) (*T, error) {
	return e.Mutate(ctx, func(state *T, found bool) (*T, error) {
		if !found {
			return nil, e.notFound()
		}
		if err := fn(state); err != nil {
			return state, err
		}
		return state, nil
	})
}

// Mutate is the general form of Update: fn receives the current state (nil
// when absent) and returns the state to store.
func (e *Entity[T]) Mutate(ctx context.Context, fn func(state *T, found bool) (*T, error)) (*T, error) {
	unlock, err := e.rt.lock(ctx, e.key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	found, current, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	next, err := fn(current, found)
	if errors.Is(err, ErrNoChange) {
		// fn may have touched current in place; hand back what is stored.
		_, stored, err := e.load(ctx)
		return stored, err
	}
	if err != nil {
		return nil, err
	}
	if err := e.store(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (e *Entity[T]) load(ctx context.Context) (bool, *T, error) {
	raw, err := e.rt.store.Get(ctx, e.key)
	if err != nil {
		if errors.Is(err, statestore.ErrKeyNotFound) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("failed to load %s %s: %w", e.kind, e.id, err)
	}
	state := new(T)
	if err := json.Unmarshal(raw, state); err != nil {
		return false, nil, fmt.Errorf("failed to decode %s %s: %w", e.kind, e.id, err)
	}
	return true, state, nil
}

func (e *Entity[T]) store(ctx context.Context, state *T) error {
	if state == nil {
		return fmt.Errorf("nil state for %s %s", e.kind, e.id)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", e.kind, e.id, err)
	}
	if err := e.rt.store.Set(ctx, e.key, raw); err != nil {
		return fmt.Errorf("failed to store %s %s: %w", e.kind, e.id, err)
	}
	return nil
}

func (e *Entity[T]) notFound() error {
	return fmt.Errorf("%s %s: %w", e.kind, e.id, ErrStateNotFound)
}
