// Package actor implements single-writer entities on top of a state store.
//
// Every entity is addressed by (kind, id). The runtime guarantees that at
// most one state mutation is in flight per id: Update spans (read, mutate,
// write) against the same id never interleave, while operations on
// different ids run concurrently. There is no isolation across ids;
// callers coordinating several entities see each step independently.
package actor

import (
	"context"
	"errors"
	"sync"

	"github.com/codeready-toolchain/lexi/pkg/statestore"
)

// ErrStateNotFound is returned when an entity has never been initialized or
// has been deleted.
var ErrStateNotFound = errors.New("actor state not found")

// ErrNoChange may be returned by an Update mutator to skip the write.
var ErrNoChange = errors.New("no state change")

// Runtime hands out entity handles and owns the per-id lock table.
type Runtime struct {
	store     statestore.Store
	namespace string

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a context-aware mutex with a reference count so idle entries
// can be dropped from the table.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewRuntime creates a runtime storing entity state under namespace.
func NewRuntime(store statestore.Store, namespace string) *Runtime {
	return &Runtime{
		store:     store,
		namespace: namespace,
		locks:     make(map[string]*keyLock),
	}
}

// Store returns the underlying state store.
func (r *Runtime) Store() statestore.Store {
	return r.store
}

// Namespace returns the key namespace of this runtime.
func (r *Runtime) Namespace() string {
	return r.namespace
}

// lock acquires the single-writer lock for key. The returned function
// releases it and must be called exactly once.
func (r *Runtime) lock(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		r.release(key, l)
		return nil, ctx.Err()
	}

	return func() {
		<-l.sem
		r.release(key, l)
	}, nil
}

func (r *Runtime) release(key string, l *keyLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

// lockedKeys returns the number of ids with a held or pending lock.
// Unexported; used by tests.
func (r *Runtime) lockedKeys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
