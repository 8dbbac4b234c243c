// Package session bounds concurrent render work against one
// internal/engine.Engine: spec §5 allows parallelism only "across
// independent render sessions", never inside a single render, so this
// package hands out uniquely-identified slots and blocks new renders once
// a configured concurrency ceiling is reached.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"ajj/internal/engine"
)

// Pool bounds concurrent renders against one Engine.
type Pool struct {
	eng *engine.Engine
	sem *semaphore.Weighted

	mu       sync.Mutex
	active   map[uuid.UUID]struct{}
	maxSlots int64
}

// NewPool wraps eng, allowing at most maxConcurrent renders in flight at
// once. maxConcurrent <= 0 is clamped to 1 (the engine's own
// not-safe-for-concurrent-rendering note in SPEC_FULL §5 still applies per
// render; this pool's job is only to admit that many renders at a time,
// each against its own *vm.VM).
func NewPool(eng *engine.Engine, maxConcurrent int64) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{
		eng:      eng,
		sem:      semaphore.NewWeighted(maxConcurrent),
		active:   map[uuid.UUID]struct{}{},
		maxSlots: maxConcurrent,
	}
}

// Session is one admitted render slot, identified for logging/tracing.
type Session struct {
	ID  uuid.UUID
	eng *engine.Engine
}

// Acquire blocks until a slot is free (or ctx is cancelled) and returns a
// Session bound to a fresh UUID. Callers must call Release when done.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("session: acquire: %w", err)
	}
	id := uuid.New()
	p.mu.Lock()
	p.active[id] = struct{}{}
	p.mu.Unlock()
	return &Session{ID: id, eng: p.eng}, nil
}

// Release returns s's slot to the pool. Safe to call at most once per
// Session; a second call is a no-op past the first.
func (p *Pool) Release(s *Session) {
	p.mu.Lock()
	if _, ok := p.active[s.ID]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, s.ID)
	p.mu.Unlock()
	p.sem.Release(1)
}

// ActiveCount reports how many sessions are currently admitted.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Capacity reports the pool's configured concurrency ceiling.
func (p *Pool) Capacity() int64 { return p.maxSlots }

// RenderFile renders path via the wrapped Engine inside the slot s already
// holds; it neither acquires nor releases a slot (see Pool.WithSession).
func (s *Session) RenderFile(io engine.IOSink, path string, opts ...engine.RenderOption) error {
	return s.eng.RenderFile(io, path, opts...)
}

// RenderData mirrors RenderFile for inline source.
func (s *Session) RenderData(io engine.IOSink, source, logicalName string, opts ...engine.RenderOption) error {
	return s.eng.RenderData(io, source, logicalName, opts...)
}

// WithSession acquires a slot, runs fn, and releases the slot regardless
// of fn's outcome — the common "do one render" call shape.
func (p *Pool) WithSession(ctx context.Context, fn func(*Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(s)
	return fn(s)
}
