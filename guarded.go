package kvengine

import "sync"

// Guarded wraps an Engine with a mutex so it can be shared across
// goroutines, mirroring the original engine's Arc<Mutex<Db>> façade: every
// operation takes the lock for its whole duration, so callers get the same
// single-writer semantics Engine documents without having to coordinate it
// themselves.
type Guarded struct {
	mu     sync.Mutex
	engine *Engine
	closed bool
}

// NewGuarded wraps an already-open Engine. The caller must not use engine
// directly afterward; all access must go through the returned Guarded.
func NewGuarded(engine *Engine) *Guarded {
	return &Guarded{engine: engine}
}

func (g *Guarded) Set(key, value []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	return g.engine.Set(key, value)
}

func (g *Guarded) Delete(key []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	return g.engine.Delete(key)
}

func (g *Guarded) Get(key []byte) (GetResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return GetResult{}, ErrClosed
	}
	return g.engine.Get(key), nil
}

func (g *Guarded) Purge() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	return g.engine.Purge()
}

func (g *Guarded) SnapshotExport() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	return g.engine.SnapshotExport(), nil
}

func (g *Guarded) SnapshotImport(blob []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	return g.engine.SnapshotImport(blob)
}

// Close closes the underlying Engine and marks g closed; further calls
// return ErrClosed instead of operating on a closed segment writer.
func (g *Guarded) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.closed = true
	return g.engine.Close()
}
