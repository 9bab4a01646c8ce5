package segalloc

import (
	"sync"

	"github.com/mvyskoc/segalloc/arena"
	"github.com/mvyskoc/segalloc/diag"
)

// Locked adds mutex-guarded access around an Engine for callers that
// need it. spec.md §5 scopes the engine itself to a single logical
// mutator; Locked is the layer above that boundary, not a change to
// the engine's own concurrency model.
type Locked struct {
	mu sync.Mutex
	e  *Engine
}

// NewLocked wraps an Engine with a mutex.
func NewLocked(e *Engine) *Locked {
	return &Locked{e: e}
}

func (l *Locked) Init() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.e.Init()
}

func (l *Locked) Allocate(n uint32) (arena.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Allocate(n)
}

func (l *Locked) Release(p arena.Addr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.e.Release(p)
}

func (l *Locked) Calloc(num, size uint32) (arena.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Calloc(num, size)
}

func (l *Locked) Resize(p arena.Addr, n uint32) (arena.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Resize(p, n)
}

func (l *Locked) Check(verbose bool) *diag.Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Check(verbose)
}
