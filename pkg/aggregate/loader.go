package aggregate

import (
	"context"
	"sync"
)

type flight struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Loader runs at most one load per view key. Starting a load cancels the
// previous one for the same key and waits for it to wind down.
type Loader struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[string]*flight
}

// NewLoader creates a Loader
func NewLoader() *Loader {
	return &Loader{inflight: make(map[string]*flight)}
}

// Run executes fn for key, superseding any load still running for it
func (l *Loader) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	l.seq++
	f := &flight{id: l.seq, cancel: cancel, done: make(chan struct{})}
	prev := l.inflight[key]
	l.inflight[key] = f
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		if cur := l.inflight[key]; cur != nil && cur.id == f.id {
			delete(l.inflight, key)
		}
		l.mu.Unlock()
		close(f.done)
	}()

	if prev != nil {
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fn(ctx)
}

// Aggregate runs Aggregate under key
func (l *Loader) Aggregate(ctx context.Context, key string, lister Lister, root string, opts Options) (Result, error) {
	var res Result
	err := l.Run(ctx, key, func(ctx context.Context) error {
		var err error
		res, err = Aggregate(ctx, lister, root, opts)
		return err
	})
	return res, err
}

// InFlight reports whether a load for key is running
func (l *Loader) InFlight(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[key]
	return ok
}
