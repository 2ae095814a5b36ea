package session

import (
	"context"
	"sync"
	"time"

	"github.com/nao1215/linkforensics/internal/metrics"
)

// Registry holds the open trackers of a server, one per access id.
// It is safe for concurrent use.
type Registry struct {
	store   Updater
	opts    []Option
	o       options
	metrics *metrics.Metrics

	mu       sync.Mutex
	trackers map[string]*entry
}

type entry struct {
	tracker  *Tracker
	lastSeen time.Time
}

// NewRegistry creates a Registry whose trackers write to store.
func NewRegistry(store Updater, m *metrics.Metrics, opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		store:    store,
		opts:     opts,
		o:        o,
		metrics:  m,
		trackers: make(map[string]*entry),
	}
}

// Get returns the tracker for accessID, creating it on first use.
func (r *Registry) Get(accessID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.o.now()
	if e, ok := r.trackers[accessID]; ok {
		e.lastSeen = now
		return e.tracker
	}
	t := NewTracker(accessID, r.store, r.opts...)
	r.trackers[accessID] = &entry{tracker: t, lastSeen: now}
	r.metrics.SessionOpened()
	return t
}

// Len returns the number of open trackers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// Close flushes the tracker of accessID and forgets it. Closing an unknown
// access id does nothing.
func (r *Registry) Close(ctx context.Context, accessID string) error {
	r.mu.Lock()
	e, ok := r.trackers[accessID]
	if ok {
		delete(r.trackers, accessID)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.metrics.SessionClosed()
	return e.tracker.Flush(ctx)
}

// Checkpoint flushes every open tracker.
func (r *Registry) Checkpoint(ctx context.Context) {
	for _, t := range r.snapshot() {
		if err := t.Flush(ctx); err != nil {
			r.o.logger.Debug("checkpoint failed", "access_id", t.AccessID(), "error", err)
		}
	}
}

// Sweep closes the trackers that saw no call for the idle timeout and
// returns how many were closed.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.o.now().Add(-r.o.idleTimeout)

	r.mu.Lock()
	var idle []string
	for id, e := range r.trackers {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		if err := r.Close(ctx, id); err != nil {
			r.o.logger.Debug("flush of idle session failed", "access_id", id, "error", err)
		}
	}
	return len(idle)
}

// Run checkpoints and sweeps every checkpoint interval until ctx ends, then
// flushes every open tracker once more.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Checkpoint(ctx)
			if n := r.Sweep(ctx); n > 0 {
				r.o.logger.Debug("idle sessions closed", "count", n)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.flushTimeout)
			r.Checkpoint(flushCtx)
			cancel()
			return
		}
	}
}

func (r *Registry) snapshot() []*Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tracker, 0, len(r.trackers))
	for _, e := range r.trackers {
		out = append(out, e.tracker)
	}
	return out
}
