package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/model"
)

// Page visibility states.
const (
	VisibilityVisible   = "visible"
	VisibilityHidden    = "hidden"
	VisibilityPrerender = "prerender"
)

// DefaultFlushTimeout bounds the final flush after the tracker stopped.
const DefaultFlushTimeout = 5 * time.Second

// Updater applies partial updates. database.Store implements it.
type Updater interface {
	Update(ctx context.Context, accessID string, u model.RecordUpdate) (bool, error)
}

// Option configures a Tracker or a Registry.
type Option func(*options)

type options struct {
	interval     time.Duration
	idleTimeout  time.Duration
	flushTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		interval:     config.DefaultCheckpointInterval,
		idleTimeout:  config.DefaultSessionIdleTimeout,
		flushTimeout: DefaultFlushTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
}

// WithCheckpointInterval sets how often Run flushes.
func WithCheckpointInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// WithIdleTimeout sets how long a Registry keeps a tracker without events.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithFlushTimeout bounds the final flush.
func WithFlushTimeout(d time.Duration) Option {
	return func(o *options) {
		o.flushTimeout = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Tracker buffers the session events of one access. It is safe for
// concurrent use.
type Tracker struct {
	accessID string
	store    Updater
	opts     options

	mu         sync.Mutex
	events     []model.FocusEvent
	flushed    int
	visibility string
	dirtyVis   bool

	// flushMu serializes flushes so an event is never sent twice.
	flushMu sync.Mutex
}

// NewTracker creates a tracker for accessID.
func NewTracker(accessID string, store Updater, opts ...Option) *Tracker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Tracker{accessID: accessID, store: store, opts: o}
}

// AccessID returns the tracked access id.
func (t *Tracker) AccessID() string {
	return t.accessID
}

// Focus records that the page gained focus now.
func (t *Tracker) Focus() {
	t.Observe(model.FocusGained, t.opts.now())
}

// Blur records that the page lost focus now.
func (t *Tracker) Blur() {
	t.Observe(model.FocusLost, t.opts.now())
}

// Observe records an event at ts. A timestamp earlier than the last event
// is moved up to it, so the sequence never goes backwards. Unknown kinds
// are ignored.
func (t *Tracker) Observe(kind model.FocusKind, ts time.Time) {
	if !kind.Valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.events); n > 0 && ts.Before(t.events[n-1].Timestamp) {
		ts = t.events[n-1].Timestamp
	}
	t.events = append(t.events, model.FocusEvent{Timestamp: ts, Kind: kind})
}

// VisibilityChange records a visibility transition: hidden is a blur and
// visible is a focus. Other states only update the stored visibility.
func (t *Tracker) VisibilityChange(state string) error {
	switch state {
	case VisibilityHidden:
		t.Blur()
	case VisibilityVisible:
		t.Focus()
	case VisibilityPrerender:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidVisibility, state)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.visibility != state {
		t.visibility = state
		t.dirtyVis = true
	}
	return nil
}

// Events returns a copy of every event observed so far.
func (t *Tracker) Events() []model.FocusEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.FocusEvent(nil), t.events...)
}

// Pending returns the number of events not yet flushed.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events) - t.flushed
}

// RecordDownload marks the record downloaded now. Nothing else is written.
func (t *Tracker) RecordDownload(ctx context.Context) error {
	ok, err := t.store.Update(ctx, t.accessID, model.DownloadUpdate(t.opts.now()))
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, t.accessID)
	}
	return nil
}

// Flush appends the events observed since the last successful flush.
// On failure the events stay pending and are retried by the next flush.
func (t *Tracker) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	pending := append([]model.FocusEvent(nil), t.events[t.flushed:]...)
	var visibility *string
	if t.dirtyVis {
		v := t.visibility
		visibility = &v
	}
	t.mu.Unlock()

	u := model.RecordUpdate{AppendFocusEvents: pending, PageVisibility: visibility}
	if u.IsEmpty() {
		return nil
	}

	ok, err := t.store.Update(ctx, t.accessID, u)
	if err != nil {
		return fmt.Errorf("failed to flush session events: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, t.accessID)
	}

	t.mu.Lock()
	t.flushed += len(pending)
	if visibility != nil && t.visibility == *visibility {
		t.dirtyVis = false
	}
	t.mu.Unlock()

	t.opts.logger.Debug("session events flushed", "access_id", t.accessID, "events", len(pending))
	return nil
}

// Run flushes every checkpoint interval until ctx ends, then flushes once
// more on a detached context bounded by the flush timeout.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Flush(ctx); err != nil {
				t.opts.logger.Debug("checkpoint failed", "access_id", t.accessID, "error", err)
			}
		case <-ctx.Done():
			t.finalFlush(ctx)
			return
		}
	}
}

func (t *Tracker) finalFlush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opts.flushTimeout)
	defer cancel()
	if err := t.Flush(ctx); err != nil {
		t.opts.logger.Warn("final flush failed; events since the last checkpoint are lost",
			"access_id", t.accessID, "pending", t.Pending(), "error", err)
	}
}
