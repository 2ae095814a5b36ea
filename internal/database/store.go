package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/metrics"
	"github.com/nao1215/linkforensics/internal/model"
)

// Store is the durable home of forensic records.
type Store interface {
	// Upsert inserts the record or merges it into the stored one and returns
	// the access id.
	Upsert(ctx context.Context, rec *model.ForensicRecord) (string, error)

	// Update applies a partial update. It reports false when no record with
	// the access id exists.
	Update(ctx context.Context, accessID string, u model.RecordUpdate) (bool, error)

	// Get returns the record, or nil when it does not exist.
	Get(ctx context.Context, accessID string) (*model.ForensicRecord, error)

	// ListByAudit and ListByLink return records newest first.
	ListByAudit(ctx context.Context, auditID string) ([]*model.ForensicRecord, error)
	ListByLink(ctx context.Context, linkID string) ([]*model.ForensicRecord, error)

	// Stats summarizes the accesses to one resource.
	Stats(ctx context.Context, auditID string) (*Stats, error)

	Close() error
}

// Stats summarizes the accesses to one resource.
type Stats = model.Stats

// OpenStore opens the backend selected by cfg.DBDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case config.DBDriverSQLite:
		return Open(cfg.DBDir, DefaultOptions())
	case config.DBDriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case config.DBDriverNone:
		return Unconfigured{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidDBDriver, cfg.DBDriver)
	}
}

// Unconfigured is the Store used when persistence is disabled.
// Every call returns ErrPersistenceUnavailable.
type Unconfigured struct{}

// Upsert implements Store.
func (Unconfigured) Upsert(context.Context, *model.ForensicRecord) (string, error) {
	return "", ErrPersistenceUnavailable
}

// Update implements Store.
func (Unconfigured) Update(context.Context, string, model.RecordUpdate) (bool, error) {
	return false, ErrPersistenceUnavailable
}

// Get implements Store.
func (Unconfigured) Get(context.Context, string) (*model.ForensicRecord, error) {
	return nil, ErrPersistenceUnavailable
}

// ListByAudit implements Store.
func (Unconfigured) ListByAudit(context.Context, string) ([]*model.ForensicRecord, error) {
	return nil, ErrPersistenceUnavailable
}

// ListByLink implements Store.
func (Unconfigured) ListByLink(context.Context, string) ([]*model.ForensicRecord, error) {
	return nil, ErrPersistenceUnavailable
}

// Stats implements Store.
func (Unconfigured) Stats(context.Context, string) (*Stats, error) {
	return nil, ErrPersistenceUnavailable
}

// Close implements Store.
func (Unconfigured) Close() error {
	return nil
}

// Instrument wraps store so that every write is counted in m.
func Instrument(store Store, m *metrics.Metrics) Store {
	if m == nil {
		return store
	}
	return &instrumented{Store: store, metrics: m}
}

type instrumented struct {
	Store
	metrics *metrics.Metrics
}

func (s *instrumented) Upsert(ctx context.Context, rec *model.ForensicRecord) (string, error) {
	id, err := s.Store.Upsert(ctx, rec)
	s.metrics.ObserveStore("upsert", outcome(err))
	return id, err
}

func (s *instrumented) Update(ctx context.Context, accessID string, u model.RecordUpdate) (bool, error) {
	ok, err := s.Store.Update(ctx, accessID, u)
	s.metrics.ObserveStore("update", outcome(err))
	return ok, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrPersistenceUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}

var (
	_ Store = (*ForensicDB)(nil)
	_ Store = (*PostgresDB)(nil)
	_ Store = Unconfigured{}
)
