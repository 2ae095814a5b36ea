package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/linkforensics/internal/model"
)

// postgresConnectTimeout bounds pool creation and the first ping.
const postgresConnectTimeout = 10 * time.Second

// PostgresDB stores forensic records in PostgreSQL.
//
// Concurrent writers of the same access id are serialized with a
// transaction-scoped advisory lock on the id, so the merge always sees the
// latest committed row, including a row inserted by a racing capture.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, postgresConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}

	pdb := &PostgresDB{pool: pool}
	if err := pdb.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return pdb, nil
}

// Close closes the pool.
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresDB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS forensic_records (
		access_id TEXT PRIMARY KEY,
		link_id TEXT NOT NULL,
		resource_audit_id TEXT NOT NULL,
		public_ip TEXT NOT NULL DEFAULT '',
		downloaded BOOLEAN NOT NULL DEFAULT FALSE,
		trust_score INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		record JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_audit ON forensic_records(resource_audit_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_link ON forensic_records(link_id, created_at DESC);
	`
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// lockRecord takes the per-record advisory lock for the rest of tx.
func lockRecord(ctx context.Context, tx pgx.Tx, accessID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, accessID); err != nil {
		return fmt.Errorf("failed to lock record: %w", err)
	}
	return nil
}

func pgGet(ctx context.Context, q pgx.Tx, accessID string) (*model.ForensicRecord, error) {
	var data []byte
	err := q.QueryRow(ctx, `SELECT record FROM forensic_records WHERE access_id = $1`, accessID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return decodeRecord(data)
}

// Upsert inserts the record or merges it into the stored row.
func (p *PostgresDB) Upsert(ctx context.Context, rec *model.ForensicRecord) (string, error) {
	if rec == nil || rec.AccessID == "" {
		return "", ErrInvalidRecord
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := lockRecord(ctx, tx, rec.AccessID); err != nil {
		return "", err
	}
	stored, err := pgGet(ctx, tx, rec.AccessID)
	if err != nil {
		return "", err
	}
	merged := merge(stored, rec)
	data, err := encodeRecord(merged)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
	INSERT INTO forensic_records (access_id, link_id, resource_audit_id, public_ip, downloaded, trust_score, created_at, record)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (access_id) DO UPDATE SET
		link_id = EXCLUDED.link_id,
		resource_audit_id = EXCLUDED.resource_audit_id,
		public_ip = EXCLUDED.public_ip,
		downloaded = EXCLUDED.downloaded,
		trust_score = EXCLUDED.trust_score,
		record = EXCLUDED.record,
		updated_at = now()
	`,
		merged.AccessID,
		merged.LinkID,
		merged.ResourceAuditID,
		merged.NetworkIdentity.PublicIP,
		merged.Session.Downloaded,
		merged.TrustScore,
		merged.CreatedAt,
		data,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit record: %w", err)
	}
	return merged.AccessID, nil
}

// Update applies a partial update inside one transaction.
func (p *PostgresDB) Update(ctx context.Context, accessID string, u model.RecordUpdate) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := lockRecord(ctx, tx, accessID); err != nil {
		return false, err
	}
	rec, err := pgGet(ctx, tx, accessID)
	if err != nil || rec == nil {
		return false, err
	}
	if u.IsEmpty() {
		return true, nil
	}
	rec.Apply(u)

	data, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `
	UPDATE forensic_records
	SET downloaded = $1, record = $2, updated_at = now()
	WHERE access_id = $3
	`, rec.Session.Downloaded, data, accessID)
	if err != nil {
		return false, fmt.Errorf("failed to update record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit update: %w", err)
	}
	return true, nil
}

// Get retrieves a record by access id. It returns nil when not found.
func (p *PostgresDB) Get(ctx context.Context, accessID string) (*model.ForensicRecord, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT record FROM forensic_records WHERE access_id = $1`, accessID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord(data)
}

// ListByAudit returns the records of a resource, newest first.
func (p *PostgresDB) ListByAudit(ctx context.Context, auditID string) ([]*model.ForensicRecord, error) {
	return p.list(ctx, `SELECT record FROM forensic_records WHERE resource_audit_id = $1 ORDER BY created_at DESC, access_id DESC`, auditID)
}

// ListByLink returns the records of a share link, newest first.
func (p *PostgresDB) ListByLink(ctx context.Context, linkID string) ([]*model.ForensicRecord, error) {
	return p.list(ctx, `SELECT record FROM forensic_records WHERE link_id = $1 ORDER BY created_at DESC, access_id DESC`, linkID)
}

func (p *PostgresDB) list(ctx context.Context, query, value string) ([]*model.ForensicRecord, error) {
	rows, err := p.pool.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	blobs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	records := make([]*model.ForensicRecord, 0, len(blobs))
	for _, data := range blobs {
		rec, err := decodeRecord(data)
		if err != nil {
			continue // Skip malformed records
		}
		records = append(records, rec)
	}
	return records, nil
}

// Stats summarizes the accesses to one resource.
func (p *PostgresDB) Stats(ctx context.Context, auditID string) (*Stats, error) {
	stats := Stats{AuditID: auditID}
	var last *time.Time
	err := p.pool.QueryRow(ctx, `
	SELECT
		COUNT(*),
		COUNT(DISTINCT public_ip) FILTER (WHERE public_ip NOT IN ('', $1)),
		COUNT(*) FILTER (WHERE downloaded),
		MAX(created_at)
	FROM forensic_records
	WHERE resource_audit_id = $2
	`, model.PublicIPUnknown, auditID).Scan(
		&stats.TotalAccesses,
		&stats.UniqueIPs,
		&stats.Downloads,
		&last,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	if last != nil {
		t := last.UTC()
		stats.LastAccess = &t
	}
	return &stats, nil
}
