package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/linkforensics/internal/model"
)

// DBFileName is the name of the SQLite file inside the database directory.
const DBFileName = "linkforensics.db"

// createdAtLayout sorts lexically in time order.
const createdAtLayout = "2006-01-02 15:04:05.000000"

// ForensicDB provides SQLite-based storage for forensic records.
//
// The pool holds a single connection, so every transaction is serialized.
// That makes the read-merge-write of Upsert and Update atomic without
// table locks.
type ForensicDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ForensicDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so that readers do not block
	// the writer.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ForensicDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ForensicDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite: mode=rw refuses to create the file, mode=rwc allows it.
	// busy_timeout lets a second process wait for the writer instead of failing.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	fdb := &ForensicDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := fdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return fdb, nil
}

// Path returns the database file path.
func (fdb *ForensicDB) Path() string {
	return fdb.dbPath
}

// Close closes the database connection.
func (fdb *ForensicDB) Close() error {
	return fdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (fdb *ForensicDB) createTables() error {
	schema := `
	-- One row per access; the full record is kept as JSON
	CREATE TABLE IF NOT EXISTS forensic_records (
		access_id TEXT PRIMARY KEY,
		link_id TEXT NOT NULL,
		resource_audit_id TEXT NOT NULL,
		public_ip TEXT NOT NULL DEFAULT '',
		downloaded INTEGER NOT NULL DEFAULT 0,
		trust_score INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		record_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_audit ON forensic_records(resource_audit_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_records_link ON forensic_records(link_id, created_at);
	`

	_, err := fdb.db.ExecContext(context.Background(), schema)
	return err
}

// Upsert inserts the record or merges it into the stored row.
func (fdb *ForensicDB) Upsert(ctx context.Context, rec *model.ForensicRecord) (string, error) {
	if rec == nil || rec.AccessID == "" {
		return "", ErrInvalidRecord
	}

	tx, err := fdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stored, err := getTx(ctx, tx, rec.AccessID)
	if err != nil {
		return "", err
	}
	merged := merge(stored, rec)

	data, err := encodeRecord(merged)
	if err != nil {
		return "", err
	}

	query := `
	INSERT INTO forensic_records (access_id, link_id, resource_audit_id, public_ip, downloaded, trust_score, created_at, record_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(access_id) DO UPDATE SET
		link_id = excluded.link_id,
		resource_audit_id = excluded.resource_audit_id,
		public_ip = excluded.public_ip,
		downloaded = excluded.downloaded,
		trust_score = excluded.trust_score,
		record_json = excluded.record_json,
		updated_at = CURRENT_TIMESTAMP
	`
	_, err = tx.ExecContext(ctx, query,
		merged.AccessID,
		merged.LinkID,
		merged.ResourceAuditID,
		merged.NetworkIdentity.PublicIP,
		merged.Session.Downloaded,
		merged.TrustScore,
		merged.CreatedAt.UTC().Format(createdAtLayout),
		string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit record: %w", err)
	}
	return merged.AccessID, nil
}

// Update applies a partial update inside one transaction.
func (fdb *ForensicDB) Update(ctx context.Context, accessID string, u model.RecordUpdate) (bool, error) {
	tx, err := fdb.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rec, err := getTx(ctx, tx, accessID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if u.IsEmpty() {
		return true, nil
	}
	rec.Apply(u)

	data, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	query := `
	UPDATE forensic_records
	SET downloaded = ?, record_json = ?, updated_at = CURRENT_TIMESTAMP
	WHERE access_id = ?
	`
	if _, err := tx.ExecContext(ctx, query, rec.Session.Downloaded, string(data), accessID); err != nil {
		return false, fmt.Errorf("failed to update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit update: %w", err)
	}
	return true, nil
}

// Get retrieves a record by access id. It returns nil when not found.
func (fdb *ForensicDB) Get(ctx context.Context, accessID string) (*model.ForensicRecord, error) {
	var data string
	err := fdb.db.QueryRowContext(ctx,
		`SELECT record_json FROM forensic_records WHERE access_id = ?`, accessID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord([]byte(data))
}

func getTx(ctx context.Context, tx *sql.Tx, accessID string) (*model.ForensicRecord, error) {
	var data string
	err := tx.QueryRowContext(ctx,
		`SELECT record_json FROM forensic_records WHERE access_id = ?`, accessID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return decodeRecord([]byte(data))
}

// ListByAudit returns the records of a resource, newest first.
func (fdb *ForensicDB) ListByAudit(ctx context.Context, auditID string) ([]*model.ForensicRecord, error) {
	return fdb.list(ctx, "resource_audit_id", auditID)
}

// ListByLink returns the records of a share link, newest first.
func (fdb *ForensicDB) ListByLink(ctx context.Context, linkID string) ([]*model.ForensicRecord, error) {
	return fdb.list(ctx, "link_id", linkID)
}

// list is only called with fixed column names.
func (fdb *ForensicDB) list(ctx context.Context, column, value string) ([]*model.ForensicRecord, error) {
	query := `
	SELECT record_json FROM forensic_records
	WHERE ` + column + ` = ?
	ORDER BY created_at DESC, access_id DESC
	`

	rows, err := fdb.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*model.ForensicRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			continue // Skip malformed records
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Stats summarizes the accesses to one resource. Unresolved public IPs are
// not counted as unique addresses.
func (fdb *ForensicDB) Stats(ctx context.Context, auditID string) (*Stats, error) {
	query := `
	SELECT
		COUNT(*),
		COUNT(DISTINCT CASE WHEN public_ip NOT IN ('', ?) THEN public_ip END),
		COALESCE(SUM(downloaded), 0),
		COALESCE(MAX(created_at), '')
	FROM forensic_records
	WHERE resource_audit_id = ?
	`

	stats := Stats{AuditID: auditID}
	var last string
	err := fdb.db.QueryRowContext(ctx, query, model.PublicIPUnknown, auditID).Scan(
		&stats.TotalAccesses,
		&stats.UniqueIPs,
		&stats.Downloads,
		&last,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	if t := parseTimestamp(last); !t.IsZero() {
		stats.LastAccess = &t
	}
	return &stats, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",  // SQLite default datetime format, fractions accepted
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
