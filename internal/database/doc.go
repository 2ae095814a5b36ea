// Package database persists forensic records.
//
// Three Store implementations exist:
//   - ForensicDB: SQLite (modernc.org/sqlite), a single file in the XDG data
//     directory. This is the default.
//   - PostgresDB: PostgreSQL through a pgx connection pool, for deployments
//     where several servers share one store.
//   - Unconfigured: every call returns ErrPersistenceUnavailable.
//
// Records are stored whole as JSON next to the columns used for lookups and
// statistics. Exactly one row exists per access id; a repeated Upsert merges
// into the stored row instead of replacing it, so a capture that is retried
// while its session is already being updated never loses the update:
//   - downloaded never reverts to false;
//   - download time and session end keep the stored value when present;
//   - the longer focus event sequence wins.
package database
