// Package localstore is the device-local transactional store for synced
// records. All entities share one table keyed by (entity, id); each row
// carries a provenance marker so a pull never clobbers an unsynced local
// edit.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lanehq/possync/internal/entity"
)

// Origin values for the provenance marker.
const (
	OriginServer = "server"
	OriginLocal  = "local"
)

// Record is one synced row. Data is the opaque entity payload; the engine
// never interprets it.
type Record struct {
	ID        string
	UpdatedAt time.Time
	Data      json.RawMessage
	Origin    string
	Dirty     bool
}

// Store wraps the shared database connection.
type Store struct {
	conn *sql.DB
}

// Open ensures the records schema exists on the given connection.
// Timestamps are stored as Unix nanoseconds so range queries and
// ORDER BY compare numerically.
func Open(conn *sql.DB) (*Store, error) {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			entity     TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       JSON NOT NULL,
			updated_at INTEGER NOT NULL,
			origin     TEXT NOT NULL DEFAULT 'server',
			dirty      INTEGER NOT NULL DEFAULT 0,
			synced_at  INTEGER,
			PRIMARY KEY (entity, id)
		);
		CREATE INDEX IF NOT EXISTS idx_records_dirty ON records(entity, dirty);
	`)
	if err != nil {
		return nil, fmt.Errorf("init records table: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Conn returns the underlying connection, shared with the kv store.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Repo returns the repository view for one entity.
func (s *Store) Repo(id entity.ID) *Repo {
	return &Repo{conn: s.conn, entity: string(id)}
}

// Repo is a per-entity repository over the shared records table.
type Repo struct {
	conn   *sql.DB
	entity string
}

// BulkUpsert writes server-sourced records, replacing by id. Rows that hold
// an unsynced local edit (origin=local, dirty=1) are left untouched so a
// racing pull cannot lose local work. The batch commits in one transaction:
// the caller's watermark must only advance after this returns nil.
func (r *Repo) BulkUpsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (entity, id, data, updated_at, origin, dirty)
		VALUES (?, ?, ?, ?, 'server', 0)
		ON CONFLICT(entity, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			origin = 'server',
			dirty = 0
		WHERE NOT (records.origin = 'local' AND records.dirty = 1)
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("upsert %s: record with empty id", r.entity)
		}
		if _, err := stmt.ExecContext(ctx, r.entity, rec.ID, string(rec.Data),
			rec.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", r.entity, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// SaveLocal records a locally-created or locally-edited row. The row is
// marked dirty until the push reconciler confirms delivery.
func (r *Repo) SaveLocal(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("save %s: record with empty id", r.entity)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO records (entity, id, data, updated_at, origin, dirty)
		VALUES (?, ?, ?, ?, 'local', 1)
		ON CONFLICT(entity, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			origin = 'local',
			dirty = 1
	`, r.entity, rec.ID, string(rec.Data), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", r.entity, rec.ID, err)
	}
	return nil
}

// FindDirty returns locally-mutated records awaiting push, oldest first.
func (r *Repo) FindDirty(ctx context.Context) ([]Record, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, data, updated_at, origin, dirty FROM records
		WHERE entity = ? AND dirty = 1
		ORDER BY updated_at ASC
	`, r.entity)
	if err != nil {
		return nil, fmt.Errorf("find dirty %s: %w", r.entity, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FindModifiedSince returns records updated at or after ts, oldest first.
func (r *Repo) FindModifiedSince(ctx context.Context, ts time.Time) ([]Record, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, data, updated_at, origin, dirty FROM records
		WHERE entity = ? AND updated_at >= ?
		ORDER BY updated_at ASC
	`, r.entity, ts.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("find modified %s: %w", r.entity, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MarkSynced clears the dirty flag on the given ids after a successful push.
func (r *Repo) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark synced tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE records SET dirty = 0, synced_at = ?
		WHERE entity = ? AND id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare mark synced: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, now, r.entity, id); err != nil {
			return fmt.Errorf("mark synced %s/%s: %w", r.entity, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark synced: %w", err)
	}
	return nil
}

// Get returns one record, or nil when absent.
func (r *Repo) Get(ctx context.Context, id string) (*Record, error) {
	row := r.conn.QueryRowContext(ctx, `
		SELECT id, data, updated_at, origin, dirty FROM records
		WHERE entity = ? AND id = ?
	`, r.entity, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", r.entity, id, err)
	}
	return &rec, nil
}

// Count returns the number of stored rows for the entity.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity = ?`, r.entity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.entity, err)
	}
	return n, nil
}

// CountDirty returns the number of rows awaiting push.
func (r *Repo) CountDirty(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity = ? AND dirty = 1`, r.entity).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dirty %s: %w", r.entity, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var data string
	var ts int64
	var dirty int
	if err := row.Scan(&rec.ID, &data, &ts, &rec.Origin, &dirty); err != nil {
		return Record{}, err
	}
	rec.Data = json.RawMessage(data)
	rec.UpdatedAt = time.Unix(0, ts).UTC()
	rec.Dirty = dirty != 0
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
