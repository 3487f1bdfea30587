package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLBackend stores values in a single table keyed by (account, kind).
// The statements are portable between PostgreSQL and SQLite; placeholders
// are rebound for the driver sqlx was opened with.
type SQLBackend struct {
	db *sqlx.DB
}

func NewSQLBackend(db *sqlx.DB) *SQLBackend { return &SQLBackend{db: db} }

// EnsureTable creates the records table if not exists (idempotent).
func (b *SQLBackend) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS pathology_records (
  account TEXT NOT NULL,
  kind TEXT NOT NULL,
  payload TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (account, kind)
)`
	_, err := b.db.ExecContext(ctx, ddl)
	return err
}

func (b *SQLBackend) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	q := b.db.Rebind(`SELECT payload FROM pathology_records WHERE account = ? AND kind = ?`)
	var payload string
	if err := b.db.GetContext(ctx, &payload, q, key.Account, string(key.Kind)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(payload), true, nil
}

func (b *SQLBackend) Put(ctx context.Context, key Key, raw []byte) error {
	q := b.db.Rebind(`INSERT INTO pathology_records (account, kind, payload, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (account, kind) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	_, err := b.db.ExecContext(ctx, q, key.Account, string(key.Kind), string(raw), time.Now().UTC())
	return err
}

func (b *SQLBackend) Delete(ctx context.Context, key Key) error {
	q := b.db.Rebind(`DELETE FROM pathology_records WHERE account = ? AND kind = ?`)
	_, err := b.db.ExecContext(ctx, q, key.Account, string(key.Kind))
	return err
}

func (b *SQLBackend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }
