package history

import (
	"context"
	"database/sql"
	"fmt"

	"callshield/pkg/utils"
)

// PostgresRepo stores entries in the call_history table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Migrate creates the table and index when missing.
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS call_history (
  id          UUID PRIMARY KEY,
  device_id   TEXT NOT NULL,
  caller_id   TEXT NOT NULL,
  action      TEXT NOT NULL,
  redirect_to TEXT NOT NULL DEFAULT '',
  message     TEXT NOT NULL DEFAULT '',
  backend_ok  BOOLEAN NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS call_history_created_at_idx ON call_history (created_at DESC)
`}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("history: migrate: %w", err)
			}
		}
		return nil
	})
}

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO call_history (
  id, device_id, caller_id, action, redirect_to, message, backend_ok, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.DeviceID,
		e.CallerID,
		string(e.Action),
		e.RedirectTo,
		e.Message,
		e.BackendOK,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
SELECT id, device_id, caller_id, action, redirect_to, message, backend_ok, created_at
FROM call_history
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.DeviceID,
			&e.CallerID,
			&e.Action,
			&e.RedirectTo,
			&e.Message,
			&e.BackendOK,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
