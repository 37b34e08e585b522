// Package migrations creates the tables used by the SQL-backed stores.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is satisfied by *sql.DB, *sql.Tx and *sqlx.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// statements are portable between SQLite and PostgreSQL and are safe to
// re-run.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS roster_kv (
		entry_key   TEXT PRIMARY KEY,
		entry_value TEXT NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS roster_kv_updated_at_idx ON roster_kv (updated_at)`,
}

// Apply executes every migration in order.
func Apply(ctx context.Context, db Execer) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
