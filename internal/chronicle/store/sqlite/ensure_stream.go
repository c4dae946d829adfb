package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureStream guarantees a streams row exists for stream so that the
// foreign key from events is satisfied. Existing rows are left untouched.
//
// Must be called inside an existing transaction.
func ensureStream(ctx context.Context, tx *sql.Tx, stream string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO streams(stream, created_at_ms) VALUES (?, ?);
`, stream, nowMs); err != nil {
		return fmt.Errorf("ensureStream %s: %w", stream, err)
	}
	return nil
}
