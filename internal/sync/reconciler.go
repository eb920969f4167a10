package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/imstore/internal/schema"
	"github.com/matheus3301/imstore/internal/store"
	"go.uber.org/zap"
)

// SeedPresence resets every presence row of the account's contacts to
// offline with an empty custom status, then creates an offline row for each
// contact of the account that has none. It returns the number of rows
// created.
func (e *Engine) SeedPresence(ctx context.Context, tx store.Querier, account int64) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		UPDATE presence SET mode = ?, status = ''
		WHERE contact_id IN (SELECT id FROM contacts WHERE account = ?)`,
		schema.Offline, account); err != nil {
		return 0, fmt.Errorf("reset presence: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO presence (contact_id, mode, status)
		SELECT contacts.id, ?, ''
		FROM contacts LEFT OUTER JOIN presence ON contacts.id = presence.contact_id
		WHERE contacts.account = ? AND presence.contact_id IS NULL`,
		schema.Offline, account)
	if err != nil {
		return 0, fmt.Errorf("seed presence: %w", err)
	}
	n, _ := res.RowsAffected()
	e.logger.Debug("presence seeded", zap.Int64("account", account), zap.Int64("created", n))
	return n, nil
}
