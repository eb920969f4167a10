package resolver

import (
	"context"
	"fmt"

	"github.com/matheus3301/imstore/internal/schema"
	"github.com/matheus3301/imstore/internal/store"
)

// dependents are the volatile tables keyed by contact id. They live outside
// the durable file, so no trigger can reach them.
var dependents = []struct {
	table  string
	column string
}{
	{schema.Presence, "contact_id"},
	{schema.Chats, "contact_id"},
	{schema.GroupMembers, "group_id"},
	{schema.GroupMessages, "group_id"},
}

// cleanupContacts removes rows that referenced deleted contacts. With a
// contact id only that contact's rows are removed; with 0 every row whose
// contact no longer exists goes. It reports whether any chat was removed.
func cleanupContacts(ctx context.Context, q store.Querier, contactID int64) (bool, error) {
	var chats int64
	for _, d := range dependents {
		var (
			stmt string
			args []any
		)
		if contactID > 0 {
			stmt = "DELETE FROM " + d.table + " WHERE " + d.column + " = ?"
			args = []any{contactID}
		} else {
			stmt = "DELETE FROM " + d.table + " WHERE " + d.column + " NOT IN (SELECT id FROM contacts)"
		}
		res, err := q.ExecContext(ctx, stmt, args...)
		if err != nil {
			return false, fmt.Errorf("clean up %s: %w", d.table, err)
		}
		if d.table == schema.Chats {
			chats, _ = res.RowsAffected()
		}
	}
	return chats > 0, nil
}
