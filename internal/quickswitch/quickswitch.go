// Package quickswitch binds up to ten active chats to the number-row
// shortcut keys.
//
// Keys are handed out right to left along the number row: 0, 9, 8, ..., 1.
// Occupancy is tracked as a bitmask over logical positions, and keyOf maps a
// logical position to its physical key. The table is its own inverse, so it
// also maps a key back to its position.
package quickswitch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/imstore/internal/schema"
	"github.com/matheus3301/imstore/internal/store"
)

// Slots is the number of shortcut keys.
const Slots = 10

var keyOf = [Slots]int{0, 9, 8, 7, 6, 5, 4, 3, 2, 1}

// Mask is the occupancy of logical slot positions.
type Mask uint16

// Occupied reports whether logical position pos is taken.
func (m Mask) Occupied(pos int) bool { return m&(1<<pos) != 0 }

// Mark returns m with the position holding key marked as taken. Keys outside
// 0..9 are ignored.
func (m Mask) Mark(key int) Mask {
	if key < 0 || key >= Slots {
		return m
	}
	return m | 1<<keyOf[key]
}

// Free returns the key of the lowest unoccupied position, or
// schema.NoShortcut when every key is taken.
func (m Mask) Free() int {
	for pos := 0; pos < Slots; pos++ {
		if !m.Occupied(pos) {
			return keyOf[pos]
		}
	}
	return schema.NoShortcut
}

// scan returns the occupancy of all chats except exclude and how many such
// chats exist.
func scan(ctx context.Context, q store.Querier, exclude int64) (Mask, int, error) {
	rows, err := q.QueryContext(ctx, `SELECT shortcut FROM chats WHERE id != ?`, exclude)
	if err != nil {
		return 0, 0, fmt.Errorf("scan shortcuts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mask Mask
	n := 0
	for rows.Next() {
		var key int
		if err := rows.Scan(&key); err != nil {
			return 0, 0, fmt.Errorf("scan shortcut: %w", err)
		}
		mask = mask.Mark(key)
		n++
	}
	return mask, n, rows.Err()
}

func setShortcut(ctx context.Context, q store.Querier, chatID int64, key int) error {
	if _, err := q.ExecContext(ctx, `UPDATE chats SET shortcut = ? WHERE id = ?`, key, chatID); err != nil {
		return fmt.Errorf("set shortcut: %w", store.Classify(err))
	}
	return nil
}

// Assign gives a newly created chat the first free key, provided fewer than
// ten other chats exist. It returns the key, or schema.NoShortcut when the
// chat stays unassigned.
func Assign(ctx context.Context, q store.Querier, chatID int64) (int, error) {
	mask, others, err := scan(ctx, q, chatID)
	if err != nil {
		return schema.NoShortcut, err
	}
	if others >= Slots {
		return schema.NoShortcut, nil
	}
	key := mask.Free()
	if key == schema.NoShortcut {
		return key, nil
	}
	if err := setShortcut(ctx, q, chatID, key); err != nil {
		return schema.NoShortcut, err
	}
	return key, nil
}

// Backfill moves the most recently active unassigned chat into a free key.
// Ties on last message date go to the lowest chat id. It returns the chat
// that moved and its key; chatID is 0 when nothing moved.
func Backfill(ctx context.Context, q store.Querier) (chatID int64, key int, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT id FROM chats WHERE shortcut = ? ORDER BY last_message_date DESC, id ASC LIMIT 1`,
		schema.NoShortcut,
	).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, schema.NoShortcut, nil
	}
	if err != nil {
		return 0, schema.NoShortcut, fmt.Errorf("find backfill candidate: %w", err)
	}

	mask, _, err := scan(ctx, q, 0)
	if err != nil {
		return 0, schema.NoShortcut, err
	}
	key = mask.Free()
	if key == schema.NoShortcut {
		return 0, key, nil
	}
	if err := setShortcut(ctx, q, chatID, key); err != nil {
		return 0, schema.NoShortcut, err
	}
	return chatID, key, nil
}
