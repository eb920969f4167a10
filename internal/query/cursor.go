package query

import (
	"database/sql"
	"fmt"
)

// Row is one result row keyed by logical column name.
type Row map[string]any

// Cursor is a lazy, forward-only result. Notify names the canonical
// locator to watch for changes to the rows it returns.
type Cursor struct {
	rows   *sql.Rows
	cols   []string
	Notify string
}

// NewCursor wraps rows. The cursor owns rows and closes them.
func NewCursor(rows *sql.Rows, notify string) (*Cursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return &Cursor{rows: rows, cols: cols, Notify: notify}, nil
}

// Columns returns the selected logical column names.
func (c *Cursor) Columns() []string { return c.cols }

// Next advances to the next row.
func (c *Cursor) Next() bool { return c.rows.Next() }

// Row scans the current row.
func (c *Cursor) Row() (Row, error) {
	vals := make([]any, len(c.cols))
	ptrs := make([]any, len(c.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	row := make(Row, len(c.cols))
	for i, name := range c.cols {
		row[name] = vals[i]
	}
	return row, nil
}

// Err returns the error, if any, hit during iteration.
func (c *Cursor) Err() error { return c.rows.Err() }

// Close releases the cursor.
func (c *Cursor) Close() error { return c.rows.Close() }

// All drains and closes the cursor.
func (c *Cursor) All() ([]Row, error) {
	defer func() { _ = c.Close() }()
	var out []Row
	for c.Next() {
		row, err := c.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, c.Err()
}
