package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/imstore/internal/schema"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrConstraintViolation wraps unique-key and other constraint failures.
var ErrConstraintViolation = errors.New("constraint violation")

// DB wraps the SQLite handle for the durable im.db file. Every pooled
// connection has the volatile database attached, so one transaction can
// span both stores.
type DB struct {
	*sql.DB
	path         string
	volatilePath string
	logger       *zap.Logger
}

// Options tunes how the store is opened.
type Options struct {
	BusyTimeout time.Duration
	Logger      *zap.Logger
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the durable database at path with WAL mode and recommended
// pragmas, and attaches a freshly emptied volatile database at volatilePath.
func Open(path, volatilePath string, opts Options) (*DB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	if err := removeVolatile(volatilePath); err != nil {
		return nil, fmt.Errorf("reset volatile store: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		path, busy.Milliseconds())
	drv := &sqlite3.SQLiteDriver{ConnectHook: attachVolatile(volatilePath)}
	db := sql.OpenDB(&connector{driver: drv, dsn: dsn})

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, path: path, volatilePath: volatilePath, logger: logger}, nil
}

// Close closes the handle and discards the volatile database files.
func (db *DB) Close() error {
	err := db.DB.Close()
	if rmErr := removeVolatile(db.volatilePath); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Path returns the durable database path.
func (db *DB) Path() string { return db.path }

// WithTx runs fn inside one transaction. The transaction commits only if fn
// returns nil; otherwise it rolls back and fn's error is returned as is.
// The transaction is not bound to ctx cancellation: once started it runs to
// completion or until SQLite's busy timeout gives up.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Classify marks SQLite constraint failures with ErrConstraintViolation while
// keeping the driver error in the chain.
func Classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	return err
}

type connector struct {
	driver *sqlite3.SQLiteDriver
	dsn    string
}

func (c *connector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

func attachVolatile(path string) func(*sqlite3.SQLiteConn) error {
	return func(conn *sqlite3.SQLiteConn) error {
		if _, err := conn.Exec("ATTACH DATABASE ? AS "+schema.VolatileSchema, []driver.Value{path}); err != nil {
			return fmt.Errorf("attach volatile: %w", err)
		}
		if _, err := conn.Exec("PRAGMA "+schema.VolatileSchema+".journal_mode=WAL", nil); err != nil {
			return fmt.Errorf("volatile journal mode: %w", err)
		}
		for _, stmt := range schema.VolatileDDL {
			if _, err := conn.Exec(stmt, nil); err != nil {
				return fmt.Errorf("volatile schema: %w", err)
			}
		}
		return nil
	}
}

func removeVolatile(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
