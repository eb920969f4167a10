package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/imstore/internal/store/migrations"
	"go.uber.org/zap"
)

// ErrMigrationFailure is returned when the durable schema could neither be
// upgraded nor recreated from scratch.
var ErrMigrationFailure = errors.New("migration failure")

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version   uint
	Dirty     bool
	Changed   bool
	Recreated bool
}

// Migrate runs all pending migrations on the durable database. When the
// chain fails, leaves the schema dirty, or meets a version this binary does
// not know, every durable table is dropped and the chain is replayed.
func (db *DB) Migrate() (*MigrateResult, error) {
	result, err := db.migrateUp()
	if err == nil {
		return result, nil
	}

	db.logger.Warn("migration failed, recreating durable schema", zap.Error(err))
	if err := db.destroy(); err != nil {
		return nil, fmt.Errorf("%w: drop tables: %w", ErrMigrationFailure, err)
	}
	result, err = db.migrateUp()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailure, err)
	}
	result.Recreated = true
	return result, nil
}

func (db *DB) migrateUp() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	err = m.Up()
	changed := true
	if errors.Is(err, migrate.ErrNoChange) {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("migration left schema dirty at version %d", version)
	}
	return &MigrateResult{
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}

// destroy drops every durable table, including the migration bookkeeping.
// Triggers and indexes go with their tables.
func (db *DB) destroy() error {
	rows, err := db.Query(`SELECT name FROM main.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		names = append(names, name)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := db.Exec(`DROP TABLE IF EXISTS main."` + name + `"`); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}
