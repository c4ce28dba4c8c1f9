/*
Package sqlite opens the SQLite-backed database used in development and tests.

CONCURRENCY:
  The pool holds a single connection. SQLite has no row locks, so the one
  connection is what serializes read-check-write transactions (balance
  reservations, interval closing). It also keeps ":memory:" databases alive
  for the lifetime of the handle.

  Every query issued while a transaction is open must go through that
  transaction; a query on the outer handle would wait for the connection
  forever.

WAL MODE:
  File databases are opened with WAL and a busy timeout so that another
  process (a CLI, a backup) can read while the server writes.

USAGE:
  db, err := sqlite.New("./data/hr.db")
  gate, err := tenant.NewGate(db, tenant.WithErrorTranslator(sqlite.Translate))

SEE ALSO:
  - store/schema.go: tables and invariant indexes
  - store/postgres: production driver
*/
package sqlite

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/store"
)

// New opens (creating if needed) the database at dbPath and migrates it.
// Use ":memory:" for a private in-memory database.
func New(dbPath string) (*gorm.DB, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := store.Migrate(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Translate maps lock contention and uniqueness violations onto
// generic.ErrConcurrencyConflict. Anything else is returned unchanged.
func Translate(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", generic.ErrConcurrencyConflict, err)
	case se.ExtendedCode == sqlite3.ErrConstraintUnique, se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", generic.ErrConcurrencyConflict, err)
	}
	return err
}
