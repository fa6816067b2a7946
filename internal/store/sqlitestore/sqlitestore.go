package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
	"github.com/johanix/keyenforcer/internal/store"
)

// DB is the sqlite-backed store.Store, grounded on tdns/db.go's NewKeyDB:
// one *sql.DB, tables created on open, every statement logged through the
// standard library logger in Logger when it is non-nil.
type DB struct {
	db     *sql.DB
	Logger *log.Logger
}

// Open creates (or reuses) the sqlite file at path and ensures the schema
// exists, mirroring tdns/db.go's dbSetupTables call inside NewKeyDB.
func Open(ctx context.Context, path string, logger *log.Logger) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", path, err)
	}
	// A single connection avoids sqlite's "database is locked" writer
	// contention and, for ":memory:" paths, keeps every caller on the same
	// in-memory database instead of each getting its own.
	sqldb.SetMaxOpenConns(1)
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("sqlitestore: ping %q: %w", path, err)
	}
	d := &DB{db: sqldb, Logger: logger}
	if err := d.createTables(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) createTables(ctx context.Context) error {
	for _, stmt := range createStatements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: create schema: %w", err)
		}
	}
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+TableDatabaseVersion).Scan(&count); err != nil {
		return fmt.Errorf("sqlitestore: read schema version: %w", err)
	}
	if count == 0 {
		if _, err := d.db.ExecContext(ctx, "INSERT INTO "+TableDatabaseVersion+" (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("sqlitestore: seed schema version: %w", err)
		}
	}
	return nil
}

func (d *DB) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Begin(ctx context.Context) (store.Tx, error) {
	sqltx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: begin: %w", err)
	}
	return &tx{tx: sqltx, logf: d.logf}, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting Read/Count
// share one implementation across DB (autocommit) and tx (explicit).
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) Read(ctx context.Context, table string, joins []store.Join, clauses store.Clause, order []store.Order) (store.RowIterator, error) {
	return readRows(ctx, d.db, d.logf, table, joins, clauses, order)
}

func (d *DB) Count(ctx context.Context, table string, joins []store.Join, clauses store.Clause) (int64, error) {
	return countRows(ctx, d.db, d.logf, table, joins, clauses)
}

func (d *DB) Create(ctx context.Context, table string, fields []string, values []store.Value) (string, error) {
	return createRow(ctx, d.db, d.logf, table, fields, values)
}

func (d *DB) Update(ctx context.Context, table string, fields []string, values []store.Value, clauses store.Clause) error {
	return updateRows(ctx, d.db, d.logf, table, fields, values, clauses)
}

func (d *DB) Delete(ctx context.Context, table string, clauses store.Clause) error {
	return deleteRows(ctx, d.db, d.logf, table, clauses)
}

func newID() string { return uuid.NewString() }
