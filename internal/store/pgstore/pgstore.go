package pgstore

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johanix/keyenforcer/internal/store"
)

// DB is the postgres-backed store.Store. Connection pooling follows
// poyrazK-cloudDNS's use of pgxpool.New; statement logging follows the
// teacher's logged-Exec convention carried over from sqlitestore.
type DB struct {
	pool   *pgxpool.Pool
	Logger *log.Logger
}

// Open connects to dsn (a postgres connection string) and ensures the
// schema exists.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	d := &DB{pool: pool, Logger: logger}
	if err := d.createTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) createTables(ctx context.Context) error {
	for _, stmt := range createStatements {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: create schema: %w", err)
		}
	}
	var count int64
	if err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+TableDatabaseVersion).Scan(&count); err != nil {
		return fmt.Errorf("pgstore: read schema version: %w", err)
	}
	if count == 0 {
		if _, err := d.pool.Exec(ctx, "INSERT INTO "+TableDatabaseVersion+" (version) VALUES ($1)", schemaVersion); err != nil {
			return fmt.Errorf("pgstore: seed schema version: %w", err)
		}
	}
	return nil
}

func (d *DB) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

func (d *DB) Begin(ctx context.Context) (store.Tx, error) {
	pgxTx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin: %w", err)
	}
	return &tx{tx: pgxTx, logf: d.logf}, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (d *DB) Read(ctx context.Context, table string, joins []store.Join, clauses store.Clause, order []store.Order) (store.RowIterator, error) {
	return readRows(ctx, d.pool, d.logf, table, joins, clauses, order)
}

func (d *DB) Count(ctx context.Context, table string, joins []store.Join, clauses store.Clause) (int64, error) {
	return countRows(ctx, d.pool, d.logf, table, joins, clauses)
}

func (d *DB) Create(ctx context.Context, table string, fields []string, values []store.Value) (string, error) {
	return createRow(ctx, d.pool, d.logf, table, fields, values)
}

func (d *DB) Update(ctx context.Context, table string, fields []string, values []store.Value, clauses store.Clause) error {
	return updateRows(ctx, d.pool, d.logf, table, fields, values, clauses)
}

func (d *DB) Delete(ctx context.Context, table string, clauses store.Clause) error {
	return deleteRows(ctx, d.pool, d.logf, table, clauses)
}
