package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/johanix/keyenforcer/internal/store"
)

// tx wraps a *sql.Tx, mirroring tdns/db.go's Tx: every operation funnels
// through the same logged Exec/Query helpers the autocommit path uses.
type tx struct {
	tx   *sql.Tx
	logf func(string, ...any)
}

func (t *tx) Read(ctx context.Context, table string, joins []store.Join, clauses store.Clause, order []store.Order) (store.RowIterator, error) {
	return readRows(ctx, t.tx, t.logf, table, joins, clauses, order)
}

func (t *tx) Count(ctx context.Context, table string, joins []store.Join, clauses store.Clause) (int64, error) {
	return countRows(ctx, t.tx, t.logf, table, joins, clauses)
}

func (t *tx) Create(ctx context.Context, table string, fields []string, values []store.Value) (string, error) {
	return createRow(ctx, t.tx, t.logf, table, fields, values)
}

func (t *tx) Update(ctx context.Context, table string, fields []string, values []store.Value, clauses store.Clause) error {
	return updateRows(ctx, t.tx, t.logf, table, fields, values, clauses)
}

func (t *tx) Delete(ctx context.Context, table string, clauses store.Clause) error {
	return deleteRows(ctx, t.tx, t.logf, table, clauses)
}

func (t *tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("sqlitestore: rollback: %w", err)
	}
	return nil
}
