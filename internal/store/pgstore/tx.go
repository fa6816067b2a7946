package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/johanix/keyenforcer/internal/store"
)

type tx struct {
	tx   pgx.Tx
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
	if err := t.tx.Commit(context.Background()); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback() error {
	if err := t.tx.Rollback(context.Background()); err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("pgstore: rollback: %w", err)
	}
	return nil
}
