// Package store defines the abstract, transactional key-value-of-rows
// collaborator the core consumes (spec.md §4.5). It deliberately knows
// nothing about SQL, sqlite, or postgres — those live in the sqlitestore
// and pgstore sub-packages, which both implement Store.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrStaleRevision is returned by Update when no row matches its clauses,
// e.g. because the row's current revision no longer matches the caller's
// expectation (spec.md §3: "mismatch ⇒ update fails with 'stale
// revision'"). Delete removes whatever rows match and does not check how
// many did, so it never returns ErrStaleRevision.
var ErrStaleRevision = errors.New("store: stale revision")

// ErrNotFound is returned when a single-row read expects exactly one row
// and finds none.
var ErrNotFound = errors.New("store: not found")

// Row is one returned record: field name -> tagged Value.
type Row map[string]Value

// Join describes a table join a Read needs to satisfy its clauses, e.g.
// joining "keyState" to "keyData" on keyDataId = id.
type Join struct {
	Table string
	On    Clause
}

// Order requests result ordering on a field.
type Order struct {
	Field string
	Desc  bool
}

// Store is the abstract persistent collaborator of spec.md §4.5.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	Read(ctx context.Context, table string, joins []Join, clauses Clause, order []Order) (RowIterator, error)
	Count(ctx context.Context, table string, joins []Join, clauses Clause) (int64, error)
	Create(ctx context.Context, table string, fields []string, values []Value) (id string, err error)
	Update(ctx context.Context, table string, fields []string, values []Value, clauses Clause) error
	Delete(ctx context.Context, table string, clauses Clause) error

	Close() error
}

// Tx is a transaction-scoped Store: every method is identical in shape to
// Store's, but all calls within one Tx are serializable/snapshot-isolated
// against each other per spec.md §4.5.
type Tx interface {
	Read(ctx context.Context, table string, joins []Join, clauses Clause, order []Order) (RowIterator, error)
	Count(ctx context.Context, table string, joins []Join, clauses Clause) (int64, error)
	Create(ctx context.Context, table string, fields []string, values []Value) (id string, err error)
	Update(ctx context.Context, table string, fields []string, values []Value, clauses Clause) error
	Delete(ctx context.Context, table string, clauses Clause) error

	Commit() error
	Rollback() error
}

// RowIterator walks a Read result set.
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// sliceIterator is the trivial in-memory RowIterator both concrete drivers
// use once they've materialized their query results; query execution
// itself differs per backend, but buffering the result as a slice keeps the
// two drivers' Read implementations symmetric.
type sliceIterator struct {
	rows []Row
	pos  int
	err  error
}

func NewSliceIterator(rows []Row, err error) RowIterator {
	return &sliceIterator{rows: rows, err: err}
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Row() Row {
	if it.pos == 0 || it.pos > len(it.rows) {
		return nil
	}
	return it.rows[it.pos-1]
}

func (it *sliceIterator) Err() error   { return it.err }
func (it *sliceIterator) Close() error { return nil }

// CreateRow is a convenience used by callers (internal/model adapters) that
// want a single Row instead of parallel field/value slices.
func CreateRow(fields []string, values []Value) Row {
	if len(fields) != len(values) {
		panic(fmt.Sprintf("store: CreateRow field/value length mismatch: %d vs %d", len(fields), len(values)))
	}
	r := make(Row, len(fields))
	for i, f := range fields {
		r[f] = values[i]
	}
	return r
}
