package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/johanix/keyenforcer/internal/store"
)

func buildFrom(table string, joins []store.Join) string {
	var b strings.Builder
	b.WriteString(table)
	for _, j := range joins {
		onSQL, _ := store.Compile(j.On, store.QuestionMark)
		b.WriteString(" JOIN ")
		b.WriteString(j.Table)
		b.WriteString(" ON ")
		b.WriteString(onSQL)
	}
	return b.String()
}

func tagFor(table, column string) store.Tag {
	if cols, ok := columnTags[table]; ok {
		if tag, ok := cols[column]; ok {
			return tag
		}
	}
	return store.TagText
}

func scanRow(rows *sql.Rows, table string) (store.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(store.Row, len(cols))
	for i, col := range cols {
		out[col] = wrapValue(tagFor(table, col), raw[i])
	}
	return out, nil
}

func wrapValue(tag store.Tag, raw any) store.Value {
	if raw == nil {
		return store.Empty()
	}
	switch tag {
	case store.TagInt64:
		return store.Int64(toInt64(raw))
	case store.TagUint32:
		return store.Uint32(uint32(toInt64(raw)))
	case store.TagInt32:
		return store.Int32(int32(toInt64(raw)))
	case store.TagUint64:
		return store.Uint64(uint64(toInt64(raw)))
	case store.TagEnum:
		return store.Enum(toText(raw))
	case store.TagPrimaryKey:
		return store.PrimaryKey(toText(raw))
	default:
		return store.Text(toText(raw))
	}
}

func toInt64(raw any) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case []byte:
		var n int64
		fmt.Sscanf(string(v), "%d", &n)
		return n
	default:
		return 0
	}
}

func toText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func readRows(ctx context.Context, q querier, logf func(string, ...any), table string, joins []store.Join, clauses store.Clause, order []store.Order) (store.RowIterator, error) {
	whereSQL, args := store.Compile(clauses, store.QuestionMark)
	sqlStr := "SELECT * FROM " + buildFrom(table, joins) + " WHERE " + whereSQL
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, o := range order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = o.Field + " " + dir
		}
		sqlStr += " ORDER BY " + strings.Join(parts, ", ")
	}
	logf("sqlitestore: read: %s %v", sqlStr, args)
	driverArgs := toDriverArgs(args)
	rows, err := q.QueryContext(ctx, sqlStr, driverArgs...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: read %s: %w", table, err)
	}
	defer rows.Close()
	var out []store.Row
	for rows.Next() {
		row, err := scanRow(rows, table)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: read %s: %w", table, err)
	}
	return store.NewSliceIterator(out, nil), nil
}

func countRows(ctx context.Context, q querier, logf func(string, ...any), table string, joins []store.Join, clauses store.Clause) (int64, error) {
	whereSQL, args := store.Compile(clauses, store.QuestionMark)
	sqlStr := "SELECT COUNT(*) FROM " + buildFrom(table, joins) + " WHERE " + whereSQL
	logf("sqlitestore: count: %s %v", sqlStr, args)
	r := q.QueryRowContext(ctx, sqlStr, toDriverArgs(args)...)
	var n int64
	if err := r.Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: count %s: %w", table, err)
	}
	return n, nil
}

func createRow(ctx context.Context, q querier, logf func(string, ...any), table string, fields []string, values []store.Value) (string, error) {
	id := newID()
	allFields := append([]string{"id", "rev"}, fields...)
	allValues := append([]store.Value{store.PrimaryKey(id), store.Int64(1)}, values...)
	placeholders := strings.Repeat("?, ", len(allFields))
	placeholders = strings.TrimSuffix(placeholders, ", ")
	sqlStr := "INSERT INTO " + table + " (" + strings.Join(allFields, ", ") + ") VALUES (" + placeholders + ")"
	logf("sqlitestore: create: %s %v", sqlStr, allValues)
	if _, err := q.ExecContext(ctx, sqlStr, toDriverArgs(allValues)...); err != nil {
		return "", fmt.Errorf("sqlitestore: create %s: %w", table, err)
	}
	return id, nil
}

func updateRows(ctx context.Context, q querier, logf func(string, ...any), table string, fields []string, values []store.Value, clauses store.Clause) error {
	setParts := make([]string, len(fields)+1)
	args := make([]store.Value, 0, len(fields)+4)
	for i, f := range fields {
		setParts[i] = f + " = ?"
		args = append(args, values[i])
	}
	setParts[len(fields)] = "rev = rev + 1"
	whereSQL, whereArgs := store.Compile(clauses, store.QuestionMark)
	args = append(args, whereArgs...)
	sqlStr := "UPDATE " + table + " SET " + strings.Join(setParts, ", ") + " WHERE " + whereSQL
	logf("sqlitestore: update: %s %v", sqlStr, args)
	res, err := q.ExecContext(ctx, sqlStr, toDriverArgs(args)...)
	if err != nil {
		return fmt.Errorf("sqlitestore: update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: update %s: %w", table, err)
	}
	if n == 0 {
		return store.ErrStaleRevision
	}
	return nil
}

func deleteRows(ctx context.Context, q querier, logf func(string, ...any), table string, clauses store.Clause) error {
	whereSQL, args := store.Compile(clauses, store.QuestionMark)
	sqlStr := "DELETE FROM " + table + " WHERE " + whereSQL
	logf("sqlitestore: delete: %s %v", sqlStr, args)
	if _, err := q.ExecContext(ctx, sqlStr, toDriverArgs(args)...); err != nil {
		return fmt.Errorf("sqlitestore: delete %s: %w", table, err)
	}
	return nil
}

func toDriverArgs(values []store.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch v.Tag() {
		case store.TagText, store.TagEnum, store.TagPrimaryKey:
			s, _ := v.AsText()
			out[i] = s
		case store.TagEmpty:
			out[i] = nil
		default:
			n, _ := v.AsInt64()
			out[i] = n
		}
	}
	return out
}
