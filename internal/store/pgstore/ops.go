package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/johanix/keyenforcer/internal/store"
)

func buildFrom(table string, joins []store.Join) string {
	var b strings.Builder
	b.WriteString(table)
	for _, j := range joins {
		onSQL, _ := store.Compile(j.On, store.Dollar)
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

func scanRow(rows pgx.Rows, table string) (store.Row, error) {
	fields := rows.FieldDescriptions()
	raw, err := rows.Values()
	if err != nil {
		return nil, err
	}
	out := make(store.Row, len(fields))
	for i, f := range fields {
		out[f.Name] = wrapValue(tagFor(table, f.Name), raw[i])
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
	case int32:
		return int64(v)
	case string:
		var n int64
		fmt.Sscanf(v, "%d", &n)
		return n
	default:
		return 0
	}
}

func toText(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

func readRows(ctx context.Context, q querier, logf func(string, ...any), table string, joins []store.Join, clauses store.Clause, order []store.Order) (store.RowIterator, error) {
	whereSQL, args := store.Compile(clauses, store.Dollar)
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
	logf("pgstore: read: %s %v", sqlStr, args)
	rows, err := q.Query(ctx, sqlStr, toDriverArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: read %s: %w", table, err)
	}
	defer rows.Close()
	var out []store.Row
	for rows.Next() {
		row, err := scanRow(rows, table)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: read %s: %w", table, err)
	}
	return store.NewSliceIterator(out, nil), nil
}

func countRows(ctx context.Context, q querier, logf func(string, ...any), table string, joins []store.Join, clauses store.Clause) (int64, error) {
	whereSQL, args := store.Compile(clauses, store.Dollar)
	sqlStr := "SELECT COUNT(*) FROM " + buildFrom(table, joins) + " WHERE " + whereSQL
	logf("pgstore: count: %s %v", sqlStr, args)
	var n int64
	if err := q.QueryRow(ctx, sqlStr, toDriverArgs(args)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgstore: count %s: %w", table, err)
	}
	return n, nil
}

func createRow(ctx context.Context, q querier, logf func(string, ...any), table string, fields []string, values []store.Value) (string, error) {
	id := uuid.NewString()
	allFields := append([]string{"id", "rev"}, fields...)
	allValues := append([]store.Value{store.PrimaryKey(id), store.Int64(1)}, values...)
	placeholders := make([]string, len(allFields))
	for i := range placeholders {
		placeholders[i] = store.Dollar(i + 1)
	}
	sqlStr := "INSERT INTO " + table + " (" + strings.Join(allFields, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	logf("pgstore: create: %s %v", sqlStr, allValues)
	if _, err := q.Exec(ctx, sqlStr, toDriverArgs(allValues)...); err != nil {
		return "", fmt.Errorf("pgstore: create %s: %w", table, err)
	}
	return id, nil
}

func updateRows(ctx context.Context, q querier, logf func(string, ...any), table string, fields []string, values []store.Value, clauses store.Clause) error {
	setParts := make([]string, len(fields)+1)
	args := make([]store.Value, 0, len(fields)+4)
	for i, f := range fields {
		setParts[i] = fmt.Sprintf("%s = %s", f, store.Dollar(i+1))
		args = append(args, values[i])
	}
	setParts[len(fields)] = "rev = rev + 1"

	whereSQL, whereArgs := compileFrom(clauses, len(fields))
	args = append(args, whereArgs...)

	sqlStr := "UPDATE " + table + " SET " + strings.Join(setParts, ", ") + " WHERE " + whereSQL
	logf("pgstore: update: %s %v", sqlStr, args)
	tag, err := q.Exec(ctx, sqlStr, toDriverArgs(args)...)
	if err != nil {
		return fmt.Errorf("pgstore: update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrStaleRevision
	}
	return nil
}

func deleteRows(ctx context.Context, q querier, logf func(string, ...any), table string, clauses store.Clause) error {
	whereSQL, args := store.Compile(clauses, store.Dollar)
	sqlStr := "DELETE FROM " + table + " WHERE " + whereSQL
	logf("pgstore: delete: %s %v", sqlStr, args)
	if _, err := q.Exec(ctx, sqlStr, toDriverArgs(args)...); err != nil {
		return fmt.Errorf("pgstore: delete %s: %w", table, err)
	}
	return nil
}

// compileFrom compiles clause starting its placeholder numbering at
// offset+1, since updateRows already consumed $1..$offset for the SET list.
func compileFrom(clause store.Clause, offset int) (string, []store.Value) {
	return store.Compile(clause, func(n int) string { return store.Dollar(n + offset) })
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
