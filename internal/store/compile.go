package store

import (
	"strconv"
	"strings"
)

// Placeholder renders the Nth (1-based) bound parameter for a dialect:
// sqlitestore always returns "?"; pgstore returns "$N".
type Placeholder func(n int) string

// QuestionMark is the sqlite-style placeholder function.
func QuestionMark(int) string { return "?" }

// Dollar is the postgres-style placeholder function.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Compile renders clause into a SQL boolean expression and an ordered list
// of bound Values, using ph to render each placeholder. It is shared by
// both concrete drivers so the clause-AST semantics (spec.md §4.5: "AND/OR,
// nesting, equality/inequality/ordering comparisons, IS NULL") compile
// identically regardless of placeholder syntax.
func Compile(clause Clause, ph Placeholder) (sql string, args []Value) {
	var b strings.Builder
	n := 0
	compileNode(&b, clause, ph, &n, &args)
	return b.String(), args
}

func compileNode(b *strings.Builder, c Clause, ph Placeholder, n *int, args *[]Value) {
	switch c.Op {
	case OpAnd, OpOr:
		if len(c.Children) == 0 {
			b.WriteString("1=1")
			return
		}
		sep := " AND "
		if c.Op == OpOr {
			sep = " OR "
		}
		b.WriteByte('(')
		for i, child := range c.Children {
			if i > 0 {
				b.WriteString(sep)
			}
			compileNode(b, child, ph, n, args)
		}
		b.WriteByte(')')
	case OpIsNull:
		b.WriteString(c.Field)
		b.WriteString(" IS NULL")
	case OpIsNotNull:
		b.WriteString(c.Field)
		b.WriteString(" IS NOT NULL")
	default:
		b.WriteString(c.Field)
		b.WriteString(opToken(c.Op))
		*n++
		b.WriteString(ph(*n))
		*args = append(*args, c.Value)
	}
}

func opToken(op Op) string {
	switch op {
	case OpEq:
		return " = "
	case OpNeq:
		return " != "
	case OpLt:
		return " < "
	case OpLte:
		return " <= "
	case OpGt:
		return " > "
	case OpGte:
		return " >= "
	default:
		return " = "
	}
}
