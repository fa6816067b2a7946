package store

import "testing"

func TestCompileSimpleEq(t *testing.T) {
	sql, args := Compile(Eq("name", Text("example.com")), QuestionMark)
	if sql != "name = ?" {
		t.Fatalf("sql = %q", sql)
	}
	if len(args) != 1 {
		t.Fatalf("args = %v", args)
	}
}

func TestCompileAndOrNesting(t *testing.T) {
	clause := And(
		Eq("role", Enum("KSK")),
		Or(Eq("state", Enum("OMNIPRESENT")), Eq("state", Enum("RUMOURED"))),
	)
	sql, args := Compile(clause, Dollar)
	want := "(role = $1 AND (state = $2 OR state = $3))"
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}
}

func TestCompileIsNull(t *testing.T) {
	sql, args := Compile(IsNull("validityKeyset"), QuestionMark)
	if sql != "validityKeyset IS NULL" {
		t.Fatalf("sql = %q", sql)
	}
	if len(args) != 0 {
		t.Fatalf("args = %v, want none", args)
	}
}

func TestWithRevision(t *testing.T) {
	clause := WithRevision(Eq("id", PrimaryKey("z1")), 4)
	sql, args := Compile(clause, QuestionMark)
	want := "(id = ? AND rev = ?)"
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if len(args) != 2 {
		t.Fatalf("args = %v", args)
	}
}
