package store

import "testing"

func TestCompareNumericWidening(t *testing.T) {
	cmp, ok := Compare(Int32(5), Uint64(5))
	if !ok || cmp != 0 {
		t.Fatalf("Compare(Int32(5), Uint64(5)) = %d, %v, want 0, true", cmp, ok)
	}
	cmp, ok = Compare(Int32(3), Uint64(5))
	if !ok || cmp >= 0 {
		t.Fatalf("Compare(Int32(3), Uint64(5)) = %d, %v, want <0, true", cmp, ok)
	}
}

func TestCompareTextMismatchedTagsUndefined(t *testing.T) {
	if _, ok := Compare(Text("a"), Enum("a")); ok {
		t.Fatal("Compare(Text, Enum) should be undefined even with equal strings")
	}
}

func TestCompareTextOrdering(t *testing.T) {
	cmp, ok := Compare(Text("a"), Text("b"))
	if !ok || cmp >= 0 {
		t.Fatalf("Compare(a, b) = %d, %v, want <0, true", cmp, ok)
	}
}

func TestAsInt64Widening(t *testing.T) {
	v := Uint32(42)
	n, ok := v.AsInt64()
	if !ok || n != 42 {
		t.Fatalf("AsInt64() = %d, %v, want 42, true", n, ok)
	}
}
