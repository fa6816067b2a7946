package store

import "fmt"

// Tag identifies the type carried by a Value, per spec.md §4.5 "Value
// typing": "All values carry a tag ∈ {empty, int32, uint32, int64, uint64,
// text, enum, primary-key}."
type Tag int

const (
	TagEmpty Tag = iota
	TagInt32
	TagUint32
	TagInt64
	TagUint64
	TagText
	TagEnum
	TagPrimaryKey
)

func (t Tag) numeric() bool {
	switch t {
	case TagInt32, TagUint32, TagInt64, TagUint64:
		return true
	}
	return false
}

// Value is a tagged union mirroring the original db_value_t
// (_examples/original_source/enforcer-ng/src/db/db_value.c): every field
// read from or written to the store carries an explicit tag so comparisons
// across backends behave identically regardless of the native column type.
type Value struct {
	tag   Tag
	i64   int64
	u64   uint64
	text  string
}

func Empty() Value                 { return Value{tag: TagEmpty} }
func Int32(v int32) Value          { return Value{tag: TagInt32, i64: int64(v)} }
func Uint32(v uint32) Value        { return Value{tag: TagUint32, u64: uint64(v)} }
func Int64(v int64) Value          { return Value{tag: TagInt64, i64: v} }
func Uint64(v uint64) Value        { return Value{tag: TagUint64, u64: v} }
func Text(v string) Value          { return Value{tag: TagText, text: v} }
func Enum(v string) Value          { return Value{tag: TagEnum, text: v} }
func PrimaryKey(v string) Value    { return Value{tag: TagPrimaryKey, text: v} }

func (v Value) Tag() Tag { return v.tag }

func (v Value) AsText() (string, bool) {
	if v.tag == TagText || v.tag == TagEnum || v.tag == TagPrimaryKey {
		return v.text, true
	}
	return "", false
}

// AsInt64 widens any numeric tag to a signed 64-bit value. This is lossy
// for very large uint64 values, matching the "widened to the larger
// signedness-preserving type" rule of spec.md §4.5 as closely as Go's type
// system allows without a bignum type.
func (v Value) AsInt64() (int64, bool) {
	switch v.tag {
	case TagInt32, TagInt64:
		return v.i64, true
	case TagUint32, TagUint64:
		return int64(v.u64), true
	}
	return 0, false
}

// Compare implements the cross-tag comparison rule of spec.md §4.5:
// "Comparisons across differing numeric tags are widened to the larger
// signedness-preserving type; comparisons across text/number/enum mixes
// are defined only within matching tag." ok is false for an undefined
// (mismatched-tag, non-numeric) comparison.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.tag.numeric() && b.tag.numeric() {
		ai, _ := a.AsInt64()
		bi, _ := b.AsInt64()
		switch {
		case ai < bi:
			return -1, true
		case ai > bi:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.tag != b.tag {
		return 0, false
	}
	switch a.tag {
	case TagText, TagEnum, TagPrimaryKey:
		as, _ := a.AsText()
		bs, _ := b.AsText()
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	case TagEmpty:
		return 0, true
	}
	return 0, false
}

func (v Value) String() string {
	switch v.tag {
	case TagEmpty:
		return "<empty>"
	case TagInt32, TagInt64:
		return fmt.Sprintf("%d", v.i64)
	case TagUint32, TagUint64:
		return fmt.Sprintf("%d", v.u64)
	case TagText:
		return v.text
	case TagEnum:
		return v.text
	case TagPrimaryKey:
		return v.text
	default:
		return "<unknown>"
	}
}
