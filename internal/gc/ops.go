package gc

import (
	"fmt"
	"strconv"

	"ajj/internal/value"
)

// Truthy implements boolean coercion for gc values (the VM's BOOL, NOT,
// AND, OR and jump family use internal/builtin's Truthy): None and false are falsy, numbers are
// falsy only at zero, strings are falsy only when empty, and any other
// object defers to its own Empty slot (defaulting to truthy when the slot
// is unset, matching "non-container host objects are always truthy").
func Truthy(v value.Value) bool {
	switch v.Kind {
	case value.KindNone:
		return false
	case value.KindBool:
		return v.Bool
	case value.KindNumber:
		return v.Num != 0
	case value.KindIterator:
		return true
	case value.KindString:
		return len(StringOf(v)) > 0
	case value.KindObject:
		o := ObjectOf(v)
		if o.Slots != nil && o.Slots.Empty != nil {
			return !o.Slots.Empty(o)
		}
		return true
	default:
		return false
	}
}

// Display renders v as text, with None as the empty string. The VM's PRINT
// uses internal/builtin's Display instead, which renders None as "none".
func Display(v value.Value) string {
	switch v.Kind {
	case value.KindNone:
		return ""
	case value.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case value.KindNumber:
		return formatNumber(v.Num)
	case value.KindIterator:
		return fmt.Sprintf("<iterator %d>", v.Iter)
	case value.KindString:
		return StringOf(v)
	case value.KindObject:
		o := ObjectOf(v)
		if o.Slots != nil && o.Slots.Display != nil {
			return o.Slots.Display(o)
		}
		return fmt.Sprintf("<%s object>", o.Name)
	default:
		return ""
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Equal implements structural equality for EQ/NE/IN: primitives compare by
// value, references compare by identity unless the object overrides Eq.
func Equal(a, b value.Value) bool {
	if a.Kind != b.Kind {
		if a.Kind == value.KindNumber && b.Kind == value.KindNumber {
			return a.Num == b.Num
		}
		return false
	}
	switch a.Kind {
	case value.KindNone:
		return true
	case value.KindBool:
		return a.Bool == b.Bool
	case value.KindNumber:
		return a.Num == b.Num
	case value.KindIterator:
		return a.Iter == b.Iter
	case value.KindString:
		return StringOf(a) == StringOf(b)
	case value.KindObject:
		oa := ObjectOf(a)
		if oa.Slots != nil && oa.Slots.Eq != nil {
			return oa.Slots.Eq(oa, b)
		}
		return oa == ObjectOf(b)
	default:
		return false
	}
}

// Less implements LT/LE/GT/GE for orderable kinds (numbers, strings, and
// objects that set Slots.Lt). Returns an error for kinds with no ordering.
func Less(a, b value.Value) (bool, error) {
	if a.Kind == value.KindNumber && b.Kind == value.KindNumber {
		return a.Num < b.Num, nil
	}
	if a.Kind == value.KindString && b.Kind == value.KindString {
		return StringOf(a) < StringOf(b), nil
	}
	if a.Kind == value.KindObject {
		o := ObjectOf(a)
		if o.Slots != nil && o.Slots.Lt != nil {
			return o.Slots.Lt(o, b), nil
		}
	}
	return false, fmt.Errorf("gc: %s is not orderable against %s", a.TypeName(), b.TypeName())
}

// Len implements the LEN instruction: string length or a Slots.Len object.
func Len(v value.Value) (int, error) {
	switch v.Kind {
	case value.KindString:
		return len(StringOf(v)), nil
	case value.KindObject:
		o := ObjectOf(v)
		if o.Slots != nil && o.Slots.Len != nil {
			return o.Slots.Len(o), nil
		}
	}
	return 0, fmt.Errorf("gc: %s has no length", v.TypeName())
}
