// Package builtin implements the engine's built-in classes (list, dict,
// xrange, loop context, cycler) and the registered functions, filters, and
// tests (§4.7), all built on internal/gc's Slots vtable rather than a Go
// type switch, matching how original_source/src/object.c gives each kind
// its own func_table.
package builtin

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"ajj/internal/gc"
	"ajj/internal/value"
)

// Func is the calling convention for every registered function, filter, and
// test: filters/tests receive their subject as args[0] (the piped or
// is-tested value), functions receive a plain argument list. scope is the
// caller's current GC scope, used by anything that allocates (string
// filters, list/dict constructors).
type Func func(scope *gc.Scope, args []value.Value) (value.Value, error)

// Display renders v the way `print`/string-interpolation does: primitives
// in their natural text form, strings literally, and objects through their
// own Slots.Display (list/dict/xrange render their contents recursively).
func Display(v value.Value) string {
	switch v.Kind {
	case value.KindNone:
		return "none"
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
		return gc.StringOf(v)
	case value.KindObject:
		o := gc.ObjectOf(v)
		if o.Slots != nil && o.Slots.Display != nil {
			return o.Slots.Display(o)
		}
		return "<" + o.Name + ">"
	}
	return ""
}

func formatNumber(n float64) string {
	if math.Trunc(n) == n && !math.IsInf(n, 0) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Truthy implements Python-style truthiness (§4.6): empty containers, zero,
// none, and false are all falsy.
func Truthy(v value.Value) bool {
	switch v.Kind {
	case value.KindNone:
		return false
	case value.KindBool:
		return v.Bool
	case value.KindNumber:
		return v.Num != 0
	case value.KindString:
		return gc.StringOf(v) != ""
	case value.KindObject:
		o := gc.ObjectOf(v)
		if o.Slots != nil && o.Slots.Empty != nil {
			return !o.Slots.Empty(o)
		}
		return true
	case value.KindIterator:
		return true
	}
	return false
}

// Eq implements `==`/`!=` (§4.6): type-mismatched equality is false rather
// than an error; lists/dicts compare by length then element/entry; xrange
// by length.
func Eq(a, b value.Value) bool {
	if a.Kind != b.Kind {
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
		return gc.StringOf(a) == gc.StringOf(b)
	case value.KindObject:
		oa, ob := gc.ObjectOf(a), gc.ObjectOf(b)
		if oa == ob {
			return true
		}
		if oa.Slots != nil && oa.Slots.Eq != nil {
			return oa.Slots.Eq(oa, b)
		}
		return false
	}
	return false
}

// Less implements `<`/`>`/`<=`/`>=` for the type pairs §4.6 defines an
// ordering for (numbers, strings, and same-kind objects exposing Lt);
// everything else is a runtime-type error.
func Less(a, b value.Value) (bool, error) {
	if a.Kind != b.Kind {
		return false, fmt.Errorf("'<' not supported between %s and %s", a.TypeName(), b.TypeName())
	}
	switch a.Kind {
	case value.KindNumber:
		return a.Num < b.Num, nil
	case value.KindString:
		return gc.StringOf(a) < gc.StringOf(b), nil
	case value.KindObject:
		oa := gc.ObjectOf(a)
		if oa.Slots != nil && oa.Slots.Lt != nil {
			return oa.Slots.Lt(oa, b), nil
		}
	}
	return false, fmt.Errorf("'<' not supported for %s", a.TypeName())
}

// Len reports the container length of v (§4.6 LEN), or an error for values
// with no notion of length.
func Len(v value.Value) (int, error) {
	switch v.Kind {
	case value.KindString:
		return len([]rune(gc.StringOf(v))), nil
	case value.KindObject:
		o := gc.ObjectOf(v)
		if o.Slots != nil && o.Slots.Len != nil {
			return o.Slots.Len(o), nil
		}
	}
	return 0, fmt.Errorf("object of type %s has no len()", v.TypeName())
}

// Iterable reports whether v supports ITER_START/HAS/MOVE/DEREF.
func Iterable(v value.Value) bool {
	if v.Kind == value.KindString {
		return true
	}
	if v.Kind != value.KindObject {
		return false
	}
	return gc.ObjectOf(v).Slots.Iterable()
}

// asNumber coerces v to float64, erroring for anything but a number.
func asNumber(v value.Value) (float64, error) {
	if v.Kind != value.KindNumber {
		return 0, fmt.Errorf("expected a number, got %s", v.TypeName())
	}
	return v.Num, nil
}

func asString(v value.Value) (string, error) {
	if v.Kind != value.KindString {
		return "", fmt.Errorf("expected a string, got %s", v.TypeName())
	}
	return gc.StringOf(v), nil
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.None()
}

func sortedKeys(m map[string]value.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
