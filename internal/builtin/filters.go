package builtin

import (
	"fmt"
	"math"
	"os/exec"
	"strings"

	"ajj/internal/gc"
	"ajj/internal/value"
)

func filterAbs(scope *gc.Scope, args []value.Value) (value.Value, error) {
	n, err := asNumber(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return value.Number(math.Abs(n)), nil
}

// filterAttr implements attr(v, k): dynamic attribute/key lookup, the
// filter form of `v[k]`/`v.k`.
func filterAttr(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	key := arg(args, 1)
	if v.Kind != value.KindObject {
		return value.Value{}, fmt.Errorf("attr() requires an object, got %s", v.TypeName())
	}
	o := gc.ObjectOf(v)
	if o.Slots == nil || o.Slots.AttrGet == nil {
		return value.Value{}, fmt.Errorf("%s has no attributes", v.TypeName())
	}
	return o.Slots.AttrGet(o, key)
}

func filterDefault(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	if v.Kind == value.KindNone {
		return arg(args, 1), nil
	}
	return v, nil
}

func runeSlice(s string, lo, hi int) string {
	r := []rune(s)
	n := len(r)
	if lo < 0 {
		lo += n
	}
	if hi < 0 {
		hi += n
	}
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo >= hi {
		return ""
	}
	return string(r[lo:hi])
}

func filterSlice(scope *gc.Scope, args []value.Value) (value.Value, error) {
	s, err := asString(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	lo, err := asNumber(arg(args, 1))
	if err != nil {
		return value.Value{}, err
	}
	hi, err := asNumber(arg(args, 2))
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewDynamicString(scope, runeSlice(s, int(lo), int(hi))), nil
}

func filterBslice(scope *gc.Scope, args []value.Value) (value.Value, error) {
	s, err := asString(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	lo, err := asNumber(arg(args, 1))
	if err != nil {
		return value.Value{}, err
	}
	hi, err := asNumber(arg(args, 2))
	if err != nil {
		return value.Value{}, err
	}
	n := len(s)
	l, h := int(lo), int(hi)
	if l < 0 {
		l += n
	}
	if h < 0 {
		h += n
	}
	if l < 0 {
		l = 0
	}
	if h > n {
		h = n
	}
	if l >= h {
		return gc.NewDynamicString(scope, ""), nil
	}
	return gc.NewDynamicString(scope, s[l:h]), nil
}

func filterUpper(scope *gc.Scope, args []value.Value) (value.Value, error) {
	s, err := asString(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewDynamicString(scope, strings.ToUpper(s)), nil
}

func filterLower(scope *gc.Scope, args []value.Value) (value.Value, error) {
	s, err := asString(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewDynamicString(scope, strings.ToLower(s)), nil
}

func filterFloor(scope *gc.Scope, args []value.Value) (value.Value, error) {
	n, err := asNumber(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return value.Number(math.Floor(n)), nil
}

func filterCeil(scope *gc.Scope, args []value.Value) (value.Value, error) {
	n, err := asNumber(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return value.Number(math.Ceil(n)), nil
}

// filterAssertExpr implements assert_expr(v): passes v through unchanged if
// truthy, otherwise raises a runtime error.
func filterAssertExpr(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	if !Truthy(v) {
		return value.Value{}, fmt.Errorf("assertion failed: %s", Display(v))
	}
	return v, nil
}

func filterTypeof(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	if v.Kind == value.KindObject {
		return gc.NewDynamicString(scope, gc.ObjectOf(v).Name), nil
	}
	return gc.NewDynamicString(scope, v.TypeName()), nil
}

// filterShell runs the piped string as a shell command and returns its
// trimmed stdout; host embedders that consider this unsafe should simply
// not register it (§6 host registration is opt-in per function).
func filterShell(scope *gc.Scope, args []value.Value) (value.Value, error) {
	cmdline, err := asString(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	out, err := exec.Command("sh", "-c", cmdline).Output()
	if err != nil {
		return value.Value{}, fmt.Errorf("shell: %w", err)
	}
	return gc.NewDynamicString(scope, strings.TrimRight(string(out), "\n")), nil
}

func filterLstrip(scope *gc.Scope, args []value.Value) (value.Value, error) {
	s, err := asString(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewDynamicString(scope, strings.TrimLeft(s, " \t\r\n")), nil
}

func filterRstrip(scope *gc.Scope, args []value.Value) (value.Value, error) {
	s, err := asString(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewDynamicString(scope, strings.TrimRight(s, " \t\r\n")), nil
}
