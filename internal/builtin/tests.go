package builtin

import (
	"ajj/internal/gc"
	"ajj/internal/value"
)

func testTrue(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	return value.Boolean(v.Kind == value.KindBool && v.Bool), nil
}

func testFalse(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	return value.Boolean(v.Kind == value.KindBool && !v.Bool), nil
}

func testNone(scope *gc.Scope, args []value.Value) (value.Value, error) {
	return value.Boolean(arg(args, 0).Kind == value.KindNone), nil
}

// testDefined treats `none` as "undefined" too, matching how lookups of
// unbound names resolve to None rather than raising.
func testDefined(scope *gc.Scope, args []value.Value) (value.Value, error) {
	return value.Boolean(arg(args, 0).Kind != value.KindNone), nil
}

func testDivisableby(scope *gc.Scope, args []value.Value) (value.Value, error) {
	n, err := asNumber(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	d, err := asNumber(arg(args, 1))
	if err != nil {
		return value.Value{}, err
	}
	if d == 0 {
		return value.Boolean(false), nil
	}
	return value.Boolean(int64(n)%int64(d) == 0), nil
}

func testEven(scope *gc.Scope, args []value.Value) (value.Value, error) {
	n, err := asNumber(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return value.Boolean(int64(n)%2 == 0), nil
}

func testOdd(scope *gc.Scope, args []value.Value) (value.Value, error) {
	n, err := asNumber(arg(args, 0))
	if err != nil {
		return value.Value{}, err
	}
	return value.Boolean(int64(n)%2 != 0), nil
}

func testIterable(scope *gc.Scope, args []value.Value) (value.Value, error) {
	return value.Boolean(Iterable(arg(args, 0))), nil
}

func testMapping(scope *gc.Scope, args []value.Value) (value.Value, error) {
	_, _, ok := AsDict(arg(args, 0))
	return value.Boolean(ok), nil
}

func testNumber(scope *gc.Scope, args []value.Value) (value.Value, error) {
	return value.Boolean(arg(args, 0).Kind == value.KindNumber), nil
}

func testObject(scope *gc.Scope, args []value.Value) (value.Value, error) {
	return value.Boolean(arg(args, 0).Kind == value.KindObject), nil
}

func testSameas(scope *gc.Scope, args []value.Value) (value.Value, error) {
	a, b := arg(args, 0), arg(args, 1)
	if a.Kind != value.KindObject || b.Kind != value.KindObject {
		return value.Boolean(false), nil
	}
	return value.Boolean(gc.ObjectOf(a) == gc.ObjectOf(b)), nil
}

func testString(scope *gc.Scope, args []value.Value) (value.Value, error) {
	return value.Boolean(arg(args, 0).Kind == value.KindString), nil
}
