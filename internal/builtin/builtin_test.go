package builtin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/builtin"
	"ajj/internal/gc"
	"ajj/internal/value"
)

func call(t *testing.T, table map[string]builtin.Func, name string, scope *gc.Scope, args ...value.Value) value.Value {
	t.Helper()
	fn, ok := table[name]
	require.True(t, ok, "missing %q", name)
	v, err := fn(scope, args)
	require.NoError(t, err)
	return v
}

func TestDisplayPrimitives(t *testing.T) {
	assert.Equal(t, "none", builtin.Display(value.None()))
	assert.Equal(t, "true", builtin.Display(value.Boolean(true)))
	assert.Equal(t, "false", builtin.Display(value.Boolean(false)))
	assert.Equal(t, "3", builtin.Display(value.Number(3)))
	assert.Equal(t, "3.5", builtin.Display(value.Number(3.5)))
}

func TestTruthy(t *testing.T) {
	assert.False(t, builtin.Truthy(value.None()))
	assert.False(t, builtin.Truthy(value.Number(0)))
	assert.True(t, builtin.Truthy(value.Number(1)))
	assert.False(t, builtin.Truthy(value.Boolean(false)))
	assert.True(t, builtin.Truthy(gc.NewConstString("x")))
	assert.False(t, builtin.Truthy(gc.NewConstString("")))
}

func TestFiltersUpperLowerAbsFloorCeil(t *testing.T) {
	scope := gc.NewRootScope()
	assert.Equal(t, "HELLO", gc.StringOf(call(t, builtin.Filters, "upper", scope, gc.NewConstString("hello"))))
	assert.Equal(t, "hello", gc.StringOf(call(t, builtin.Filters, "lower", scope, gc.NewConstString("HELLO"))))
	assert.Equal(t, value.Number(3), call(t, builtin.Filters, "abs", scope, value.Number(-3)))
	assert.Equal(t, value.Number(2), call(t, builtin.Filters, "floor", scope, value.Number(2.9)))
	assert.Equal(t, value.Number(3), call(t, builtin.Filters, "ceil", scope, value.Number(2.1)))
}

func TestFilterDefault(t *testing.T) {
	scope := gc.NewRootScope()
	fallback := gc.NewConstString("fallback")
	assert.Equal(t, fallback, call(t, builtin.Filters, "default", scope, value.None(), fallback))
	v := value.Number(5)
	assert.Equal(t, v, call(t, builtin.Filters, "default", scope, v, fallback))
}

func TestFilterSliceAndStrip(t *testing.T) {
	scope := gc.NewRootScope()
	out := call(t, builtin.Filters, "slice", scope, gc.NewConstString("hello world"), value.Number(0), value.Number(5))
	assert.Equal(t, "hello", gc.StringOf(out))

	stripped := call(t, builtin.Filters, "lstrip", scope, gc.NewConstString("  x  "))
	assert.Equal(t, "x  ", gc.StringOf(stripped))
	stripped = call(t, builtin.Filters, "rstrip", scope, gc.NewConstString("  x  "))
	assert.Equal(t, "  x", gc.StringOf(stripped))
}

func TestTestsEvenOddDivisablebyDefinedNone(t *testing.T) {
	scope := gc.NewRootScope()
	assert.Equal(t, value.Boolean(true), call(t, builtin.Tests, "even", scope, value.Number(4)))
	assert.Equal(t, value.Boolean(false), call(t, builtin.Tests, "even", scope, value.Number(3)))
	assert.Equal(t, value.Boolean(true), call(t, builtin.Tests, "odd", scope, value.Number(3)))
	assert.Equal(t, value.Boolean(true), call(t, builtin.Tests, "divisableby", scope, value.Number(10), value.Number(5)))
	assert.Equal(t, value.Boolean(false), call(t, builtin.Tests, "divisableby", scope, value.Number(10), value.Number(3)))
	assert.Equal(t, value.Boolean(true), call(t, builtin.Tests, "none", scope, value.None()))
	assert.Equal(t, value.Boolean(false), call(t, builtin.Tests, "defined", scope, value.None()))
	assert.Equal(t, value.Boolean(true), call(t, builtin.Tests, "defined", scope, value.Number(1)))
}

func TestTestsSameas(t *testing.T) {
	scope := gc.NewRootScope()
	list := builtin.NewList(scope, nil)
	assert.Equal(t, value.Boolean(true), call(t, builtin.Tests, "sameas", scope, list, list))
	other := builtin.NewList(scope, nil)
	assert.Equal(t, value.Boolean(false), call(t, builtin.Tests, "sameas", scope, list, other))
}

func TestListConstructAndDisplay(t *testing.T) {
	scope := gc.NewRootScope()
	l := builtin.NewList(scope, []value.Value{value.Number(1), value.Number(2), gc.NewConstString("x")})
	assert.Contains(t, builtin.Display(l), "1")
	assert.Contains(t, builtin.Display(l), "x")
}

func TestDictConstructAndLookup(t *testing.T) {
	scope := gc.NewRootScope()
	d := builtin.NewDictFrom(scope, []string{"a", "b"}, []value.Value{value.Number(1), value.Number(2)})
	m, keys, ok := builtin.AsDict(d)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, value.Number(1), m["a"])
}

func TestRangeFunction(t *testing.T) {
	scope := gc.NewRootScope()
	v, err := builtin.Range(scope, []value.Value{value.Number(0), value.Number(3)})
	require.NoError(t, err)
	assert.True(t, builtin.Iterable(v))
}

func TestCyclerFunction(t *testing.T) {
	scope := gc.NewRootScope()
	v, err := builtin.Cycler(scope, []value.Value{gc.NewConstString("a"), gc.NewConstString("b")})
	require.NoError(t, err)
	assert.Equal(t, value.KindObject, v.Kind)
}
