package builtin

import (
	"fmt"

	"ajj/internal/gc"
	"ajj/internal/value"
)

// loopData backs a `loop` context object built by NewLoopContext and
// advanced by SetLoopCursor. The compiler and VM do not build one: inside
// a recursive {% for %} body, compileRecursiveFor binds `loop` to
// "__func__" (a callable that re-enters the loop body), not to this object.
type loopData struct {
	index0, length int
}

var loopSlots = &gc.Slots{
	AttrGet: func(o *gc.Object, key value.Value) (value.Value, error) {
		k, err := asString(key)
		if err != nil {
			return value.Value{}, err
		}
		d := loopCtx(o)
		switch k {
		case "index":
			return value.Number(float64(d.index0 + 1)), nil
		case "index0":
			return value.Number(float64(d.index0)), nil
		case "revindex":
			return value.Number(float64(d.length - d.index0)), nil
		case "revindex0":
			return value.Number(float64(d.length - d.index0 - 1)), nil
		case "first":
			return value.Boolean(d.index0 == 0), nil
		case "last":
			return value.Boolean(d.index0 == d.length-1), nil
		case "length":
			return value.Number(float64(d.length)), nil
		}
		return value.None(), nil
	},
	Method: func(o *gc.Object, scope *gc.Scope, name string, args []value.Value) (value.Value, error) {
		if name == "cycle" {
			d := loopCtx(o)
			if len(args) == 0 {
				return value.None(), nil
			}
			return args[d.index0%len(args)], nil
		}
		return value.Value{}, fmt.Errorf("loop has no method %q", name)
	},
	Display: func(o *gc.Object) string { return "<loop>" },
}

func loopCtx(o *gc.Object) *loopData { return o.Data.(*loopData) }

// NewLoopContext builds the `loop` object for iteration index0 of a
// sequence of the given length.
func NewLoopContext(scope *gc.Scope, index0, length int) value.Value {
	return gc.NewObject(scope, "loop", loopSlots, &loopData{index0: index0, length: length})
}

// SetLoopCursor updates an existing loop object in place for the next
// iteration, avoiding a fresh allocation per pass through the body.
func SetLoopCursor(v value.Value, index0, length int) {
	if v.Kind != value.KindObject {
		return
	}
	if d, ok := gc.ObjectOf(v).Data.(*loopData); ok {
		d.index0, d.length = index0, length
	}
}
