package builtin

import (
	"fmt"

	"ajj/internal/gc"
	"ajj/internal/value"
)

type xrangeData struct {
	start, stop, step int
}

func (r *xrangeData) length() int {
	if r.step > 0 {
		if r.stop <= r.start {
			return 0
		}
		return (r.stop - r.start + r.step - 1) / r.step
	}
	if r.step < 0 {
		if r.stop >= r.start {
			return 0
		}
		return (r.start - r.stop - r.step - 1) / (-r.step)
	}
	return 0
}

func (r *xrangeData) at(cursor int) int { return r.start + cursor*r.step }

var xrangeSlots = &gc.Slots{
	IterStart:  func(o *gc.Object) int { return 0 },
	IterMove:   func(o *gc.Object, cursor int) int { return cursor + 1 },
	IterHas:    func(o *gc.Object, cursor int) bool { return cursor < xrange(o).length() },
	IterGetKey: func(o *gc.Object, cursor int) value.Value { return value.Number(float64(cursor)) },
	IterGetVal: func(o *gc.Object, cursor int) value.Value {
		return value.Number(float64(xrange(o).at(cursor)))
	},
	Len:   func(o *gc.Object) int { return xrange(o).length() },
	Empty: func(o *gc.Object) bool { return xrange(o).length() == 0 },
	Display: func(o *gc.Object) string {
		r := xrange(o)
		return fmt.Sprintf("xrange(%d, %d, %d)", r.start, r.stop, r.step)
	},
	Eq: func(o *gc.Object, other value.Value) bool {
		if other.Kind != value.KindObject {
			return false
		}
		oo, ok := gc.ObjectOf(other).Data.(*xrangeData)
		if !ok {
			return false
		}
		return xrange(o).length() == oo.length()
	},
}

func xrange(o *gc.Object) *xrangeData { return o.Data.(*xrangeData) }

// Range implements the `range(...)` builtin function: range(stop),
// range(start, stop), range(start, stop, step).
func Range(scope *gc.Scope, args []value.Value) (value.Value, error) {
	var start, stop, step float64
	step = 1
	switch len(args) {
	case 1:
		n, err := asNumber(args[0])
		if err != nil {
			return value.Value{}, err
		}
		stop = n
	case 2, 3:
		n0, err := asNumber(args[0])
		if err != nil {
			return value.Value{}, err
		}
		n1, err := asNumber(args[1])
		if err != nil {
			return value.Value{}, err
		}
		start, stop = n0, n1
		if len(args) == 3 {
			n2, err := asNumber(args[2])
			if err != nil {
				return value.Value{}, err
			}
			step = n2
		}
	default:
		return value.Value{}, fmt.Errorf("range() takes 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return value.Value{}, fmt.Errorf("range() step argument must not be zero")
	}
	return gc.NewObject(scope, "xrange", xrangeSlots, &xrangeData{
		start: int(start), stop: int(stop), step: int(step),
	}), nil
}
