package builtin

import (
	"fmt"
	"strings"

	"ajj/internal/gc"
	"ajj/internal/value"
)

type listData struct {
	items []value.Value
}

var listSlots = &gc.Slots{
	IterStart:  func(o *gc.Object) int { return 0 },
	IterMove:   func(o *gc.Object, cursor int) int { return cursor + 1 },
	IterHas:    func(o *gc.Object, cursor int) bool { return cursor < len(list(o).items) },
	IterGetKey: func(o *gc.Object, cursor int) value.Value { return value.Number(float64(cursor)) },
	IterGetVal: func(o *gc.Object, cursor int) value.Value { return list(o).items[cursor] },

	Len:   func(o *gc.Object) int { return len(list(o).items) },
	Empty: func(o *gc.Object) bool { return len(list(o).items) == 0 },

	AttrGet: func(o *gc.Object, key value.Value) (value.Value, error) {
		d := list(o)
		i, err := listIndex(d, key)
		if err != nil {
			return value.Value{}, err
		}
		if i < 0 || i >= len(d.items) {
			return value.None(), nil
		}
		return d.items[i], nil
	},
	AttrSet: func(o *gc.Object, key, val value.Value) error {
		d := list(o)
		i, err := listIndex(d, key)
		if err != nil {
			return err
		}
		if i < 0 || i >= len(d.items) {
			return fmt.Errorf("list assignment index out of range")
		}
		d.items[i] = val
		return nil
	},
	AttrPush: func(o *gc.Object, val value.Value) error {
		d := list(o)
		d.items = append(d.items, val)
		return nil
	},
	Method: listMethod,
	Move: func(o *gc.Object, dst *gc.Scope) {
		d := list(o)
		for i, v := range d.items {
			if moved, err := gc.Move(v, dst); err == nil {
				d.items[i] = moved
			}
		}
	},
	Display: func(o *gc.Object) string {
		d := list(o)
		parts := make([]string, len(d.items))
		for i, v := range d.items {
			if v.Kind == value.KindString {
				parts[i] = "'" + gc.StringOf(v) + "'"
			} else {
				parts[i] = Display(v)
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	},
	Eq: func(o *gc.Object, other value.Value) bool {
		if other.Kind != value.KindObject {
			return false
		}
		oo, ok := gc.ObjectOf(other).Data.(*listData)
		if !ok {
			return false
		}
		d := list(o)
		if len(d.items) != len(oo.items) {
			return false
		}
		for i := range d.items {
			if !Eq(d.items[i], oo.items[i]) {
				return false
			}
		}
		return true
	},
}

func list(o *gc.Object) *listData { return o.Data.(*listData) }

func listIndex(d *listData, key value.Value) (int, error) {
	if key.Kind != value.KindNumber {
		return 0, fmt.Errorf("list index must be a number, got %s", key.TypeName())
	}
	i := int(key.Num)
	if i < 0 {
		i += len(d.items)
	}
	return i, nil
}

// NewList builds a list object owning items, allocated into scope.
func NewList(scope *gc.Scope, items []value.Value) value.Value {
	return gc.NewObject(scope, "list", listSlots, &listData{items: items})
}

// AsList unwraps a list value's backing slice, or reports ok=false.
func AsList(v value.Value) (items []value.Value, ok bool) {
	if v.Kind != value.KindObject {
		return nil, false
	}
	o := gc.ObjectOf(v)
	d, ok := o.Data.(*listData)
	if !ok {
		return nil, false
	}
	return d.items, true
}

func listMethod(o *gc.Object, scope *gc.Scope, name string, args []value.Value) (value.Value, error) {
	d := list(o)
	switch name {
	case "append":
		d.items = append(d.items, arg(args, 0))
		return value.None(), nil
	case "pop":
		if len(d.items) == 0 {
			return value.Value{}, fmt.Errorf("pop from empty list")
		}
		last := d.items[len(d.items)-1]
		d.items = d.items[:len(d.items)-1]
		return last, nil
	case "extend":
		other, ok := AsList(arg(args, 0))
		if !ok {
			return value.Value{}, fmt.Errorf("extend() requires a list")
		}
		d.items = append(d.items, other...)
		return value.None(), nil
	case "reverse":
		for i, j := 0, len(d.items)-1; i < j; i, j = i+1, j-1 {
			d.items[i], d.items[j] = d.items[j], d.items[i]
		}
		return value.None(), nil
	case "index":
		for i, v := range d.items {
			if Eq(v, arg(args, 0)) {
				return value.Number(float64(i)), nil
			}
		}
		return value.Value{}, fmt.Errorf("value not found in list")
	case "count":
		n := 0
		for _, v := range d.items {
			if Eq(v, arg(args, 0)) {
				n++
			}
		}
		return value.Number(float64(n)), nil
	case "join":
		sep, err := asString(arg(args, 0))
		if err != nil {
			return value.Value{}, err
		}
		parts := make([]string, len(d.items))
		for i, v := range d.items {
			parts[i] = Display(v)
		}
		return gc.NewDynamicString(scope, strings.Join(parts, sep)), nil
	}
	return value.Value{}, fmt.Errorf("list has no method %q", name)
}
