package builtin

import (
	"fmt"
	"strings"

	"ajj/internal/gc"
	"ajj/internal/value"
)

type dictData struct {
	m    map[string]value.Value
	keys []string // insertion order
}

func newDictData() *dictData {
	return &dictData{m: make(map[string]value.Value)}
}

func (d *dictData) set(key string, v value.Value) {
	if _, exists := d.m[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.m[key] = v
}

func (d *dictData) del(key string) {
	if _, exists := d.m[key]; !exists {
		return
	}
	delete(d.m, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

var dictSlots = &gc.Slots{
	IterStart:  func(o *gc.Object) int { return 0 },
	IterMove:   func(o *gc.Object, cursor int) int { return cursor + 1 },
	IterHas:    func(o *gc.Object, cursor int) bool { return cursor < len(dict(o).keys) },
	IterGetKey: func(o *gc.Object, cursor int) value.Value { return gc.NewConstString(dict(o).keys[cursor]) },
	IterGetVal: func(o *gc.Object, cursor int) value.Value {
		d := dict(o)
		return d.m[d.keys[cursor]]
	},

	Len:   func(o *gc.Object) int { return len(dict(o).keys) },
	Empty: func(o *gc.Object) bool { return len(dict(o).keys) == 0 },

	AttrGet: func(o *gc.Object, key value.Value) (value.Value, error) {
		k, err := asString(key)
		if err != nil {
			return value.Value{}, err
		}
		d := dict(o)
		if v, ok := d.m[k]; ok {
			return v, nil
		}
		return value.None(), nil
	},
	AttrSet: func(o *gc.Object, key, val value.Value) error {
		k, err := asString(key)
		if err != nil {
			return err
		}
		dict(o).set(k, val)
		return nil
	},
	Method: dictMethod,
	Move: func(o *gc.Object, dst *gc.Scope) {
		d := dict(o)
		for _, k := range d.keys {
			if moved, err := gc.Move(d.m[k], dst); err == nil {
				d.m[k] = moved
			}
		}
	},
	Display: func(o *gc.Object) string {
		d := dict(o)
		parts := make([]string, len(d.keys))
		for i, k := range d.keys {
			v := d.m[k]
			var rendered string
			if v.Kind == value.KindString {
				rendered = "'" + gc.StringOf(v) + "'"
			} else {
				rendered = Display(v)
			}
			parts[i] = "'" + k + "': " + rendered
		}
		return "{" + strings.Join(parts, ", ") + "}"
	},
	Eq: func(o *gc.Object, other value.Value) bool {
		if other.Kind != value.KindObject {
			return false
		}
		od, ok := gc.ObjectOf(other).Data.(*dictData)
		if !ok {
			return false
		}
		d := dict(o)
		if len(d.keys) != len(od.keys) {
			return false
		}
		for k, v := range d.m {
			ov, ok := od.m[k]
			if !ok || !Eq(v, ov) {
				return false
			}
		}
		return true
	},
}

func dict(o *gc.Object) *dictData { return o.Data.(*dictData) }

// NewDict builds an empty dict object allocated into scope.
func NewDict(scope *gc.Scope) value.Value {
	return gc.NewObject(scope, "dict", dictSlots, newDictData())
}

// NewDictFrom builds a dict object pre-populated from an ordered key/value
// pair list, preserving insertion order.
func NewDictFrom(scope *gc.Scope, keys []string, vals []value.Value) value.Value {
	d := newDictData()
	for i, k := range keys {
		d.set(k, vals[i])
	}
	return gc.NewObject(scope, "dict", dictSlots, d)
}

// AsDict unwraps a dict value's backing map and ordered keys, or ok=false.
func AsDict(v value.Value) (m map[string]value.Value, keys []string, ok bool) {
	if v.Kind != value.KindObject {
		return nil, nil, false
	}
	d, ok := gc.ObjectOf(v).Data.(*dictData)
	if !ok {
		return nil, nil, false
	}
	return d.m, d.keys, true
}

func dictMethod(o *gc.Object, scope *gc.Scope, name string, args []value.Value) (value.Value, error) {
	d := dict(o)
	switch name {
	case "get":
		k, err := asString(arg(args, 0))
		if err != nil {
			return value.Value{}, err
		}
		if v, ok := d.m[k]; ok {
			return v, nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return value.None(), nil
	case "keys":
		items := make([]value.Value, len(d.keys))
		for i, k := range d.keys {
			items[i] = gc.NewConstString(k)
		}
		return NewList(scope, items), nil
	case "values":
		items := make([]value.Value, len(d.keys))
		for i, k := range d.keys {
			items[i] = d.m[k]
		}
		return NewList(scope, items), nil
	case "items":
		items := make([]value.Value, len(d.keys))
		for i, k := range d.keys {
			items[i] = NewList(scope, []value.Value{gc.NewConstString(k), d.m[k]})
		}
		return NewList(scope, items), nil
	case "pop":
		k, err := asString(arg(args, 0))
		if err != nil {
			return value.Value{}, err
		}
		v, ok := d.m[k]
		if !ok {
			if len(args) > 1 {
				return args[1], nil
			}
			return value.Value{}, fmt.Errorf("key %q not found", k)
		}
		d.del(k)
		return v, nil
	case "update":
		om, okeys, ok := AsDict(arg(args, 0))
		if !ok {
			return value.Value{}, fmt.Errorf("update() requires a dict")
		}
		for _, k := range okeys {
			d.set(k, om[k])
		}
		return value.None(), nil
	}
	return value.Value{}, fmt.Errorf("dict has no method %q", name)
}
