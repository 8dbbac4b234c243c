package builtin

import (
	"fmt"

	"ajj/internal/gc"
	"ajj/internal/value"
)

type cyclerData struct {
	items []value.Value
	pos   int
}

var cyclerSlots = &gc.Slots{
	Method: func(o *gc.Object, scope *gc.Scope, name string, args []value.Value) (value.Value, error) {
		c := cycler(o)
		switch name {
		case "next", "__call__":
			if len(c.items) == 0 {
				return value.None(), nil
			}
			v := c.items[c.pos%len(c.items)]
			c.pos++
			return v, nil
		case "reset":
			c.pos = 0
			return value.None(), nil
		case "current":
			if len(c.items) == 0 {
				return value.None(), nil
			}
			return c.items[c.pos%len(c.items)], nil
		}
		return value.Value{}, fmt.Errorf("cycler has no method %q", name)
	},
	Display: func(o *gc.Object) string { return "<cycler>" },
}

func cycler(o *gc.Object) *cyclerData { return o.Data.(*cyclerData) }

// Cycler implements the `cycler(...)` builtin function: constructs an
// object whose next() method cycles through the given arguments forever.
func Cycler(scope *gc.Scope, args []value.Value) (value.Value, error) {
	items := make([]value.Value, len(args))
	copy(items, args)
	return gc.NewObject(scope, "cycler", cyclerSlots, &cyclerData{items: items}), nil
}
