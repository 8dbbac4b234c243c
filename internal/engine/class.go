package engine

import (
	"fmt"

	"ajj/internal/gc"
	"ajj/internal/value"
)

// UserTypeFloor is the first type tag handed to a host-registered class,
// mirroring ajj.h's AJJ_USER_DEFINE_EXTENSION = AJJ_VALUE_SIZE+100: every
// built-in value kind gets a tag below this floor, so a host can tell a
// registered class apart from a string/list/dict by tag alone.
const UserTypeFloor = 100

// HostClass is what RegisterClass hangs onto: a constructor, an optional
// destructor, and the method/slot tables an instance's *gc.Object carries
// (§6's "ctor, dtor, method list, slot table, opaque user data").
type HostClass struct {
	Name string
	// Ctor builds one instance's opaque payload from constructor
	// arguments; the returned interface{} becomes the instance's
	// gc.Object.Data.
	Ctor func(scope *gc.Scope, args []value.Value) (interface{}, error)
	// Dtor releases whatever native resource Ctor acquired, run when the
	// instance's owning scope is destroyed (Slots.Destroy, §5).
	Dtor func(data interface{})
	// Methods backs gc.Slots.Method: instance.method(args...) dispatch.
	Methods map[string]func(data interface{}, scope *gc.Scope, args []value.Value) (value.Value, error)

	typeTag int
}

// RegisterClass records a host class and assigns it the next type tag at
// or above UserTypeFloor. Re-registering the same name reuses its tag
// rather than handing out a new one, so repeated engine setup (tests,
// hot-reloading dev servers) stays idempotent.
func (e *Engine) RegisterClass(hc *HostClass) int {
	e.classMu.Lock()
	defer e.classMu.Unlock()
	if existing, ok := e.classes[hc.Name]; ok {
		hc.typeTag = existing.typeTag
	} else {
		hc.typeTag = UserTypeFloor + len(e.classes)
	}
	e.classes[hc.Name] = hc
	return hc.typeTag
}

// NewInstance constructs a value of a previously registered class,
// wiring its Methods/Dtor into a gc.Slots table built once per class.
func (e *Engine) NewInstance(scope *gc.Scope, className string, args []value.Value) (value.Value, error) {
	e.classMu.RLock()
	hc, ok := e.classes[className]
	e.classMu.RUnlock()
	if !ok {
		return value.Value{}, fmt.Errorf("no class registered under name %q", className)
	}
	data, err := hc.Ctor(scope, args)
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewObject(scope, hc.Name, hc.slots(), data), nil
}

// TypeTag returns className's assigned type tag, or 0 if it was never
// registered.
func (e *Engine) TypeTag(className string) int {
	e.classMu.RLock()
	defer e.classMu.RUnlock()
	if hc, ok := e.classes[className]; ok {
		return hc.typeTag
	}
	return 0
}

func (hc *HostClass) slots() *gc.Slots {
	s := &gc.Slots{
		Display: func(o *gc.Object) string { return "<" + hc.Name + ">" },
	}
	if hc.Dtor != nil {
		s.Destroy = func(o *gc.Object) { hc.Dtor(o.Data) }
	}
	if len(hc.Methods) > 0 {
		s.Method = func(o *gc.Object, scope *gc.Scope, name string, args []value.Value) (value.Value, error) {
			fn, ok := hc.Methods[name]
			if !ok {
				return value.Value{}, fmt.Errorf("%s has no method %q", hc.Name, name)
			}
			return fn(o.Data, scope, args)
		}
	}
	return s
}
