package gc

import "ajj/internal/value"

// Slots is the polymorphic operation table an Object may implement (§4.1).
// Each field is an independent optional operation; a nil field means the
// object doesn't support that operation and the VM raises a type error.
// This mirrors the original's func_table "slot" vtable more directly than a
// Go interface would, since most objects only implement a handful of the
// dozen-odd operations and Go has no partial interface implementation.
type Slots struct {
	// Iteration (iter_start/move/has/get_key/get_val).
	IterStart  func(o *Object) int
	IterMove   func(o *Object, cursor int) int
	IterHas    func(o *Object, cursor int) bool
	IterGetKey func(o *Object, cursor int) value.Value
	IterGetVal func(o *Object, cursor int) value.Value

	// Size (len/empty).
	Len   func(o *Object) int
	Empty func(o *Object) bool

	// Attribute access (attr_get/set/push).
	AttrGet  func(o *Object, key value.Value) (value.Value, error)
	AttrSet  func(o *Object, key, val value.Value) error
	AttrPush func(o *Object, val value.Value) error

	// Method dispatches a named method call directly (list.append(x),
	// dict.items(), str.upper(), ...), bypassing AttrGet. scope is the
	// caller's current GC scope, for methods that allocate (e.g. a
	// string method returning a new heap string).
	Method func(o *Object, scope *Scope, name string, args []value.Value) (value.Value, error)

	// Move re-homes any child objects this object references when o
	// itself is moved to a new scope (§3 invariant: move is transitive).
	Move func(o *Object, dst *Scope)

	// Display renders o for string interpolation and the `print` builtin.
	Display func(o *Object) string

	// Comparisons. Only the operators the object actually supports need
	// be set; the VM falls back to a type error for the rest.
	Eq func(o *Object, other value.Value) bool
	Lt func(o *Object, other value.Value) bool

	// Destroy runs when o's owning scope is torn down, in list order,
	// before the object is unlinked. Most TagUser objects have no
	// external resource to release and leave this nil.
	Destroy func(o *Object)
}

// Iterable reports whether s implements the full iteration contract.
func (s *Slots) Iterable() bool {
	return s != nil && s.IterStart != nil && s.IterMove != nil &&
		s.IterHas != nil && s.IterGetKey != nil && s.IterGetVal != nil
}
