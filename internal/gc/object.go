// Package gc implements the scoped memory model (§3, §4.1): a tree of GC
// scopes, heap objects owned by exactly one scope, and the polymorphic slot
// table that gives each object kind its iteration/attribute/comparison
// behavior without a type switch at every call site.
//
// Grounded on original_source/src/gc.h (gc_scope: parent pointer, scp_id,
// intrusive object list) and object.h (ajj_object: prev/next links, bounded
// parent[] extends chain, tp, scope back-pointer).
package gc

import "ajj/internal/value"

// Tag identifies the concrete shape of an Object's payload.
type Tag int

const (
	// TagDynamicString is a heap string owned by a scope (VM-allocated:
	// concatenation results, filter output, interpolation buffers).
	TagDynamicString Tag = iota
	// TagConstString references immutable storage (a program's string
	// table) and is never owned by any scope; IS_OBJECT_OWNED is false.
	TagConstString
	// TagTemplate is a loaded, compiled template (§3 "Function/program").
	TagTemplate
	// TagUser covers every other object kind: list, dict, xrange, loop
	// context, cycler, and host-registered classes. Behavior lives
	// entirely in Slots; Data holds the kind-specific payload.
	TagUser
)

// MaxExtendsDepth bounds a template's `extends` chain (§5).
const MaxExtendsDepth = 8

// Object is the engine's heap cell. Every non-primitive Value.Ref is a
// *Object in disguise (see internal/value's doc comment on Ref).
type Object struct {
	Tag  Tag
	Str  string      // payload for TagDynamicString / TagConstString
	Data interface{} // payload for TagTemplate / TagUser
	Name string      // diagnostic name (class name, template name, ...)

	Slots *Slots // optional behavior table; nil means "no operations supported"

	Scope *Scope // owning scope; nil for const-strings and escaped values

	Parents []*Object // bounded extends chain (TagTemplate only)

	prev, next *Object // intrusive doubly-linked list within Scope
}

// Owned reports whether o is destroyed along with a scope, mirroring
// IS_OBJECT_OWNED(obj) = (obj->scp != NULL).
func (o *Object) Owned() bool { return o.Scope != nil }

// AsValue wraps o as a value.Value of the given kind (KindString or
// KindObject). Kinds outside that pair would misrepresent the payload.
func AsValue(kind value.Kind, o *Object) value.Value {
	return value.Value{Kind: kind, Ref: o}
}

// ObjectOf unwraps a reference-kind Value back to its *Object. Panics if v
// is not a reference value; callers must check v.IsReference() first.
func ObjectOf(v value.Value) *Object {
	return v.Ref.(*Object)
}

// NewConstString wraps s as an unowned const-string object (no scope ever
// frees it; it outlives every render using the same compiled program).
func NewConstString(s string) value.Value {
	return AsValue(value.KindString, &Object{Tag: TagConstString, Str: s})
}

// NewDynamicString allocates s into scope and returns it as a String value.
func NewDynamicString(scope *Scope, s string) value.Value {
	o := &Object{Tag: TagDynamicString, Str: s}
	scope.own(o)
	return AsValue(value.KindString, o)
}

// NewObject allocates a TagUser object with the given slot table and
// payload into scope and returns it as an Object value.
func NewObject(scope *Scope, name string, slots *Slots, data interface{}) value.Value {
	o := &Object{Tag: TagUser, Name: name, Slots: slots, Data: data}
	scope.own(o)
	return AsValue(value.KindObject, o)
}

// StringOf returns the Go string backing a String value, regardless of
// whether it's dynamic or const.
func StringOf(v value.Value) string {
	return ObjectOf(v).Str
}
