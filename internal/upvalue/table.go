// Package upvalue implements the chained upvalue tables used for globals,
// environment-style variables, and include/import bindings (§4.2).
//
// Grounded on original_source/src/upvalue.h: a table holds, per name, a
// stack of bindings (not a single slot) so a nested scope can shadow an
// outer binding and later restore it on exit by popping; tables themselves
// chain via a `prev` pointer so a lookup that misses locally falls through
// to the enclosing table (the `__caller__`/`self` chain during a call, the
// include-with-upvalue binding, and top-level globals all use this same
// structure).
package upvalue

import "ajj/internal/value"

// Mode controls UPVALUE_SET's behavior when a name already has a binding in
// the current (not enclosing) table.
type Mode int

const (
	// Override always pushes a new binding, shadowing whatever the
	// current table already has for that name.
	Override Mode = iota
	// Optional pushes a new binding only if the current table has none
	// for that name yet — used for default bindings (e.g. a block
	// registering __caller__ only if the enclosing call didn't already
	// provide one).
	Optional
)

// Table is one link in the upvalue chain. The zero Table is usable as the
// outermost (global) table.
type Table struct {
	prev   *Table
	stacks map[string][]value.Value
}

// New creates a table chained after prev. prev may be nil for the
// outermost (global) table.
func New(prev *Table) *Table {
	return &Table{prev: prev}
}

// Prev returns the enclosing table, or nil at the top of the chain.
func (t *Table) Prev() *Table { return t.prev }

// Set pushes v as the newest binding for name in t, per mode. It reports
// whether a binding was written (Optional mode may decline).
func (t *Table) Set(name string, v value.Value, mode Mode) bool {
	if t.stacks == nil {
		t.stacks = make(map[string][]value.Value)
	}
	stack := t.stacks[name]
	if mode == Optional && len(stack) > 0 {
		return false
	}
	t.stacks[name] = append(stack, v)
	return true
}

// Delete pops the most recent local binding for name, restoring whatever
// was bound before it (or leaving the name absent if that was the only
// binding). It only touches t itself, never the chain — exactly the
// UPVALUE_DEL instruction's scope.
func (t *Table) Delete(name string) bool {
	stack := t.stacks[name]
	if len(stack) == 0 {
		return false
	}
	if len(stack) == 1 {
		delete(t.stacks, name)
		return true
	}
	t.stacks[name] = stack[:len(stack)-1]
	return true
}

// Find looks up name in t only (no chain walk) — UPVALUE_GET's fast path
// when the compiler knows the binding is local to the current table.
func (t *Table) Find(name string) (value.Value, bool) {
	stack := t.stacks[name]
	if len(stack) == 0 {
		return value.Value{}, false
	}
	return stack[len(stack)-1], true
}

// FindChain walks t and then each enclosing table in turn, returning the
// first binding found.
func (t *Table) FindChain(name string) (value.Value, bool) {
	for cur := t; cur != nil; cur = cur.prev {
		if v, ok := cur.Find(name); ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// Clear discards every binding in t (used when a table's owning scope is
// torn down in one shot rather than popped entry-by-entry).
func (t *Table) Clear() {
	t.stacks = nil
}
