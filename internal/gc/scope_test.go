package gc

import (
	"testing"

	"ajj/internal/value"
)

func TestScopeDestroyFreesObjects(t *testing.T) {
	root := NewRootScope()
	child := root.NewChild()

	destroyed := false
	o := &Object{Tag: TagUser, Slots: &Slots{Destroy: func(*Object) { destroyed = true }}}
	child.own(o)

	if o.Scope != child {
		t.Fatalf("expected object owned by child scope")
	}
	child.Destroy()
	if !destroyed {
		t.Fatalf("expected Destroy hook to run")
	}
	if o.Scope != nil {
		t.Fatalf("expected object unlinked after Destroy")
	}
}

func TestMoveToAncestorSucceeds(t *testing.T) {
	root := NewRootScope()
	child := root.NewChild()

	v := NewDynamicString(child, "hello")
	moved, err := Move(v, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ObjectOf(moved).Scope != root {
		t.Fatalf("expected object re-parented to root scope")
	}
}

func TestMoveToDescendantFails(t *testing.T) {
	root := NewRootScope()
	child := root.NewChild()

	v := NewDynamicString(root, "hello")
	if _, err := Move(v, child); err == nil {
		t.Fatalf("expected error moving into a descendant scope")
	}
}

func TestMoveConstStringIsNoop(t *testing.T) {
	root := NewRootScope()
	child := root.NewChild()

	v := NewConstString("literal")
	moved, err := Move(v, child)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ObjectOf(moved).Scope != nil {
		t.Fatalf("const-string must remain unowned")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    value.Value
		want bool
	}{
		{value.None(), false},
		{value.Boolean(false), false},
		{value.Boolean(true), true},
		{value.Number(0), false},
		{value.Number(1), true},
	}
	for _, c := range cases {
		if got := Truthy(c.v); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}

	root := NewRootScope()
	empty := NewDynamicString(root, "")
	if Truthy(empty) {
		t.Errorf("expected empty string to be falsy")
	}
	nonEmpty := NewDynamicString(root, "x")
	if !Truthy(nonEmpty) {
		t.Errorf("expected non-empty string to be truthy")
	}
}

func TestEqualNumberCoercion(t *testing.T) {
	if !Equal(value.Number(1), value.Number(1.0)) {
		t.Errorf("expected numeric equality")
	}
	if Equal(value.Number(1), value.Boolean(true)) {
		t.Errorf("did not expect cross-kind equality between number and bool")
	}
}
