package upvalue

import (
	"testing"

	"ajj/internal/value"
)

func TestSetOverrideShadowsAndDeleteRestores(t *testing.T) {
	tbl := New(nil)
	tbl.Set("x", value.Number(1), Override)
	tbl.Set("x", value.Number(2), Override)

	v, ok := tbl.Find("x")
	if !ok || v.Num != 2 {
		t.Fatalf("expected shadowed binding 2, got %v ok=%v", v, ok)
	}
	if !tbl.Delete("x") {
		t.Fatalf("expected delete to succeed")
	}
	v, ok = tbl.Find("x")
	if !ok || v.Num != 1 {
		t.Fatalf("expected restored binding 1, got %v ok=%v", v, ok)
	}
}

func TestSetOptionalDeclinesWhenPresent(t *testing.T) {
	tbl := New(nil)
	tbl.Set("x", value.Number(1), Override)
	if tbl.Set("x", value.Number(99), Optional) {
		t.Fatalf("expected Optional set to decline when a binding exists")
	}
	v, _ := tbl.Find("x")
	if v.Num != 1 {
		t.Fatalf("expected original binding to survive, got %v", v)
	}
}

func TestFindChainWalksToParent(t *testing.T) {
	parent := New(nil)
	parent.Set("g", value.Number(7), Override)
	child := New(parent)

	if _, ok := child.Find("g"); ok {
		t.Fatalf("expected local Find to miss")
	}
	v, ok := child.FindChain("g")
	if !ok || v.Num != 7 {
		t.Fatalf("expected chained lookup to find parent binding, got %v ok=%v", v, ok)
	}
}
