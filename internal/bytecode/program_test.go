package bytecode

import "testing"

func TestAddConstStringDedups(t *testing.T) {
	p := NewProgram("main", KindMain)
	i1, err := p.AddConstString("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	i2, err := p.AddConstString("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i1 != i2 {
		t.Fatalf("expected interned index to match, got %d and %d", i1, i2)
	}
	if len(p.ConstStrings) != 1 {
		t.Fatalf("expected one entry, got %d", len(p.ConstStrings))
	}
}

func TestEmitAndPatchOperand(t *testing.T) {
	p := NewProgram("main", KindMain)
	dbg := DebugInfo{Line: 1, Column: 1, File: "t.jinja"}
	jmpPos := p.Emit1(OpJmp, -1, dbg)
	p.Emit(OpHalt, dbg)
	target := int32(len(p.Code))
	p.PatchOperand(jmpPos+1, target)

	if ReadOp(p.Code, jmpPos) != OpJmp {
		t.Fatalf("expected JMP at patched position")
	}
	if got := ReadOperand(p.Code, jmpPos+1); got != target {
		t.Fatalf("expected patched operand %d, got %d", target, got)
	}
}

func TestDisassembleListsInstructions(t *testing.T) {
	p := NewProgram("main", KindMain)
	dbg := DebugInfo{Line: 1}
	p.Emit(OpLtrue, dbg)
	p.Emit(OpPrint, dbg)
	p.Emit(OpHalt, dbg)

	out := p.Disassemble()
	if out == "" {
		t.Fatalf("expected non-empty disassembly")
	}
}

func TestMaxParamsBound(t *testing.T) {
	p := NewProgram("f", KindMacro)
	for i := 0; i < MaxParams; i++ {
		if err := p.AddParam(Param{Name: "p"}); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if err := p.AddParam(Param{Name: "overflow"}); err == nil {
		t.Fatalf("expected error exceeding MaxParams")
	}
}
