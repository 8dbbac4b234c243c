package optimizer

import (
	"testing"

	"ajj/internal/bytecode"
)

func TestOptimizeConstantFold(t *testing.T) {
	// 1 + 2 * 3 compiles with * binding tighter and the additive left
	// operand first, so: LIMM 1, LIMM 2, LIMM 3, MUL, ADD, PRINT.
	p := bytecode.NewProgram("main", bytecode.KindMain)
	var dbg bytecode.DebugInfo
	p.Emit1(bytecode.OpLimm, 1, dbg)
	p.Emit1(bytecode.OpLimm, 2, dbg)
	p.Emit1(bytecode.OpLimm, 3, dbg)
	p.Emit(bytecode.OpMul, dbg)
	p.Emit(bytecode.OpAdd, dbg)
	p.Emit(bytecode.OpPrint, dbg)

	out, err := Optimize(p)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	pc := 0
	var ops []bytecode.OpCode
	for pc < len(out.Code) {
		op := bytecode.ReadOp(out.Code, pc)
		ops = append(ops, op)
		pc += bytecode.Size(op)
	}
	if len(ops) != 2 || ops[0] != bytecode.OpLimm || ops[1] != bytecode.OpPrint {
		t.Fatalf("expected [LIMM PRINT] after folding, got %v", ops)
	}
	if got := bytecode.ReadOperand(out.Code, 1); got != 7 {
		t.Fatalf("expected folded constant 7, got %d", got)
	}
}

func TestOptimizeStringConcat(t *testing.T) {
	p := bytecode.NewProgram("main", bytecode.KindMain)
	var dbg bytecode.DebugInfo
	ia, _ := p.AddConstString("foo")
	ib, _ := p.AddConstString("bar")
	p.Emit1(bytecode.OpLstr, int32(ia), dbg)
	p.Emit1(bytecode.OpLstr, int32(ib), dbg)
	p.Emit(bytecode.OpAdd, dbg)
	p.Emit(bytecode.OpPrint, dbg)

	out, err := Optimize(p)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if bytecode.ReadOp(out.Code, 0) != bytecode.OpLstr {
		t.Fatalf("expected folded LSTR, got %s", bytecode.ReadOp(out.Code, 0))
	}
	idx := bytecode.ReadOperand(out.Code, 1)
	if out.ConstStrings[idx] != "foobar" {
		t.Fatalf("expected \"foobar\", got %q", out.ConstStrings[idx])
	}
}

func TestOptimizeDivisionByZeroIsError(t *testing.T) {
	p := bytecode.NewProgram("main", bytecode.KindMain)
	var dbg bytecode.DebugInfo
	p.Emit1(bytecode.OpLimm, 4, dbg)
	p.Emit(bytecode.OpLzero, dbg)
	p.Emit(bytecode.OpDiv, dbg)
	p.Emit(bytecode.OpPrint, dbg)

	if _, err := Optimize(p); err == nil {
		t.Fatal("expected division-by-zero-in-constant-expression error, got nil")
	}
}

func TestOptimizeJumpRepatch(t *testing.T) {
	// A constant-foldable prefix (1+1) precedes a forward jump whose target
	// lies after it; folding must shrink the code and still land the jump
	// on the right instruction.
	p := bytecode.NewProgram("main", bytecode.KindMain)
	var dbg bytecode.DebugInfo
	p.Emit1(bytecode.OpLimm, 1, dbg)
	p.Emit1(bytecode.OpLimm, 1, dbg)
	p.Emit(bytecode.OpAdd, dbg) // folds to one LIMM
	jmpPos := p.Emit1(bytecode.OpJmp, 0, dbg)
	targetPos := p.Emit(bytecode.OpPrint, dbg)
	p.PatchOperand(jmpPos+1, int32(targetPos))

	out, err := Optimize(p)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	pc := 0
	var jmpNewPos int
	var printNewPos int
	for pc < len(out.Code) {
		op := bytecode.ReadOp(out.Code, pc)
		switch op {
		case bytecode.OpJmp:
			jmpNewPos = pc
		case bytecode.OpPrint:
			printNewPos = pc
		}
		pc += bytecode.Size(op)
	}
	got := bytecode.ReadOperand(out.Code, jmpNewPos+1)
	if int(got) != printNewPos {
		t.Fatalf("jump target not repatched: got %d, want %d", got, printNewPos)
	}
}
