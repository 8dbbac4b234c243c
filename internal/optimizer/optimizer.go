// Package optimizer implements the two-pass peephole optimizer (§4.5): pass
// one folds constant-load windows into arithmetic/comparison/logical
// instructions and erases the fixed-arity NOPs the compiler never emits but
// a future compiler revision might (kept for parity with bc.h's NOP0/1/2);
// pass two repatches every jump target from its pre-fold offset to its
// post-shrink offset.
//
// Grounded directly on spec §4.5 (original_source's opt.c was not present
// in the retrieval pack for this spec's sub-bundle); the instruction set
// and constant-table interning rules come from internal/bytecode.
package optimizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"ajj/internal/ajjerr"
	"ajj/internal/bytecode"
)

// errSkip marks a fold attempt that simply doesn't apply (operand kinds the
// window can't combine) — the instruction is left untouched, not an error.
var errSkip = fmt.Errorf("optimizer: not foldable")

type foldKind int

const (
	fkNone foldKind = iota
	fkBool
	fkNumber
	fkString
	fkEmptyList
	fkEmptyDict
)

type foldVal struct {
	kind foldKind
	b    bool
	n    float64
	s    string
}

func truthy(v foldVal) bool {
	switch v.kind {
	case fkBool:
		return v.b
	case fkNumber:
		return v.n != 0
	case fkString:
		return v.s != ""
	default:
		return false
	}
}

func displayFold(v foldVal) string {
	switch v.kind {
	case fkBool:
		if v.b {
			return "true"
		}
		return "false"
	case fkNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case fkString:
		return v.s
	case fkEmptyList:
		return "[]"
	case fkEmptyDict:
		return "{}"
	default:
		return "none"
	}
}

func foldEq(a, b foldVal) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case fkBool:
		return a.b == b.b
	case fkNumber:
		return a.n == b.n
	case fkString:
		return a.s == b.s
	default:
		return true
	}
}

// foldCompare orders a and b, returning (cmp, ok); ok is false for types
// §4.6 doesn't define an ordering for at constant-fold time (mixed kinds).
func foldCompare(a, b foldVal) (int, bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case fkNumber:
		switch {
		case a.n < b.n:
			return -1, true
		case a.n > b.n:
			return 1, true
		default:
			return 0, true
		}
	case fkString:
		return strings.Compare(a.s, b.s), true
	default:
		return 0, false
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type decoded struct {
	op     bytecode.OpCode
	a, b   int32
	oldPos int
	dbg    bytecode.DebugInfo
}

func decode(p *bytecode.Program) []decoded {
	var out []decoded
	pc := 0
	for pc < len(p.Code) {
		op := bytecode.ReadOp(p.Code, pc)
		n := bytecode.Arity(op)
		d := decoded{op: op, oldPos: pc, dbg: p.GetDebugInfo(pc)}
		if n >= 1 {
			d.a = bytecode.ReadOperand(p.Code, pc+1)
		}
		if n >= 2 {
			d.b = bytecode.ReadOperand(p.Code, pc+5)
		}
		out = append(out, d)
		pc += bytecode.Size(op)
	}
	return out
}

// asConst reports whether d is one of the constant-loading opcodes named in
// §4.5's window definition, and if so, its folded value.
func asConst(np *bytecode.Program, d decoded) (foldVal, bool) {
	switch d.op {
	case bytecode.OpLtrue:
		return foldVal{kind: fkBool, b: true}, true
	case bytecode.OpLfalse:
		return foldVal{kind: fkBool, b: false}, true
	case bytecode.OpLnone:
		return foldVal{kind: fkNone}, true
	case bytecode.OpLzero:
		return foldVal{kind: fkNumber, n: 0}, true
	case bytecode.OpLimm:
		return foldVal{kind: fkNumber, n: float64(d.a)}, true
	case bytecode.OpLnum:
		if int(d.a) < len(np.ConstNumbers) {
			return foldVal{kind: fkNumber, n: np.ConstNumbers[d.a]}, true
		}
	case bytecode.OpLstr:
		if int(d.a) < len(np.ConstStrings) {
			return foldVal{kind: fkString, s: np.ConstStrings[d.a]}, true
		}
	case bytecode.OpLlist:
		if d.a == 0 {
			return foldVal{kind: fkEmptyList}, true
		}
	case bytecode.OpLdict:
		if d.a == 0 {
			return foldVal{kind: fkEmptyDict}, true
		}
	}
	return foldVal{}, false
}

func isUnaryFoldable(op bytecode.OpCode) bool {
	switch op {
	case bytecode.OpNeg, bytecode.OpNot, bytecode.OpBool, bytecode.OpLen:
		return true
	}
	return false
}

func isBinaryFoldable(op bytecode.OpCode) bool {
	switch op {
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpPow, bytecode.OpDivtruct, bytecode.OpCat,
		bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe,
		bytecode.OpAnd, bytecode.OpOr:
		return true
	}
	return false
}

func foldUnary(op bytecode.OpCode, v foldVal) (foldVal, error) {
	switch op {
	case bytecode.OpNeg:
		if v.kind != fkNumber {
			return foldVal{}, errSkip
		}
		return foldVal{kind: fkNumber, n: -v.n}, nil
	case bytecode.OpNot:
		return foldVal{kind: fkBool, b: !truthy(v)}, nil
	case bytecode.OpBool:
		return foldVal{kind: fkBool, b: truthy(v)}, nil
	case bytecode.OpLen:
		if v.kind != fkString {
			return foldVal{}, errSkip
		}
		return foldVal{kind: fkNumber, n: float64(len([]rune(v.s)))}, nil
	}
	return foldVal{}, errSkip
}

// foldBinary implements §4.5's folding rules: ADD with a string on either
// side and CAT concatenate; string*integer (either order) repeats; string*string is a
// compile error (the Open Question's resolution, DESIGN.md); division and
// modulo by a constant zero are compile errors; AND/OR fold via Python-style
// truthiness short-circuit, keeping whichever operand decides the result.
func foldBinary(op bytecode.OpCode, a, b foldVal, dbg bytecode.DebugInfo) (foldVal, error) {
	loc := ajjerr.Location{File: dbg.File, Line: dbg.Line, Column: dbg.Column}
	switch op {
	case bytecode.OpAdd:
		if a.kind == fkString || b.kind == fkString {
			return foldVal{kind: fkString, s: displayFold(a) + displayFold(b)}, nil
		}
		if a.kind != fkNumber || b.kind != fkNumber {
			return foldVal{}, errSkip
		}
		return foldVal{kind: fkNumber, n: a.n + b.n}, nil
	case bytecode.OpCat:
		return foldVal{kind: fkString, s: displayFold(a) + displayFold(b)}, nil
	case bytecode.OpSub, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow, bytecode.OpDivtruct:
		if a.kind != fkNumber || b.kind != fkNumber {
			return foldVal{}, errSkip
		}
		switch op {
		case bytecode.OpSub:
			return foldVal{kind: fkNumber, n: a.n - b.n}, nil
		case bytecode.OpDiv:
			if b.n == 0 {
				return foldVal{}, ajjerr.New(ajjerr.Optimize, loc, "division by zero in constant expression")
			}
			return foldVal{kind: fkNumber, n: a.n / b.n}, nil
		case bytecode.OpMod:
			if b.n == 0 {
				return foldVal{}, ajjerr.New(ajjerr.Optimize, loc, "modulo by zero in constant expression")
			}
			return foldVal{kind: fkNumber, n: math.Mod(a.n, b.n)}, nil
		case bytecode.OpPow:
			return foldVal{kind: fkNumber, n: math.Pow(a.n, b.n)}, nil
		case bytecode.OpDivtruct:
			if b.n == 0 {
				return foldVal{}, ajjerr.New(ajjerr.Optimize, loc, "division by zero in constant expression")
			}
			return foldVal{kind: fkNumber, n: math.Trunc(a.n / b.n)}, nil
		}
	case bytecode.OpMul:
		switch {
		case a.kind == fkNumber && b.kind == fkNumber:
			return foldVal{kind: fkNumber, n: a.n * b.n}, nil
		case a.kind == fkString && b.kind == fkNumber:
			return foldVal{kind: fkString, s: strings.Repeat(a.s, maxInt(0, int(b.n)))}, nil
		case a.kind == fkNumber && b.kind == fkString:
			return foldVal{kind: fkString, s: strings.Repeat(b.s, maxInt(0, int(a.n)))}, nil
		case a.kind == fkString && b.kind == fkString:
			return foldVal{}, ajjerr.New(ajjerr.Optimize, loc, "cannot multiply string by string in constant expression")
		}
		return foldVal{}, errSkip
	case bytecode.OpEq:
		return foldVal{kind: fkBool, b: foldEq(a, b)}, nil
	case bytecode.OpNe:
		return foldVal{kind: fkBool, b: !foldEq(a, b)}, nil
	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		ord, ok := foldCompare(a, b)
		if !ok {
			return foldVal{}, errSkip
		}
		switch op {
		case bytecode.OpLt:
			return foldVal{kind: fkBool, b: ord < 0}, nil
		case bytecode.OpLe:
			return foldVal{kind: fkBool, b: ord <= 0}, nil
		case bytecode.OpGt:
			return foldVal{kind: fkBool, b: ord > 0}, nil
		case bytecode.OpGe:
			return foldVal{kind: fkBool, b: ord >= 0}, nil
		}
	case bytecode.OpAnd:
		if !truthy(a) {
			return a, nil
		}
		return b, nil
	case bytecode.OpOr:
		if truthy(a) {
			return a, nil
		}
		return b, nil
	}
	return foldVal{}, errSkip
}

// materialize emits v as the matching constant-load opcode, interning any
// new string/number into np's bounded constant tables.
func materialize(np *bytecode.Program, v foldVal) (bytecode.OpCode, int32, error) {
	switch v.kind {
	case fkBool:
		if v.b {
			return bytecode.OpLtrue, 0, nil
		}
		return bytecode.OpLfalse, 0, nil
	case fkNone:
		return bytecode.OpLnone, 0, nil
	case fkNumber:
		if v.n == 0 {
			return bytecode.OpLzero, 0, nil
		}
		if i := int32(v.n); float64(i) == v.n {
			return bytecode.OpLimm, i, nil
		}
		idx, err := np.AddConstNumber(v.n)
		if err != nil {
			return 0, 0, err
		}
		return bytecode.OpLnum, int32(idx), nil
	case fkString:
		idx, err := np.AddConstString(v.s)
		if err != nil {
			return 0, 0, err
		}
		return bytecode.OpLstr, int32(idx), nil
	case fkEmptyList:
		return bytecode.OpLlist, 0, nil
	case fkEmptyDict:
		return bytecode.OpLdict, 0, nil
	}
	return bytecode.OpLnone, 0, nil
}

type built struct {
	op   bytecode.OpCode
	a, b int32
	dbg  bytecode.DebugInfo
}

// foldPass is §4.5's "Pass 1": scans decs left to right, folding any
// arithmetic/comparison/logical instruction whose operand window (the
// trailing 1 or 2 already-emitted instructions) is itself constant, and
// dropping NOP0/1/2. It returns the resulting instruction list alongside,
// for each resulting instruction, every original byte offset that now maps
// to it (possibly several, when a fold merges multiple originals into one).
func foldPass(p *bytecode.Program, np *bytecode.Program) ([]built, [][]int, error) {
	decs := decode(p)

	var out []built
	var positions [][]int
	var pendingLeading []int // old positions of NOPs seen before any real instruction
	constOf := map[int]foldVal{}

	attach := func(idx int, oldPos int) {
		positions[idx] = append(positions[idx], oldPos)
	}

	for _, d := range decs {
		if d.op == bytecode.OpNop0 || d.op == bytecode.OpNop1 || d.op == bytecode.OpNop2 {
			if len(out) > 0 {
				attach(len(out)-1, d.oldPos)
			} else {
				pendingLeading = append(pendingLeading, d.oldPos)
			}
			continue
		}

		if isUnaryFoldable(d.op) && len(out) >= 1 {
			if v, ok := constOf[len(out)-1]; ok {
				res, err := foldUnary(d.op, v)
				if err == nil {
					newIdx := len(out) - 1
					op, a, mErr := materialize(np, res)
					if mErr != nil {
						return nil, nil, mErr
					}
					out[newIdx] = built{op: op, a: a, dbg: d.dbg}
					constOf[newIdx] = res
					positions[newIdx] = append(positions[newIdx], d.oldPos)
					continue
				}
				if err != errSkip {
					return nil, nil, err
				}
			}
		}

		if isBinaryFoldable(d.op) && len(out) >= 2 {
			vb, okb := constOf[len(out)-1]
			va, oka := constOf[len(out)-2]
			if okb && oka {
				res, err := foldBinary(d.op, va, vb, d.dbg)
				if err == nil {
					newIdx := len(out) - 2
					merged := append(append([]int{}, positions[newIdx]...), positions[newIdx+1]...)
					merged = append(merged, d.oldPos)
					op, a, mErr := materialize(np, res)
					if mErr != nil {
						return nil, nil, mErr
					}
					out = out[:newIdx+1]
					positions = positions[:newIdx+1]
					out[newIdx] = built{op: op, a: a, dbg: d.dbg}
					positions[newIdx] = merged
					constOf[newIdx] = res
					continue
				}
				if err != errSkip {
					return nil, nil, err
				}
			}
		}

		idx := len(out)
		posList := []int{d.oldPos}
		if idx == 0 && len(pendingLeading) > 0 {
			posList = append(append([]int{}, pendingLeading...), posList...)
			pendingLeading = nil
		}
		out = append(out, built{op: d.op, a: d.a, b: d.b, dbg: d.dbg})
		positions = append(positions, posList)
		if v, ok := asConst(np, d); ok {
			constOf[idx] = v
		} else {
			delete(constOf, idx)
		}
	}
	return out, positions, nil
}

func jumpOperandIndex(op bytecode.OpCode) (int, bool) {
	switch op {
	case bytecode.OpJmp, bytecode.OpJt, bytecode.OpJf, bytecode.OpJlt, bytecode.OpJlf, bytecode.OpJept:
		return 0, true
	case bytecode.OpJmpc:
		return 1, true
	}
	return 0, false
}

// oldPosIndex is the shrink-offset table of §4.5 Pass 2: sorted old byte
// positions paired with the `out` index they now resolve to, searched by
// binary search per the spec's explicit instruction.
type oldPosIndex struct {
	pos []int
	idx []int
}

func buildIndex(positions [][]int, codeLen int) *oldPosIndex {
	oi := &oldPosIndex{}
	for idx, ps := range positions {
		for _, p := range ps {
			oi.pos = append(oi.pos, p)
			oi.idx = append(oi.idx, idx)
		}
	}
	oi.pos = append(oi.pos, codeLen)
	oi.idx = append(oi.idx, len(positions))
	// simple insertion sort keyed by pos; program sizes are small enough
	// that this never shows up in a profile, and it keeps both slices
	// permuted in lockstep without a separate sort.Interface type.
	for i := 1; i < len(oi.pos); i++ {
		for j := i; j > 0 && oi.pos[j-1] > oi.pos[j]; j-- {
			oi.pos[j-1], oi.pos[j] = oi.pos[j], oi.pos[j-1]
			oi.idx[j-1], oi.idx[j] = oi.idx[j], oi.idx[j-1]
		}
	}
	return oi
}

// lookup binary-searches for old position target, returning its `out` index.
func (oi *oldPosIndex) lookup(target int32) int {
	lo, hi := 0, len(oi.pos)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if oi.pos[mid] < int(target) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return oi.idx[lo]
}

// Optimize runs both peephole passes over p and returns a new, optimized
// Program; p itself is left untouched.
func Optimize(p *bytecode.Program) (*bytecode.Program, error) {
	np := bytecode.NewProgram(p.Name, p.Kind)
	np.Params = append([]bytecode.Param(nil), p.Params...)
	np.NumLocals = p.NumLocals
	np.ConstStrings = append([]string(nil), p.ConstStrings...)
	np.ConstNumbers = append([]float64(nil), p.ConstNumbers...)

	out, positions, err := foldPass(p, np)
	if err != nil {
		return nil, err
	}

	newPos := make([]int, len(out))
	pos := 0
	for i, ins := range out {
		newPos[i] = pos
		pos += bytecode.Size(ins.op)
	}

	oi := buildIndex(positions, len(p.Code))

	for _, ins := range out {
		a, b := ins.a, ins.b
		if opIdx, ok := jumpOperandIndex(ins.op); ok {
			target := a
			if opIdx == 1 {
				target = b
			}
			resolved := int32(newPos[oi.lookup(target)])
			if opIdx == 0 {
				a = resolved
			} else {
				b = resolved
			}
		}
		switch bytecode.Arity(ins.op) {
		case 0:
			np.Emit(ins.op, ins.dbg)
		case 1:
			np.Emit1(ins.op, a, ins.dbg)
		case 2:
			np.Emit2(ins.op, a, b, ins.dbg)
		}
	}
	return np, nil
}
