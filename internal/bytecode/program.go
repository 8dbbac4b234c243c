package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"

	"ajj/internal/value"
)

// Bounded resource capacities (§5). The original's headers define
// per-program *_MAX_SIZE constants that weren't reachable in this
// codebase's retrieved source; these numbers come directly from spec §5.
const (
	MaxConstStrings = 256
	MaxConstNumbers = 256
	MaxParams       = 32
)

// DebugInfo attributes one instruction to a source position, kept
// verbatim in shape from the teacher's bytecode.DebugInfo.
type DebugInfo struct {
	Line     int
	Column   int
	File     string
	Function string
}

// Param is one entry in a function's ordered parameter list: a name and an
// optional default value, evaluated once at compile time into a constant
// owned by the engine's global scope (§3 "Function/program").
type Param struct {
	Name         string
	HasDefault   bool
	DefaultValue value.Value
}

// Kind distinguishes the three function roles a template's function table
// may hold (§3): a template's top-level body, a `{% block %}`, or a
// `{% macro %}`.
type Kind int

const (
	KindMain Kind = iota
	KindBlock
	KindMacro
)

// Program is one compiled routine: a template's main body, a block, or a
// macro. Renamed from the teacher's Chunk.
type Program struct {
	Name string
	Kind Kind

	Code  []byte
	Debug []DebugInfo // parallel to Code; Debug[pc] is valid for any pc inside the instruction starting there or before it

	ConstStrings []string
	ConstNumbers []float64

	Params []Param

	// NumLocals is the number of template-local ("Tpush/Store") slots
	// this program allocates on the VM's frame-local array.
	NumLocals int
}

// NewProgram creates an empty Program for the given function name and kind.
func NewProgram(name string, kind Kind) *Program {
	return &Program{Name: name, Kind: kind}
}

// AddConstString interns s into the program's string table, returning its
// index. Returns an error once the table exceeds MaxConstStrings.
func (p *Program) AddConstString(s string) (int, error) {
	for i, existing := range p.ConstStrings {
		if existing == s {
			return i, nil
		}
	}
	if len(p.ConstStrings) >= MaxConstStrings {
		return 0, fmt.Errorf("bytecode: constant string table exceeds %d entries", MaxConstStrings)
	}
	p.ConstStrings = append(p.ConstStrings, s)
	return len(p.ConstStrings) - 1, nil
}

// AddConstNumber interns n into the program's number table.
func (p *Program) AddConstNumber(n float64) (int, error) {
	for i, existing := range p.ConstNumbers {
		if existing == n {
			return i, nil
		}
	}
	if len(p.ConstNumbers) >= MaxConstNumbers {
		return 0, fmt.Errorf("bytecode: constant number table exceeds %d entries", MaxConstNumbers)
	}
	p.ConstNumbers = append(p.ConstNumbers, n)
	return len(p.ConstNumbers) - 1, nil
}

// AddParam appends a parameter prototype, bounded at MaxParams (§5).
func (p *Program) AddParam(param Param) error {
	if len(p.Params) >= MaxParams {
		return fmt.Errorf("bytecode: function %q exceeds %d parameters", p.Name, MaxParams)
	}
	p.Params = append(p.Params, param)
	return nil
}

// Emit appends op (with no operands) at the current end of Code, stamping
// dbg for every byte of the instruction, and returns the instruction's
// starting offset.
func (p *Program) Emit(op OpCode, dbg DebugInfo) int {
	pos := len(p.Code)
	p.Code = append(p.Code, byte(op))
	p.Debug = append(p.Debug, dbg)
	return pos
}

// EmitOperand appends one int32 operand (little-endian, 4 bytes) to the
// instruction most recently started by Emit.
func (p *Program) EmitOperand(v int32, dbg DebugInfo) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	p.Code = append(p.Code, buf[:]...)
	for range buf {
		p.Debug = append(p.Debug, dbg)
	}
}

// Emit1 emits op with one operand.
func (p *Program) Emit1(op OpCode, a int32, dbg DebugInfo) int {
	pos := p.Emit(op, dbg)
	p.EmitOperand(a, dbg)
	return pos
}

// Emit2 emits op with two operands.
func (p *Program) Emit2(op OpCode, a, b int32, dbg DebugInfo) int {
	pos := p.Emit(op, dbg)
	p.EmitOperand(a, dbg)
	p.EmitOperand(b, dbg)
	return pos
}

// PatchOperand overwrites the operand at byte offset pos (as returned by
// the index arithmetic around Emit/EmitOperand) with v. Used to back-patch
// forward jump targets once the jump destination is known.
func (p *Program) PatchOperand(pos int, v int32) {
	binary.LittleEndian.PutUint32(p.Code[pos:pos+4], uint32(v))
}

// ReadOp returns the opcode at pc.
func ReadOp(code []byte, pc int) OpCode { return OpCode(code[pc]) }

// ReadOperand reads the int32 operand starting at pc.
func ReadOperand(code []byte, pc int) int32 {
	return int32(binary.LittleEndian.Uint32(code[pc : pc+4]))
}

// GetDebugInfo returns the DebugInfo for the instruction containing pc.
func (p *Program) GetDebugInfo(pc int) DebugInfo {
	if pc < 0 || pc >= len(p.Debug) {
		if len(p.Debug) > 0 {
			return p.Debug[len(p.Debug)-1]
		}
		return DebugInfo{}
	}
	return p.Debug[pc]
}

// Disassemble renders a human-readable listing of the program, used by the
// CLI's `dump` subcommand and by optimizer tests.
func (p *Program) Disassemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; function %s (%s)\n", p.Name, kindName(p.Kind))
	pc := 0
	for pc < len(p.Code) {
		op := ReadOp(p.Code, pc)
		fmt.Fprintf(&b, "%04d  %-12s", pc, op)
		n := Arity(op)
		for i := 0; i < n; i++ {
			operand := ReadOperand(p.Code, pc+1+4*i)
			fmt.Fprintf(&b, " %d", operand)
		}
		b.WriteByte('\n')
		pc += Size(op)
	}
	return b.String()
}

func kindName(k Kind) string {
	switch k {
	case KindMain:
		return "main"
	case KindBlock:
		return "block"
	case KindMacro:
		return "macro"
	default:
		return "?"
	}
}
