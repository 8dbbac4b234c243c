// Package vm implements the fetch-decode-execute loop (§4.6): a
// single-threaded, stack-based interpreter over internal/bytecode.Program.
// Call-frame-with-locals-slice, a VM-owned lastError field, and bounded
// maxCallDepth/maxStackDepth configuration mirror the shape of the
// teacher's internal/vm.EnhancedVM (EnhancedCallFrame, NewVM constructor,
// registerBuiltins-style setup), adapted from a register machine's chunk
// model to this engine's template/block/macro Program model.
package vm

import (
	"fmt"
	"io"
	"strings"

	"ajj/internal/ajjerr"
	"ajj/internal/builtin"
	"ajj/internal/bytecode"
	"ajj/internal/gc"
	"ajj/internal/upvalue"
	"ajj/internal/value"
)

// FunctionTable is the render-ready unit the engine hands the VM: the
// combined view of one extends chain, resolved leaf-to-root. Blocks[name]
// is ordered leaf-first (index 0 is the most-derived override actually
// invoked by a `{% block %}` call site; later entries are what `super()`
// walks toward). Macros is leaf-priority: the first template along the
// chain (leaf first) that defines a given macro name wins.
type FunctionTable struct {
	Name   string
	Main   *bytecode.Program
	Blocks map[string][]*bytecode.Program
	Macros map[string]*bytecode.Program
}

// Loader resolves a template or JSON path referenced by include/import to
// something the VM can execute or bind, without the VM depending on
// internal/engine (which depends on the VM). Implemented by the engine.
type Loader interface {
	Load(path string) (*FunctionTable, error)
	LoadJSON(scope *gc.Scope, path string) (value.Value, error)
}

// Options bounds the resources a single render may consume (§5); zero
// values fall back to the defaults below.
type Options struct {
	MaxCallDepth    int
	MaxStackDepth   int
	MaxIncludeDepth int
}

const (
	defaultMaxCallDepth    = 512
	defaultMaxStackDepth   = 4096
	defaultMaxIncludeDepth = 128
)

// frame is one call's execution state: its own locals array (distinct
// from the VM's shared operand stack), its program counter, and the GC
// scope currently active for it (advanced in place by ENTER/EXIT, not a
// separate scope stack, since gc.Scope already chains to its parent).
type frame struct {
	prog   *bytecode.Program
	locals []value.Value
	pc     int
	scope  *gc.Scope
	argc   int
}

// VM executes one render at a time; it is not safe for concurrent use
// (§5: the runtime and transient scopes are per-render mutable state).
type VM struct {
	loader Loader
	out    io.Writer

	rootScope *gc.Scope
	upvalues  *upvalue.Table

	stack  []value.Value
	frames []*frame
	ftPath []*FunctionTable // include/import nesting of "current" function table

	maxCallDepth    int
	maxStackDepth   int
	maxIncludeDepth int
	includeDepth    int

	lastError error
}

// New creates a VM writing rendered output to out and resolving
// include/import/extends targets through loader.
func New(loader Loader, out io.Writer, opts Options) *VM {
	v := &VM{
		loader:          loader,
		out:             out,
		rootScope:       gc.NewRootScope(),
		upvalues:        upvalue.New(nil),
		maxCallDepth:    opts.MaxCallDepth,
		maxStackDepth:   opts.MaxStackDepth,
		maxIncludeDepth: opts.MaxIncludeDepth,
	}
	if v.maxCallDepth == 0 {
		v.maxCallDepth = defaultMaxCallDepth
	}
	if v.maxStackDepth == 0 {
		v.maxStackDepth = defaultMaxStackDepth
	}
	if v.maxIncludeDepth == 0 {
		v.maxIncludeDepth = defaultMaxIncludeDepth
	}
	return v
}

// LastError returns the most recent render's failure, or nil.
func (vm *VM) LastError() error { return vm.lastError }

// BindUpvalue and UnbindUpvalue expose the root upvalue table to the host
// (internal/engine) for environment functions and per-template upvalue
// registration scoped to a single render (§6) — the same Set/Delete
// per-name stack UPVALUE_SET/UPVALUE_DEL use internally, just reachable
// before the first frame is pushed.
func (vm *VM) BindUpvalue(name string, v value.Value) {
	vm.upvalues.Set(name, v, upvalue.Override)
}

func (vm *VM) UnbindUpvalue(name string) {
	vm.upvalues.Delete(name)
}

// RootScope exposes the render's root GC scope so the engine can allocate
// long-lived values (environment objects, per-render upvalues) into it
// before Render runs.
func (vm *VM) RootScope() *gc.Scope { return vm.rootScope }

// Render executes ft.Main to completion into a buffer and writes the
// buffer to out once it succeeds; a failed render writes nothing.
func (vm *VM) Render(ft *FunctionTable) error {
	out, err := vm.renderToBuffer(ft)
	if err != nil {
		vm.lastError = err
		return err
	}
	if _, err := io.WriteString(vm.out, out); err != nil {
		return err
	}
	return nil
}

// renderToBuffer runs ft.Main to completion against a private buffer and
// returns its accumulated text, used both by the top-level Render and by
// nested {% include %} (§4.6: "renders it into a buffer... writes the
// buffer to the current I/O sink").
func (vm *VM) renderToBuffer(ft *FunctionTable) (string, error) {
	savedOut := vm.out
	var buf strings.Builder
	vm.out = &buf
	defer func() { vm.out = savedOut }()

	vm.ftPath = append(vm.ftPath, ft)
	defer func() { vm.ftPath = vm.ftPath[:len(vm.ftPath)-1] }()

	if len(vm.frames) >= vm.maxCallDepth {
		return "", vm.boundError("call stack depth exceeded")
	}

	fr := &frame{prog: ft.Main, locals: make([]value.Value, ft.Main.NumLocals), scope: vm.currentScope().NewChild()}
	vm.frames = append(vm.frames, fr)
	baseline := len(vm.frames) - 1

	self := newTemplateObject(fr.scope, ft.Name)
	vm.upvalues.Set("self", self, upvalue.Override)
	defer vm.upvalues.Delete("self")

	if err := vm.run(baseline); err != nil {
		return buf.String(), err
	}
	return buf.String(), nil
}

func (vm *VM) currentScope() *gc.Scope {
	if len(vm.frames) == 0 {
		return vm.rootScope
	}
	return vm.top().scope
}

func (vm *VM) top() *frame { return vm.frames[len(vm.frames)-1] }

// run executes instructions until the frame stack unwinds back to
// baseline (the depth right before the frame under execution was pushed).
func (vm *VM) run(baseline int) error {
	for len(vm.frames) > baseline {
		if err := vm.step(); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) step() error {
	fr := vm.top()
	if fr.pc >= len(fr.prog.Code) {
		return vm.doHalt()
	}
	op := bytecode.ReadOp(fr.prog.Code, fr.pc)
	switch op {
	case bytecode.OpHalt:
		return vm.doHalt()
	case bytecode.OpError:
		return vm.runtimeErrorf("ERROR instruction reached")

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpPow, bytecode.OpDivtruct, bytecode.OpEq, bytecode.OpNe, bytecode.OpLt,
		bytecode.OpLe, bytecode.OpGt, bytecode.OpGe, bytecode.OpIn, bytecode.OpNin,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpCat:
		fr.pc++
		return vm.execBinary(op)
	case bytecode.OpNeg, bytecode.OpNot, bytecode.OpBool, bytecode.OpLen:
		fr.pc++
		return vm.execUnary(op)

	case bytecode.OpCall:
		name, argc := vm.operand2(fr)
		fr.pc += 9
		return vm.execCall(fr.prog.ConstStrings[name], int(argc))
	case bytecode.OpBcall:
		name, argc := vm.operand2(fr)
		fr.pc += 9
		return vm.execBcall(fr.prog.ConstStrings[name], int(argc))
	case bytecode.OpAttrCall:
		name, argc := vm.operand2(fr)
		fr.pc += 9
		return vm.execAttrCall(fr.prog.ConstStrings[name], int(argc))
	case bytecode.OpRet:
		fr.pc++
		return vm.doRet()
	case bytecode.OpPrint:
		fr.pc++
		v := vm.pop()
		if _, err := io.WriteString(vm.out, builtin.Display(v)); err != nil {
			return err
		}
		return nil
	case bytecode.OpPop:
		n := vm.operand1(fr)
		fr.pc += 5
		for i := 0; i < int(n); i++ {
			vm.pop()
		}
		return nil

	case bytecode.OpTpush, bytecode.OpBpush:
		k := vm.operand1(fr)
		fr.pc += 5
		return vm.push(fr.locals[k])
	case bytecode.OpStore:
		k := vm.operand1(fr)
		fr.pc += 5
		fr.locals[k] = vm.pop()
		return nil
	case bytecode.OpMove:
		a, b := vm.operand2(fr)
		fr.pc += 9
		fr.locals[a], fr.locals[b] = fr.locals[b], fr.locals[a]
		return nil
	case bytecode.OpLift:
		slot, levels := vm.operand2(fr)
		fr.pc += 9
		target := fr.scope
		for i := int32(0); i < levels; i++ {
			if target.Parent() == nil {
				break
			}
			target = target.Parent()
		}
		if moved, err := gc.Move(fr.locals[slot], target); err == nil {
			fr.locals[slot] = moved
		}
		return nil

	case bytecode.OpLstr:
		idx := vm.operand1(fr)
		fr.pc += 5
		return vm.push(gc.NewConstString(fr.prog.ConstStrings[idx]))
	case bytecode.OpLnum:
		idx := vm.operand1(fr)
		fr.pc += 5
		return vm.push(value.Number(fr.prog.ConstNumbers[idx]))
	case bytecode.OpLimm:
		n := vm.operand1(fr)
		fr.pc += 5
		return vm.push(value.Number(float64(n)))
	case bytecode.OpLtrue:
		fr.pc++
		return vm.push(value.Boolean(true))
	case bytecode.OpLfalse:
		fr.pc++
		return vm.push(value.Boolean(false))
	case bytecode.OpLnone:
		fr.pc++
		return vm.push(value.None())
	case bytecode.OpLzero:
		fr.pc++
		return vm.push(value.Number(0))
	case bytecode.OpLlist:
		count := vm.operand1(fr)
		fr.pc += 5
		items := make([]value.Value, count)
		for i := int(count) - 1; i >= 0; i-- {
			items[i] = vm.pop()
		}
		return vm.push(builtin.NewList(fr.scope, items))
	case bytecode.OpLdict:
		count := vm.operand1(fr)
		fr.pc += 5
		keys := make([]string, count)
		vals := make([]value.Value, count)
		for i := int(count) - 1; i >= 0; i-- {
			vals[i] = vm.pop()
			k := vm.pop()
			keys[i] = builtin.Display(k)
		}
		return vm.push(builtin.NewDictFrom(fr.scope, keys, vals))

	case bytecode.OpAttrGet:
		fr.pc++
		key := vm.pop()
		obj := vm.pop()
		v, err := vm.attrGet(obj, key)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(v)
	case bytecode.OpAttrSet:
		fr.pc++
		val := vm.pop()
		key := vm.pop()
		obj := vm.pop()
		if err := vm.attrSet(obj, key, val); err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return nil
	case bytecode.OpAttrPush:
		fr.pc++
		val := vm.pop()
		obj := vm.pop()
		if err := vm.attrPush(obj, val); err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return nil

	case bytecode.OpUpvalueGet:
		idx := vm.operand1(fr)
		fr.pc += 5
		v, err := vm.upvalueGet(fr.prog.ConstStrings[idx])
		if err != nil {
			return err
		}
		return vm.push(v)
	case bytecode.OpUpvalueSet:
		idx, mode := vm.operand2(fr)
		fr.pc += 9
		v := vm.pop()
		vm.upvalues.Set(fr.prog.ConstStrings[idx], v, upvalueMode(mode))
		return nil
	case bytecode.OpUpvalueDel:
		idx := vm.operand1(fr)
		fr.pc += 5
		vm.upvalues.Delete(fr.prog.ConstStrings[idx])
		return nil

	case bytecode.OpJmp:
		pos := vm.operand1(fr)
		fr.pc = int(pos)
		return nil
	case bytecode.OpJt:
		pos := vm.operand1(fr)
		fr.pc += 5
		if builtin.Truthy(vm.peek()) {
			fr.pc = int(pos)
		}
		return nil
	case bytecode.OpJf:
		pos := vm.operand1(fr)
		fr.pc += 5
		if !builtin.Truthy(vm.peek()) {
			fr.pc = int(pos)
		}
		return nil
	case bytecode.OpJlt:
		pos := vm.operand1(fr)
		fr.pc += 5
		if builtin.Truthy(vm.pop()) {
			fr.pc = int(pos)
		}
		return nil
	case bytecode.OpJlf:
		pos := vm.operand1(fr)
		fr.pc += 5
		if !builtin.Truthy(vm.pop()) {
			fr.pc = int(pos)
		}
		return nil
	case bytecode.OpJmpc:
		scopes, pos := vm.operand2(fr)
		fr.pc = int(pos)
		for i := int32(0); i < scopes; i++ {
			if fr.scope.Parent() == nil {
				break
			}
			old := fr.scope
			fr.scope = old.Parent()
			old.Destroy()
		}
		return nil
	case bytecode.OpJept:
		pos := vm.operand1(fr)
		fr.pc += 5
		if !builtin.Truthy(vm.peek()) {
			fr.pc = int(pos)
		}
		return nil

	case bytecode.OpIterStart, bytecode.OpIterHas, bytecode.OpIterMove, bytecode.OpIterDeref:
		return vm.execIter(op)

	case bytecode.OpEnter:
		fr.pc++
		fr.scope = fr.scope.NewChild()
		return nil
	case bytecode.OpExit:
		fr.pc++
		old := fr.scope
		if old.Parent() != nil {
			fr.scope = old.Parent()
		}
		old.Destroy()
		return nil

	case bytecode.OpInclude:
		mode, count := vm.operand2(fr)
		fr.pc += 9
		return vm.execInclude(int(mode), int(count))
	case bytecode.OpImport:
		idx := vm.operand1(fr)
		fr.pc += 5
		return vm.execImport(fr.prog.ConstStrings[idx])
	case bytecode.OpExtends:
		fr.pc++
		return nil // resolved structurally by the engine before Render; see DESIGN.md

	case bytecode.OpNop0:
		fr.pc++
		return nil
	case bytecode.OpNop1:
		fr.pc += 5
		return nil
	case bytecode.OpNop2:
		fr.pc += 9
		return nil

	default:
		return vm.runtimeErrorf("unimplemented opcode %s", op)
	}
}

func (vm *VM) doHalt() error {
	fr := vm.frames[len(vm.frames)-1]
	fr.scope.Destroy()
	vm.frames = vm.frames[:len(vm.frames)-1]
	return nil
}

func (vm *VM) operand1(fr *frame) int32 {
	return bytecode.ReadOperand(fr.prog.Code, fr.pc+1)
}

func (vm *VM) operand2(fr *frame) (int32, int32) {
	return bytecode.ReadOperand(fr.prog.Code, fr.pc+1), bytecode.ReadOperand(fr.prog.Code, fr.pc+5)
}

func upvalueMode(m int32) upvalue.Mode {
	if m == bytecode.UpvalueOptional {
		return upvalue.Optional
	}
	return upvalue.Override
}

func (vm *VM) push(v value.Value) error {
	if len(vm.stack) >= vm.maxStackDepth {
		return vm.boundError("value stack depth exceeded")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() value.Value {
	if len(vm.stack) == 0 {
		return value.None()
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek() value.Value {
	if len(vm.stack) == 0 {
		return value.None()
	}
	return vm.stack[len(vm.stack)-1]
}

func (vm *VM) attrGet(obj, key value.Value) (value.Value, error) {
	switch obj.Kind {
	case value.KindString:
		return vm.stringIndex(obj, key)
	case value.KindObject:
		o := gc.ObjectOf(obj)
		if o.Slots != nil && o.Slots.AttrGet != nil {
			return o.Slots.AttrGet(o, key)
		}
		return value.Value{}, fmt.Errorf("%s has no attributes", obj.TypeName())
	default:
		return value.Value{}, fmt.Errorf("%s has no attributes", obj.TypeName())
	}
}

func (vm *VM) stringIndex(s, key value.Value) (value.Value, error) {
	if key.Kind != value.KindNumber {
		return value.Value{}, fmt.Errorf("string index must be a number")
	}
	r := []rune(gc.StringOf(s))
	i := int(key.Num)
	if i < 0 {
		i += len(r)
	}
	if i < 0 || i >= len(r) {
		return value.Value{}, fmt.Errorf("string index out of range")
	}
	return gc.NewConstString(string(r[i])), nil
}

func (vm *VM) attrSet(obj, key, val value.Value) error {
	if obj.Kind != value.KindObject {
		return fmt.Errorf("%s does not support item assignment", obj.TypeName())
	}
	o := gc.ObjectOf(obj)
	if o.Slots == nil || o.Slots.AttrSet == nil {
		return fmt.Errorf("%s does not support item assignment", obj.TypeName())
	}
	return o.Slots.AttrSet(o, key, val)
}

func (vm *VM) attrPush(obj, val value.Value) error {
	if obj.Kind != value.KindObject {
		return fmt.Errorf("%s does not support append", obj.TypeName())
	}
	o := gc.ObjectOf(obj)
	if o.Slots == nil || o.Slots.AttrPush == nil {
		return fmt.Errorf("%s does not support append", obj.TypeName())
	}
	return o.Slots.AttrPush(o, val)
}

func (vm *VM) boundError(format string, args ...interface{}) error {
	return ajjerr.New(ajjerr.Runtime, vm.loc(), format, args...)
}

func (vm *VM) runtimeErrorf(format string, args ...interface{}) error {
	return ajjerr.New(ajjerr.Runtime, vm.loc(), format, args...).WithStack(vm.stackFrames())
}

func (vm *VM) loc() ajjerr.Location {
	if len(vm.frames) == 0 {
		return ajjerr.Location{}
	}
	fr := vm.top()
	dbg := fr.prog.GetDebugInfo(fr.pc)
	return ajjerr.Location{File: dbg.File, Line: dbg.Line, Column: dbg.Column}
}

func (vm *VM) stackFrames() []ajjerr.Frame {
	frames := make([]ajjerr.Frame, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := vm.frames[i]
		dbg := fr.prog.GetDebugInfo(fr.pc)
		frames = append(frames, ajjerr.Frame{
			Function: fr.prog.Name,
			Location: ajjerr.Location{File: dbg.File, Line: dbg.Line, Column: dbg.Column},
		})
	}
	return frames
}
