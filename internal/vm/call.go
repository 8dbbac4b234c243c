package vm

import (
	"fmt"
	"strings"

	"ajj/internal/builtin"
	"ajj/internal/bytecode"
	"ajj/internal/gc"
	"ajj/internal/upvalue"
	"ajj/internal/value"
)

// funcData backs a first-class function value: __func__, __func__:name,
// caller, and recursive-for's loop binding (§4.2, §4.3). ft is the
// function table the program belongs to, needed so a macro that itself
// calls other macros or blocks resolves them against the right template;
// it is nil for values (like caller) that never need block/macro lookup
// of their own.
type funcData struct {
	prog *bytecode.Program
	ft   *FunctionTable
}

var funcSlots = &gc.Slots{
	Display: func(o *gc.Object) string {
		fd := o.Data.(*funcData)
		return "<function " + fd.prog.Name + ">"
	},
}

// NewFunctionValue wraps prog as a callable first-class value bindable to
// an upvalue (caller, loop, __func__) or storable in a local/list/dict.
func NewFunctionValue(scope *gc.Scope, prog *bytecode.Program, ft *FunctionTable) value.Value {
	return gc.NewObject(scope, "function", funcSlots, &funcData{prog: prog, ft: ft})
}

// moduleData backs the value `{% import "x.html" as m %}` binds m to:
// m.macro_name(...) resolves through ATTR_CALL against ft.Macros.
type moduleData struct {
	ft *FunctionTable
}

var moduleSlots = &gc.Slots{
	Display: func(o *gc.Object) string {
		return "<module " + o.Data.(*moduleData).ft.Name + ">"
	},
	AttrGet: func(o *gc.Object, key value.Value) (value.Value, error) {
		md := o.Data.(*moduleData)
		name := builtin.Display(key)
		prog, ok := md.ft.Macros[name]
		if !ok {
			return value.Value{}, fmt.Errorf("module %s has no macro %q", md.ft.Name, name)
		}
		return NewFunctionValue(o.Scope, prog, md.ft), nil
	},
}

// NewModuleValue wraps ft as the value bound by a plain (non-JSON) import.
func NewModuleValue(scope *gc.Scope, ft *FunctionTable) value.Value {
	return gc.NewObject(scope, "module", moduleSlots, &moduleData{ft: ft})
}

// selfData backs the `self` upvalue every template render binds: §3's
// "self.block_name()" re-invocation of a block from within its own
// template, dispatched through ATTR_CALL rather than plain CALL.
type selfData struct{ name string }

var selfSlots = &gc.Slots{
	Display: func(o *gc.Object) string { return "<template " + o.Data.(*selfData).name + ">" },
}

func newTemplateObject(scope *gc.Scope, name string) value.Value {
	return gc.NewObject(scope, "template", selfSlots, &selfData{name: name})
}

func (vm *VM) currentFT() *FunctionTable {
	if len(vm.ftPath) == 0 {
		return nil
	}
	return vm.ftPath[len(vm.ftPath)-1]
}

func cursorName(block string) string { return "__super_cursor__:" + block }

// upvalueGet implements UPVALUE_GET: an unbound name resolves to none
// rather than an error (§4.2 — the same "absence means none" rule
// testDefined relies on). A "__func__:"+name key (the call-block's way of
// grabbing its own freshly-compiled macro without a CALL) resolves
// directly against the active function table's macros rather than the
// upvalue chain.
func (vm *VM) upvalueGet(name string) (value.Value, error) {
	if rest, ok := cutPrefix(name, "__func__:"); ok {
		if ft := vm.currentFT(); ft != nil {
			if prog, ok := ft.Macros[rest]; ok {
				return NewFunctionValue(vm.currentScope(), prog, ft), nil
			}
		}
		return value.None(), nil
	}
	if v, ok := vm.upvalues.FindChain(name); ok {
		return v, nil
	}
	return value.None(), nil
}

// execCall resolves and invokes a plain CALL: the upvalue chain first
// (caller/loop/__func__ and any upvalue-bound macro import alias), then
// the __block__:/__super__: cursor mechanism, then the active function
// table's own macros, then the registered builtin functions (§4.6).
func (vm *VM) execCall(name string, argc int) error {
	args := vm.popN(argc)

	if v, ok := vm.upvalues.FindChain(name); ok {
		result, err := vm.invokeValue(v, args)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(result)
	}
	if rest, ok := cutPrefix(name, "__block__:"); ok {
		result, err := vm.callBlockValue(rest, args)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(result)
	}
	if rest, ok := cutPrefix(name, "__super__:"); ok {
		result, err := vm.callSuperValue(rest, args)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(result)
	}
	if ft := vm.currentFT(); ft != nil {
		if prog, ok := ft.Macros[name]; ok {
			result, err := vm.callProgram(prog, args, ft)
			if err != nil {
				return vm.runtimeErrorf("%v", err)
			}
			return vm.push(result)
		}
	}
	if fn, ok := builtin.Funcs[name]; ok {
		v, err := fn(vm.currentScope(), args)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(v)
	}
	return vm.runtimeErrorf("call to undefined name %q", name)
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

// execBcall resolves BCALL "filter:"+name / "test:"+name, the subject
// already at args[0] (§4.7's calling convention for filters and tests).
func (vm *VM) execBcall(name string, argc int) error {
	args := vm.popN(argc)
	switch {
	case strings.HasPrefix(name, "filter:"):
		fname := strings.TrimPrefix(name, "filter:")
		fn, ok := builtin.Filters[fname]
		if !ok {
			return vm.runtimeErrorf("unknown filter %q", fname)
		}
		v, err := fn(vm.currentScope(), args)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(v)
	case strings.HasPrefix(name, "test:"):
		tname := strings.TrimPrefix(name, "test:")
		fn, ok := builtin.Tests[tname]
		if !ok {
			return vm.runtimeErrorf("unknown test %q", tname)
		}
		v, err := fn(vm.currentScope(), args)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(v)
	default:
		return vm.runtimeErrorf("unknown builtin call %q", name)
	}
}

// execAttrCall resolves `receiver.name(args...)`: receiver was pushed
// before the arguments, so it sits argc slots below the top (§4's
// compilePostfix DOT+LPAREN convention).
func (vm *VM) execAttrCall(name string, argc int) error {
	args := vm.popN(argc)
	recv := vm.pop()
	v, err := vm.attrCall(recv, name, args)
	if err != nil {
		return vm.runtimeErrorf("%v", err)
	}
	return vm.push(v)
}

func (vm *VM) attrCall(recv value.Value, name string, args []value.Value) (value.Value, error) {
	if recv.Kind != value.KindObject {
		return value.Value{}, fmt.Errorf("%s has no method %q", recv.TypeName(), name)
	}
	o := gc.ObjectOf(recv)
	switch data := o.Data.(type) {
	case *moduleData:
		prog, ok := data.ft.Macros[name]
		if !ok {
			return value.Value{}, fmt.Errorf("module %s has no macro %q", data.ft.Name, name)
		}
		return vm.callProgram(prog, args, data.ft)
	case *selfData:
		return vm.callBlockValue(name, args)
	}
	if o.Slots != nil && o.Slots.Method != nil {
		return o.Slots.Method(o, vm.currentScope(), name, args)
	}
	return value.Value{}, fmt.Errorf("%s has no method %q", recv.TypeName(), name)
}

func (vm *VM) invokeValue(v value.Value, args []value.Value) (value.Value, error) {
	if v.Kind != value.KindObject {
		return value.Value{}, fmt.Errorf("%s is not callable", v.TypeName())
	}
	o := gc.ObjectOf(v)
	fd, ok := o.Data.(*funcData)
	if !ok {
		return value.Value{}, fmt.Errorf("%s is not callable", v.TypeName())
	}
	return vm.callProgram(fd.prog, args, fd.ft)
}

func (vm *VM) callBlockValue(name string, args []value.Value) (value.Value, error) {
	ft := vm.currentFT()
	if ft == nil {
		return value.Value{}, fmt.Errorf("no active template for block %q", name)
	}
	chain, ok := ft.Blocks[name]
	if !ok || len(chain) == 0 {
		return value.Value{}, fmt.Errorf("no block named %q", name)
	}
	vm.upvalues.Set(cursorName(name), value.Number(1), upvalue.Override)
	defer vm.upvalues.Delete(cursorName(name))
	return vm.callProgram(chain[0], args, ft)
}

func (vm *VM) callSuperValue(name string, args []value.Value) (value.Value, error) {
	ft := vm.currentFT()
	if ft == nil {
		return value.Value{}, fmt.Errorf("no active template for block %q", name)
	}
	chain, ok := ft.Blocks[name]
	if !ok {
		return value.Value{}, fmt.Errorf("no block named %q", name)
	}
	cursor := 1
	if v, ok := vm.upvalues.FindChain(cursorName(name)); ok && v.Kind == value.KindNumber {
		cursor = int(v.Num)
	}
	if cursor >= len(chain) {
		return value.Value{}, fmt.Errorf("no parent block for %q", name)
	}
	vm.upvalues.Set(cursorName(name), value.Number(float64(cursor+1)), upvalue.Override)
	defer vm.upvalues.Delete(cursorName(name))
	return vm.callProgram(chain[cursor], args, ft)
}

// callProgram pushes a fresh call frame for prog, binds args to its
// parameter slots, executes it to its RET, and returns the value RET
// delivered. ft (may be nil) becomes the active function table for any
// CALL/block/super resolution inside prog's own body.
func (vm *VM) callProgram(prog *bytecode.Program, args []value.Value, ft *FunctionTable) (value.Value, error) {
	if len(vm.frames) >= vm.maxCallDepth {
		return value.Value{}, vm.boundError("call stack depth exceeded")
	}
	locals, vargs, err := vm.bindParams(prog, args)
	if err != nil {
		return value.Value{}, err
	}
	scope := vm.currentScope().NewChild()
	fr := &frame{prog: prog, locals: locals, scope: scope, argc: len(args)}
	vm.frames = append(vm.frames, fr)
	baseline := len(vm.frames) - 1

	if ft != nil {
		vm.ftPath = append(vm.ftPath, ft)
		defer func() { vm.ftPath = vm.ftPath[:len(vm.ftPath)-1] }()
	}

	// __func__/__argnum__/vargs (bc.h's FUNC_INDEX/ARGNUM_INDEX/VARGS_INDEX
	// slots, §12): every macro/function body sees who it is, how many
	// arguments it actually got, and whatever came in past its declared
	// parameter list. `caller` is deliberately left alone here: it's
	// owned by the `{% call %}` block feature (compileCallBlock), which
	// binds it to the captured body, not to this slot's raw-C meaning.
	vargsVal := value.None()
	if len(vargs) > 0 {
		vargsVal = builtin.NewList(scope, vargs)
	}
	vm.upvalues.Set("__func__", NewFunctionValue(scope, prog, ft), upvalue.Override)
	vm.upvalues.Set("__argnum__", value.Number(float64(len(args))), upvalue.Override)
	vm.upvalues.Set("vargs", vargsVal, upvalue.Override)
	defer func() {
		vm.upvalues.Delete("__func__")
		vm.upvalues.Delete("__argnum__")
		vm.upvalues.Delete("vargs")
	}()

	if err := vm.run(baseline); err != nil {
		return value.Value{}, err
	}
	return vm.pop(), nil
}

// bindParams binds the declared parameter slots and returns whatever
// trailing arguments were passed beyond the declared list (ajj.h's
// VARGS_INDEX slot, §12): unlike a fixed-arity call convention, ajj lets
// any macro/function be called with extra positional arguments, which
// show up inside the body as the `vargs` list.
func (vm *VM) bindParams(prog *bytecode.Program, args []value.Value) ([]value.Value, []value.Value, error) {
	locals := make([]value.Value, prog.NumLocals)
	for i, p := range prog.Params {
		if i < len(args) {
			locals[i] = args[i]
			continue
		}
		if !p.HasDefault {
			return nil, nil, fmt.Errorf("%s: missing required parameter %q", prog.Name, p.Name)
		}
		locals[i] = materializeDefault(p.DefaultValue)
	}
	var vargs []value.Value
	if len(args) > len(prog.Params) {
		vargs = args[len(prog.Params):]
	}
	return locals, vargs, nil
}

// materializeDefault turns a compile-time default value into a runtime
// one: compileConstExpr has no GC scope to allocate into, so a string
// default is stored as a raw Go string in Ref rather than a *gc.Object,
// and must become a real const-string the first time it's actually bound.
func materializeDefault(v value.Value) value.Value {
	if v.Kind == value.KindString {
		if s, ok := v.Ref.(string); ok {
			return gc.NewConstString(s)
		}
	}
	return v
}

// doRet implements RET: pop the return value, lift it to the caller's
// scope before the callee's scope is destroyed (so a dynamic string
// allocated inside the call survives), tear down the frame, and leave the
// lifted value on top of the shared stack for the caller to consume.
func (vm *VM) doRet() error {
	fr := vm.top()
	retVal := vm.pop()

	var callerScope *gc.Scope
	if len(vm.frames) >= 2 {
		callerScope = vm.frames[len(vm.frames)-2].scope
	} else {
		callerScope = vm.rootScope
	}
	moved, err := gc.Move(retVal, callerScope)
	if err != nil {
		return vm.runtimeErrorf("%v", err)
	}
	fr.scope.Destroy()
	vm.frames = vm.frames[:len(vm.frames)-1]
	return vm.push(moved)
}

func (vm *VM) popN(n int) []value.Value {
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	return args
}
