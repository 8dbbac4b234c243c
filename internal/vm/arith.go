package vm

import (
	"strings"

	"ajj/internal/builtin"
	"ajj/internal/bytecode"
	"ajj/internal/gc"
	"ajj/internal/value"
)

// execBinary handles every two-operand opcode that isn't control flow:
// arithmetic, comparison, membership, logical AND/OR, and string CAT.
func (vm *VM) execBinary(op bytecode.OpCode) error {
	b := vm.pop()
	a := vm.pop()
	switch op {
	case bytecode.OpAdd:
		if a.Kind == value.KindString || b.Kind == value.KindString {
			return vm.push(gc.NewDynamicString(vm.currentScope(), builtin.Display(a)+builtin.Display(b)))
		}
		return vm.arith(a, b, func(x, y float64) float64 { return x + y })
	case bytecode.OpSub:
		return vm.arith(a, b, func(x, y float64) float64 { return x - y })
	case bytecode.OpMul:
		return vm.arith(a, b, func(x, y float64) float64 { return x * y })
	case bytecode.OpDiv:
		return vm.divide(a, b, false)
	case bytecode.OpDivtruct:
		return vm.divide(a, b, true)
	case bytecode.OpMod:
		return vm.modulo(a, b)
	case bytecode.OpPow:
		return vm.power(a, b)
	case bytecode.OpEq:
		return vm.push(value.Boolean(builtin.Eq(a, b)))
	case bytecode.OpNe:
		return vm.push(value.Boolean(!builtin.Eq(a, b)))
	case bytecode.OpLt:
		lt, err := builtin.Less(a, b)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(value.Boolean(lt))
	case bytecode.OpLe:
		lt, err := builtin.Less(b, a)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(value.Boolean(!lt))
	case bytecode.OpGt:
		lt, err := builtin.Less(b, a)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(value.Boolean(lt))
	case bytecode.OpGe:
		lt, err := builtin.Less(a, b)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(value.Boolean(!lt))
	case bytecode.OpIn:
		in, err := vm.contains(a, b)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(value.Boolean(in))
	case bytecode.OpNin:
		in, err := vm.contains(a, b)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(value.Boolean(!in))
	case bytecode.OpAnd:
		return vm.push(value.Boolean(builtin.Truthy(a) && builtin.Truthy(b)))
	case bytecode.OpOr:
		return vm.push(value.Boolean(builtin.Truthy(a) || builtin.Truthy(b)))
	case bytecode.OpCat:
		return vm.push(gc.NewDynamicString(vm.currentScope(), builtin.Display(a)+builtin.Display(b)))
	default:
		return vm.runtimeErrorf("unimplemented binary opcode %s", op)
	}
}

func (vm *VM) arith(a, b value.Value, f func(x, y float64) float64) error {
	if a.Kind != value.KindNumber || b.Kind != value.KindNumber {
		return vm.runtimeErrorf("unsupported operand types: %s and %s", a.TypeName(), b.TypeName())
	}
	return vm.push(value.Number(f(a.Num, b.Num)))
}

func (vm *VM) divide(a, b value.Value, truncate bool) error {
	if a.Kind != value.KindNumber || b.Kind != value.KindNumber {
		return vm.runtimeErrorf("unsupported operand types: %s and %s", a.TypeName(), b.TypeName())
	}
	if b.Num == 0 {
		return vm.runtimeErrorf("division by zero")
	}
	q := a.Num / b.Num
	if truncate {
		q = float64(int64(q))
	}
	return vm.push(value.Number(q))
}

func (vm *VM) modulo(a, b value.Value) error {
	if a.Kind != value.KindNumber || b.Kind != value.KindNumber {
		return vm.runtimeErrorf("unsupported operand types: %s and %s", a.TypeName(), b.TypeName())
	}
	if b.Num == 0 {
		return vm.runtimeErrorf("modulo by zero")
	}
	ai, bi := int64(a.Num), int64(b.Num)
	return vm.push(value.Number(float64(ai % bi)))
}

func (vm *VM) power(a, b value.Value) error {
	if a.Kind != value.KindNumber || b.Kind != value.KindNumber {
		return vm.runtimeErrorf("unsupported operand types: %s and %s", a.TypeName(), b.TypeName())
	}
	result := 1.0
	n := b.Num
	neg := n < 0
	if neg {
		n = -n
	}
	for i := 0; i < int(n); i++ {
		result *= a.Num
	}
	if neg {
		result = 1 / result
	}
	return vm.push(value.Number(result))
}

func (vm *VM) contains(item, seq value.Value) (bool, error) {
	if seq.Kind == value.KindString {
		if item.Kind != value.KindString {
			return false, nil
		}
		return strings.Contains(gc.StringOf(seq), gc.StringOf(item)), nil
	}
	if !builtin.Iterable(seq) {
		return false, nil
	}
	if m, _, ok := builtin.AsDict(seq); ok {
		_, found := m[builtin.Display(item)]
		return found, nil
	}
	if items, ok := builtin.AsList(seq); ok {
		for _, it := range items {
			if builtin.Eq(it, item) {
				return true, nil
			}
		}
	}
	return false, nil
}

// execUnary handles NEG/NOT/BOOL/LEN, all single-operand stack operations.
func (vm *VM) execUnary(op bytecode.OpCode) error {
	a := vm.pop()
	switch op {
	case bytecode.OpNeg:
		if a.Kind != value.KindNumber {
			return vm.runtimeErrorf("bad operand type for unary -: %s", a.TypeName())
		}
		return vm.push(value.Number(-a.Num))
	case bytecode.OpNot:
		return vm.push(value.Boolean(!builtin.Truthy(a)))
	case bytecode.OpBool:
		return vm.push(value.Boolean(builtin.Truthy(a)))
	case bytecode.OpLen:
		n, err := builtin.Len(a)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(value.Number(float64(n)))
	default:
		return vm.runtimeErrorf("unimplemented unary opcode %s", op)
	}
}
