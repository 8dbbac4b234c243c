package vm

import (
	"ajj/internal/bytecode"
	"ajj/internal/gc"
	"ajj/internal/value"
)

// execIter implements ITER_START/HAS/MOVE/DEREF. Per opcodes.go's stack
// discipline: START peeks the sequence and pushes a cursor above it; HAS
// peeks both and pushes a bool; MOVE pops the old cursor and pushes the
// advanced one; DEREF peeks both and pushes the dereferenced value(s)
// without disturbing either. String sequences iterate by rune; object
// sequences delegate to Slots.IterStart/Move/Has/GetKey/GetVal.
func (vm *VM) execIter(op bytecode.OpCode) error {
	fr := vm.top()
	switch op {
	case bytecode.OpIterStart:
		fr.pc++
		seq := vm.peek()
		cursor := 0
		if seq.Kind == value.KindObject {
			o := gc.ObjectOf(seq)
			if !o.Slots.Iterable() {
				return vm.runtimeErrorf("%s is not iterable", seq.TypeName())
			}
			cursor = o.Slots.IterStart(o)
		} else if seq.Kind != value.KindString {
			return vm.runtimeErrorf("%s is not iterable", seq.TypeName())
		}
		return vm.push(value.Iterator(cursor))

	case bytecode.OpIterHas:
		fr.pc++
		cursor := vm.peekAt(0)
		seq := vm.peekAt(1)
		has := vm.iterHas(seq, cursor)
		return vm.push(value.Boolean(has))

	case bytecode.OpIterMove:
		fr.pc++
		cursor := vm.pop()
		seq := vm.peek()
		return vm.push(vm.iterMove(seq, cursor))

	case bytecode.OpIterDeref:
		kind := vm.operand1(fr)
		fr.pc += 5
		cursor := vm.peekAt(0)
		seq := vm.peekAt(1)
		return vm.iterDeref(seq, cursor, int(kind))

	default:
		return vm.runtimeErrorf("unimplemented iteration opcode %s", op)
	}
}

func (vm *VM) peekAt(fromTop int) value.Value {
	i := len(vm.stack) - 1 - fromTop
	if i < 0 {
		return value.None()
	}
	return vm.stack[i]
}

func (vm *VM) iterHas(seq, cursor value.Value) bool {
	if seq.Kind == value.KindString {
		return cursor.Iter < len([]rune(gc.StringOf(seq)))
	}
	if seq.Kind != value.KindObject {
		return false
	}
	o := gc.ObjectOf(seq)
	if o.Slots == nil || o.Slots.IterHas == nil {
		return false
	}
	return o.Slots.IterHas(o, cursor.Iter)
}

func (vm *VM) iterMove(seq, cursor value.Value) value.Value {
	if seq.Kind == value.KindString {
		return value.Iterator(cursor.Iter + 1)
	}
	if seq.Kind != value.KindObject {
		return cursor
	}
	o := gc.ObjectOf(seq)
	if o.Slots == nil || o.Slots.IterMove == nil {
		return cursor
	}
	return value.Iterator(o.Slots.IterMove(o, cursor.Iter))
}

func (vm *VM) iterDeref(seq, cursor value.Value, kind int) error {
	if seq.Kind == value.KindString {
		r := []rune(gc.StringOf(seq))
		if cursor.Iter < 0 || cursor.Iter >= len(r) {
			return vm.runtimeErrorf("string iterator out of range")
		}
		ch := gc.NewConstString(string(r[cursor.Iter]))
		return vm.pushDeref(value.Number(float64(cursor.Iter)), ch, kind)
	}
	if seq.Kind != value.KindObject {
		return vm.runtimeErrorf("%s is not iterable", seq.TypeName())
	}
	o := gc.ObjectOf(seq)
	if o.Slots == nil || o.Slots.IterGetKey == nil || o.Slots.IterGetVal == nil {
		return vm.runtimeErrorf("%s is not iterable", seq.TypeName())
	}
	key := o.Slots.IterGetKey(o, cursor.Iter)
	val := o.Slots.IterGetVal(o, cursor.Iter)
	return vm.pushDeref(key, val, kind)
}

func (vm *VM) pushDeref(key, val value.Value, kind int) error {
	switch kind {
	case bytecode.IterKey:
		return vm.push(key)
	case bytecode.IterVal:
		return vm.push(val)
	case bytecode.IterKeyVal:
		if err := vm.push(key); err != nil {
			return err
		}
		return vm.push(val)
	default:
		return vm.runtimeErrorf("invalid iterator deref kind %d", kind)
	}
}
