package vm

import (
	"fmt"

	"github.com/chazu/vmgen/pkg/il"
)

// Interpreter is an interpreter-state record in VM memory together with the
// operand stack region it owns. Generated routines receive its address as
// their only argument.
type Interpreter struct {
	vm         *VM
	Addr       il.Addr
	StackBase  il.Addr
	StackSlots int
}

// NewInterpreter allocates a record and a stack region.
func (vm *VM) NewInterpreter() (*Interpreter, error) {
	rec, _ := vm.Types.LookupStruct(InterpreterStruct)
	addr, err := vm.Memory.Alloc(uint64(rec.Size()), 8)
	if err != nil {
		return nil, fmt.Errorf("vm: interpreter record: %w", err)
	}
	stack, err := vm.Memory.Alloc(uint64(vm.opts.StackSlots)*8, 8)
	if err != nil {
		return nil, fmt.Errorf("vm: interpreter stack: %w", err)
	}
	in := &Interpreter{vm: vm, Addr: addr, StackBase: stack, StackSlots: vm.opts.StackSlots}
	vm.mu.Lock()
	vm.interps[addr] = in
	vm.mu.Unlock()
	return in, nil
}

func (in *Interpreter) load(field string) int64 {
	return in.vm.Memory.LoadInt64(in.Addr + in.vm.off(InterpreterStruct, field))
}

func (in *Interpreter) store(field string, v int64) {
	in.vm.Memory.StoreInt64(in.Addr+in.vm.off(InterpreterStruct, field), v)
}

func (in *Interpreter) PC() il.Addr      { return il.Addr(in.load(FieldPc)) }
func (in *Interpreter) SP() il.Addr      { return il.Addr(in.load(FieldSp)) }
func (in *Interpreter) FP() il.Addr      { return il.Addr(in.load(FieldFp)) }
func (in *Interpreter) StartPC() il.Addr { return il.Addr(in.load(FieldStartPc)) }
func (in *Interpreter) Status() int64    { return in.load(FieldStatus) }

// Offset returns the pc relative to the start of the function body.
func (in *Interpreter) Offset() int64 { return int64(in.PC() - in.StartPC()) }

// Func returns the function the record was last reset for.
func (in *Interpreter) Func() (*Func, bool) {
	return in.vm.Funcs.At(il.Addr(in.load(FieldFunc)))
}

// Limit returns the first address past the stack region.
func (in *Interpreter) Limit() il.Addr { return in.StackBase + il.Addr(in.StackSlots)*8 }

// Reset prepares the record to run f from its first instruction with an
// empty, zeroed stack.
func (in *Interpreter) Reset(f *Func) {
	in.vm.Memory.Write(in.StackBase, make([]byte, in.StackSlots*8))
	in.store(FieldPc, int64(f.Body))
	in.store(FieldStartPc, int64(f.Body))
	in.store(FieldSp, int64(in.StackBase))
	in.store(FieldFp, int64(in.StackBase))
	in.store(FieldStatus, StatusRunning)
	in.store(FieldFunc, int64(f.Addr))
	in.store(FieldSpLimit, int64(in.Limit()))
}

// Frame is a snapshot of a function activation.
type Frame struct {
	Locals []int64
	Stack  []int64 // bottom first
}

// Frame reads the locals and operand stack of the current activation. Locals
// start at the frame pointer; operands follow them up to the stack pointer.
func (in *Interpreter) Frame() (Frame, error) {
	f, ok := in.Func()
	if !ok {
		return Frame{}, fmt.Errorf("vm: interpreter 0x%x has no function", in.Addr)
	}
	fp, sp := in.FP(), in.SP()
	limit := in.Limit()
	operands := fp + il.Addr(f.NLocals())*8
	if fp < in.StackBase || sp < operands || sp > limit {
		return Frame{}, fmt.Errorf("vm: corrupt frame: fp=0x%x sp=0x%x stack=[0x%x,0x%x)", fp, sp, in.StackBase, limit)
	}
	fr := Frame{
		Locals: make([]int64, f.NLocals()),
		Stack:  make([]int64, (sp-operands)/8),
	}
	for i := range fr.Locals {
		fr.Locals[i] = in.vm.Memory.LoadInt64(fp + il.Addr(i)*8)
	}
	for i := range fr.Stack {
		fr.Stack[i] = in.vm.Memory.LoadInt64(operands + il.Addr(i)*8)
	}
	return fr, nil
}
