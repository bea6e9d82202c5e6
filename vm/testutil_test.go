package vm

import (
	"slices"
	"testing"

	"github.com/chazu/vmgen/pkg/bytecode"
)

func newTestVM(t *testing.T, opts Options) *VM {
	t.Helper()
	if opts.MemorySize == 0 {
		opts.MemorySize = 1 << 16
	}
	if opts.StackSlots == 0 {
		opts.StackSlots = 64
	}
	vm, err := NewVM(opts)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	return vm
}

func checkedOptions() Options {
	o := DefaultOptions()
	o.MemorySize = 1 << 16
	o.StackSlots = 64
	return o
}

func mustLoad(t *testing.T, vm *VM, p *bytecode.Program) *Func {
	t.Helper()
	f, err := vm.Load(p)
	if err != nil {
		t.Fatalf("Load %s: %v", p.Name, err)
	}
	return f
}

func mustInterpreter(t *testing.T, vm *VM) *Interpreter {
	t.Helper()
	in, err := vm.NewInterpreter()
	if err != nil {
		t.Fatalf("NewInterpreter: %v", err)
	}
	return in
}

func mustFrame(t *testing.T, in *Interpreter) Frame {
	t.Helper()
	fr, err := in.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	return fr
}

// outcome is the observable end state of a run.
type outcome struct {
	status int64
	offset int64
	stack  []int64
	locals []int64
}

func observe(t *testing.T, in *Interpreter) outcome {
	t.Helper()
	fr := mustFrame(t, in)
	return outcome{status: in.Status(), offset: in.Offset(), stack: fr.Stack, locals: fr.Locals}
}

func (o outcome) check(t *testing.T, want outcome) {
	t.Helper()
	if o.status != want.status {
		t.Errorf("status = %s, want %s", StatusString(o.status), StatusString(want.status))
	}
	if o.offset != want.offset {
		t.Errorf("offset = %d, want %d", o.offset, want.offset)
	}
	if !slices.Equal(o.stack, want.stack) {
		t.Errorf("stack = %v, want %v", o.stack, want.stack)
	}
	if !slices.Equal(o.locals, want.locals) {
		t.Errorf("locals = %v, want %v", o.locals, want.locals)
	}
}

// runner executes f on in in one of the execution modes.
type runner struct {
	name string
	run  func(t *testing.T, vm *VM, in *Interpreter, f *Func)
}

var runners = []runner{
	{"interp", func(t *testing.T, vm *VM, in *Interpreter, f *Func) {
		fn, _, err := vm.CompileInterpreter(nil)
		if err != nil {
			t.Fatalf("CompileInterpreter: %v", err)
		}
		in.Reset(f)
		if err := fn.Invoke(in.Addr); err != nil {
			t.Fatalf("interpret: %v", err)
		}
	}},
	{"compile", func(t *testing.T, vm *VM, in *Interpreter, f *Func) {
		cr, err := NewCompiler(vm, nil).Compile(f.Handle)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		if err := cr.Run(in); err != nil {
			t.Fatalf("run: %v", err)
		}
	}},
}

func program(name string, nlocals uint64, build func(p *bytecode.Program)) *bytecode.Program {
	p := bytecode.NewProgram(name, nlocals)
	build(p)
	return p
}

// countdown decrements local 0 from n to zero.
func countdown(n int64) *bytecode.Program {
	return program("countdown", 1, func(p *bytecode.Program) {
		p.EmitInt64(bytecode.OpPushConst, n)
		p.EmitIndex(bytecode.OpPopLocal, 0)
		loop := p.Len()
		p.EmitIndex(bytecode.OpPushLocal, 0)
		exit := p.EmitJump(bytecode.OpJumpIfZero)
		p.EmitIndex(bytecode.OpPushLocal, 0)
		p.EmitInt64(bytecode.OpPushConst, 1)
		p.Emit(bytecode.OpSub)
		p.EmitIndex(bytecode.OpPopLocal, 0)
		back := p.EmitJump(bytecode.OpJump)
		p.PatchJump(back, loop)
		p.PatchJump(exit, p.Len())
		p.Emit(bytecode.OpHalt)
	})
}

// triangle sums n + (n-1) + ... + 1 and leaves the total on the stack.
func triangle(n int64) *bytecode.Program {
	return program("triangle", 2, func(p *bytecode.Program) {
		p.EmitInt64(bytecode.OpPushConst, n)
		p.EmitIndex(bytecode.OpPopLocal, 0)
		loop := p.Len()
		p.EmitIndex(bytecode.OpPushLocal, 0)
		exit := p.EmitJump(bytecode.OpJumpIfZero)
		p.EmitIndex(bytecode.OpPushLocal, 1)
		p.EmitIndex(bytecode.OpPushLocal, 0)
		p.Emit(bytecode.OpAdd)
		p.EmitIndex(bytecode.OpPopLocal, 1)
		p.EmitIndex(bytecode.OpPushLocal, 0)
		p.EmitInt64(bytecode.OpPushConst, 1)
		p.Emit(bytecode.OpSub)
		p.EmitIndex(bytecode.OpPopLocal, 0)
		back := p.EmitJump(bytecode.OpJump)
		p.PatchJump(back, loop)
		p.PatchJump(exit, p.Len())
		p.EmitIndex(bytecode.OpPushLocal, 1)
		p.Emit(bytecode.OpHalt)
	})
}
