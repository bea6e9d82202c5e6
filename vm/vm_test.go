package vm

import (
	"errors"
	"testing"

	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/model"
)

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		prog *bytecode.Program
		want outcome
	}{
		{"halt", program("halt", 0, func(p *bytecode.Program) {
			p.Emit(bytecode.OpHalt)
		}), outcome{status: StatusHalted, offset: 0}},
		{"nop halt", program("nop", 0, func(p *bytecode.Program) {
			p.Emit(bytecode.OpNop)
			p.Emit(bytecode.OpHalt)
		}), outcome{status: StatusHalted, offset: 1}},
		{"push const", program("push", 0, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpPushConst, 42)
			p.Emit(bytecode.OpHalt)
		}), outcome{status: StatusHalted, offset: 9, stack: []int64{42}}},
		{"add", program("add", 0, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpPushConst, 333)
			p.EmitInt64(bytecode.OpPushConst, 444)
			p.Emit(bytecode.OpAdd)
			p.Emit(bytecode.OpHalt)
		}), outcome{status: StatusHalted, offset: 19, stack: []int64{777}}},
		{"locals", program("locals", 1, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpPushConst, 999)
			p.EmitInt64(bytecode.OpPushConst, 123)
			p.EmitIndex(bytecode.OpPopLocal, 0)
			p.EmitIndex(bytecode.OpPushLocal, 0)
			p.Emit(bytecode.OpHalt)
		}), outcome{status: StatusHalted, offset: 36, stack: []int64{999, 123}, locals: []int64{123}}},
		{"sub dup drop", program("arith", 0, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpPushConst, 10)
			p.EmitInt64(bytecode.OpPushConst, 3)
			p.Emit(bytecode.OpSub)
			p.Emit(bytecode.OpDup)
			p.Emit(bytecode.OpDup)
			p.Emit(bytecode.OpDrop)
			p.Emit(bytecode.OpHalt)
		}), outcome{status: StatusHalted, offset: 22, stack: []int64{7, 7}}},
		{"countdown", countdown(3), outcome{status: StatusHalted, offset: 73, locals: []int64{0}}},
		{"triangle", triangle(5), outcome{status: StatusHalted, offset: 110, stack: []int64{15}, locals: []int64{0, 15}}},
	}

	for _, r := range runners {
		for _, tt := range tests {
			t.Run(r.name+"/"+tt.name, func(t *testing.T) {
				vm := newTestVM(t, checkedOptions())
				f := mustLoad(t, vm, tt.prog)
				in := mustInterpreter(t, vm)
				r.run(t, vm, in, f)
				observe(t, in).check(t, tt.want)
			})
		}
	}
}

func TestUncheckedInterpreterMatches(t *testing.T) {
	vm := newTestVM(t, Options{})
	f := mustLoad(t, vm, triangle(4))
	in := mustInterpreter(t, vm)
	runners[0].run(t, vm, in, f)
	observe(t, in).check(t, outcome{status: StatusHalted, offset: 110, stack: []int64{10}, locals: []int64{0, 10}})
}

func TestUnknownOpcode(t *testing.T) {
	prog := program("unknown", 0, func(p *bytecode.Program) {
		p.EmitInt64(bytecode.OpPushConst, 7)
		p.Code = append(p.Code, 0xEE)
		p.Emit(bytecode.OpHalt)
	})

	for _, r := range runners {
		t.Run(r.name, func(t *testing.T) {
			vm := newTestVM(t, checkedOptions())
			f := mustLoad(t, vm, prog)
			in := mustInterpreter(t, vm)
			r.run(t, vm, in, f)
			observe(t, in).check(t, outcome{status: StatusUnknownOpcode, offset: 9, stack: []int64{7}})
		})
	}
}

// Malformed programs trap in the checked interpreter and fail to compile.
func TestMalformedPrograms(t *testing.T) {
	tests := []struct {
		name       string
		prog       *bytecode.Program
		trapOffset int64
		genErr     error
	}{
		{"underflow", program("underflow", 0, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpPushConst, 1)
			p.Emit(bytecode.OpAdd)
			p.Emit(bytecode.OpHalt)
		}), 9, model.ErrStackUnderflow},
		{"drop empty", program("drop", 0, func(p *bytecode.Program) {
			p.Emit(bytecode.OpDrop)
			p.Emit(bytecode.OpHalt)
		}), 0, model.ErrStackUnderflow},
		{"local index", program("local", 1, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpPushConst, 1)
			p.EmitIndex(bytecode.OpPopLocal, 3)
			p.Emit(bytecode.OpHalt)
		}), 9, model.ErrLocalIndex},
		{"falls off end", program("falloff", 0, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpPushConst, 1)
		}), 9, model.ErrPcRange},
		{"jump out of body", program("jumpout", 0, func(p *bytecode.Program) {
			p.EmitInt64(bytecode.OpJump, 100)
		}), 100, model.ErrPcRange},
		{"stack overflow", pushes(65), 64 * 9, model.ErrStackOverflow},
		{"locals exceed stack", program("biglocals", 65, func(p *bytecode.Program) {
			p.Emit(bytecode.OpHalt)
		}), 0, model.ErrStackOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/interp", func(t *testing.T) {
			vm := newTestVM(t, checkedOptions())
			f := mustLoad(t, vm, tt.prog)
			in := mustInterpreter(t, vm)
			runners[0].run(t, vm, in, f)
			if in.Status() != StatusTrap {
				t.Fatalf("status = %s, want trap", StatusString(in.Status()))
			}
			if in.Offset() != tt.trapOffset {
				t.Errorf("trapped at %d, want %d", in.Offset(), tt.trapOffset)
			}
		})
		t.Run(tt.name+"/compile", func(t *testing.T) {
			vm := newTestVM(t, checkedOptions())
			f := mustLoad(t, vm, tt.prog)
			_, err := NewCompiler(vm, nil).Compile(f.Handle)
			var ge *model.GenError
			if !errors.As(err, &ge) {
				t.Fatalf("err = %v, want *model.GenError", err)
			}
			if !errors.Is(err, tt.genErr) {
				t.Errorf("err = %v, want %v", err, tt.genErr)
			}
		})
	}
}

// pushes pushes n constants and halts.
func pushes(n int) *bytecode.Program {
	return program("pushes", 0, func(p *bytecode.Program) {
		for i := 0; i < n; i++ {
			p.EmitInt64(bytecode.OpPushConst, 0x7777)
		}
		p.Emit(bytecode.OpHalt)
	})
}

func TestStackOverflowLeavesNeighborsIntact(t *testing.T) {
	opts := checkedOptions()
	opts.StackSlots = 4
	vm := newTestVM(t, opts)
	f := mustLoad(t, vm, pushes(8))
	in := mustInterpreter(t, vm)
	// Allocated directly after the interpreter's stack region.
	victim := mustLoad(t, vm, program("victim", 3, func(p *bytecode.Program) {
		p.Emit(bytecode.OpHalt)
	}))
	nlocals := victim.Addr + vm.off(FuncStruct, FieldNLocals)

	runners[0].run(t, vm, in, f)
	if in.Status() != StatusTrap {
		t.Errorf("status = %s, want trap", StatusString(in.Status()))
	}
	if in.Offset() != 4*9 {
		t.Errorf("trapped at %d, want %d", in.Offset(), 4*9)
	}
	if in.SP() != in.Limit() {
		t.Errorf("sp = 0x%x, want limit 0x%x", in.SP(), in.Limit())
	}
	if got := vm.Memory.LoadInt64(nlocals); got != 3 {
		t.Errorf("victim nlocals = 0x%x, want 3", got)
	}

	if _, err := NewCompiler(vm, nil).Compile(f.Handle); !errors.Is(err, model.ErrStackOverflow) {
		t.Errorf("Compile err = %v, want %v", err, model.ErrStackOverflow)
	}
	if _, err := vm.Verify(f.Handle, nil); !errors.Is(err, model.ErrStackOverflow) {
		t.Errorf("Verify err = %v, want %v", err, model.ErrStackOverflow)
	}
	if _, err := NewCompiler(vm, nil).Compile(mustLoad(t, vm, pushes(4)).Handle); err != nil {
		t.Errorf("Compile at capacity: %v", err)
	}
}

func TestMergeShapeMismatch(t *testing.T) {
	// The jump target is reached with one operand on one path and none on
	// the other.
	prog := program("shape", 0, func(p *bytecode.Program) {
		p.EmitInt64(bytecode.OpPushConst, 0)
		j := p.EmitJump(bytecode.OpJumpIfZero)
		p.EmitInt64(bytecode.OpPushConst, 1)
		p.PatchJump(j, p.Len())
		p.Emit(bytecode.OpHalt)
	})

	vm := newTestVM(t, checkedOptions())
	f := mustLoad(t, vm, prog)
	if _, err := NewCompiler(vm, nil).Compile(f.Handle); !errors.Is(err, model.ErrMergeShape) {
		t.Errorf("Compile err = %v, want %v", err, model.ErrMergeShape)
	}
	if _, err := vm.Verify(f.Handle, nil); !errors.Is(err, model.ErrMergeShape) {
		t.Errorf("Verify err = %v, want %v", err, model.ErrMergeShape)
	}

	// The interpreter has no notion of shape and simply runs it.
	in := mustInterpreter(t, vm)
	runners[0].run(t, vm, in, f)
	observe(t, in).check(t, outcome{status: StatusHalted, offset: 27})
}

func TestPopSentinel(t *testing.T) {
	opts := checkedOptions()
	opts.PopSentinel = true
	vm := newTestVM(t, opts)
	f := mustLoad(t, vm, program("pop", 1, func(p *bytecode.Program) {
		p.EmitInt64(bytecode.OpPushConst, 5)
		p.EmitIndex(bytecode.OpPopLocal, 0)
		p.Emit(bytecode.OpHalt)
	}))
	in := mustInterpreter(t, vm)
	runners[0].run(t, vm, in, f)

	observe(t, in).check(t, outcome{status: StatusHalted, offset: 18, locals: []int64{5}})
	if got := vm.Memory.LoadInt64(in.StackBase + 8); got != model.DefaultSentinel {
		t.Errorf("vacated slot = 0x%x, want 0x%x", got, model.DefaultSentinel)
	}
}

func TestVerify(t *testing.T) {
	vm := newTestVM(t, checkedOptions())
	good := mustLoad(t, vm, triangle(3))
	odd := mustLoad(t, vm, program("odd", 0, func(p *bytecode.Program) {
		p.Code = append(p.Code, 0xEE)
		p.Emit(bytecode.OpHalt)
	}))
	bad := mustLoad(t, vm, program("bad", 0, func(p *bytecode.Program) {
		p.Emit(bytecode.OpAdd)
		p.Emit(bytecode.OpHalt)
	}))
	used := vm.Memory.Used()

	rep, err := vm.Verify(good.Handle, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rep.Function != "triangle" || rep.Instructions == 0 || len(rep.Unknown) != 0 {
		t.Errorf("report = %+v", rep)
	}

	rep, err = vm.Verify(odd.Handle, nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(rep.Unknown) != 1 || rep.Unknown[0] != 0 {
		t.Errorf("unknown = %v, want [0]", rep.Unknown)
	}

	if _, err := vm.Verify(bad.Handle, nil); !errors.Is(err, model.ErrStackUnderflow) {
		t.Errorf("err = %v, want %v", err, model.ErrStackUnderflow)
	}
	if _, err := vm.Verify(Handle(99), nil); err == nil {
		t.Error("verified an invalid handle")
	}
	if vm.Memory.Used() != used {
		t.Error("verification allocated VM memory")
	}
}

func TestDefaultHandlersCoverInstructionSet(t *testing.T) {
	table := DefaultHandlers()
	all := bytecode.AllOpcodes()
	got := table.Opcodes()
	if len(got) != len(all) {
		t.Fatalf("mapped %v, want %v", got, all)
	}
	for i := range all {
		if got[i] != all[i] {
			t.Errorf("opcode %d: mapped %s, want %s", i, got[i], all[i])
		}
	}
	if table.Mapped(0xEE) {
		t.Error("0xEE is mapped")
	}
	if table.Lookup(0xEE) == nil || table.Fallback() == nil {
		t.Error("unmapped opcodes have no handler")
	}
}

func TestCustomHandlerTable(t *testing.T) {
	// A table without ADD routes it to the fallback.
	entries := map[bytecode.Opcode]Handler{
		bytecode.OpHalt:      genHalt,
		bytecode.OpPushConst: genPushConst,
	}
	table := NewHandlerTable(entries, genUnknown)

	vm := newTestVM(t, checkedOptions())
	f := mustLoad(t, vm, program("custom", 0, func(p *bytecode.Program) {
		p.EmitInt64(bytecode.OpPushConst, 1)
		p.EmitInt64(bytecode.OpPushConst, 2)
		p.Emit(bytecode.OpAdd)
		p.Emit(bytecode.OpHalt)
	}))
	in := mustInterpreter(t, vm)

	fn, _, err := vm.CompileInterpreter(table)
	if err != nil {
		t.Fatal(err)
	}
	in.Reset(f)
	if err := fn.Invoke(in.Addr); err != nil {
		t.Fatal(err)
	}
	observe(t, in).check(t, outcome{status: StatusUnknownOpcode, offset: 18, stack: []int64{1, 2}})
}

func TestNilFallbackRoutesToUnknown(t *testing.T) {
	table := NewHandlerTable(map[bytecode.Opcode]Handler{bytecode.OpHalt: genHalt}, nil)
	if table.Fallback() == nil || table.Lookup(bytecode.OpAdd) == nil {
		t.Fatal("unmapped opcodes have no handler")
	}

	vm := newTestVM(t, checkedOptions())
	f := mustLoad(t, vm, program("nilfallback", 0, func(p *bytecode.Program) {
		p.Emit(bytecode.OpNop)
		p.Emit(bytecode.OpHalt)
	}))
	cr, err := NewCompiler(vm, table).Compile(f.Handle)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	in := mustInterpreter(t, vm)
	if err := cr.Run(in); err != nil {
		t.Fatal(err)
	}
	observe(t, in).check(t, outcome{status: StatusUnknownOpcode, offset: 0})
}

func TestLoad(t *testing.T) {
	vm := newTestVM(t, checkedOptions())
	f := mustLoad(t, vm, countdown(1))

	if f.Handle != 1 {
		t.Errorf("handle = %d, want 1", f.Handle)
	}
	if got, err := vm.Funcs.Resolve(f.Handle); err != nil || got != f {
		t.Errorf("Resolve = %v, %v", got, err)
	}
	if got, ok := vm.Funcs.Lookup("countdown"); !ok || got != f {
		t.Error("Lookup by name failed")
	}
	if _, ok := vm.CompiledEntry(f); ok {
		t.Error("fresh function has a compiled entry")
	}
	if got := vm.Memory.Read(f.Body, uint64(len(f.Code()))); string(got) != string(f.Code()) {
		t.Error("body not copied into memory")
	}
	if _, err := vm.Load(countdown(2)); err == nil {
		t.Error("duplicate name accepted")
	}
	if _, err := vm.Load(&bytecode.Program{}); err == nil {
		t.Error("unnamed program accepted")
	}
}

func TestTrace(t *testing.T) {
	prog := program("add", 0, func(p *bytecode.Program) {
		p.EmitInt64(bytecode.OpPushConst, 333)
		p.EmitInt64(bytecode.OpPushConst, 444)
		p.Emit(bytecode.OpAdd)
		p.Emit(bytecode.OpHalt)
	})
	wantOffsets := []int64{0, 9, 18, 19}

	for _, r := range runners {
		t.Run(r.name, func(t *testing.T) {
			var events []TraceEvent
			opts := checkedOptions()
			opts.Trace = true
			opts.TraceState = true
			opts.OnTrace = func(ev TraceEvent) { events = append(events, ev) }
			vm := newTestVM(t, opts)
			f := mustLoad(t, vm, prog)
			in := mustInterpreter(t, vm)
			r.run(t, vm, in, f)

			// One trace and one trace_state event per instruction.
			if len(events) != 2*len(wantOffsets) {
				t.Fatalf("got %d events, want %d", len(events), 2*len(wantOffsets))
			}
			for i, want := range wantOffsets {
				tr, st := events[2*i], events[2*i+1]
				if tr.Offset != want || st.Offset != want {
					t.Errorf("instruction %d: offsets %d/%d, want %d", i, tr.Offset, st.Offset, want)
				}
				if tr.Function != "add" {
					t.Errorf("function = %q", tr.Function)
				}
			}
			if st := events[5]; st.Opcode != bytecode.OpAdd || len(st.Stack) != 2 || st.Stack[1] != 444 {
				t.Errorf("state before ADD = %+v", st)
			}
		})
	}
}
