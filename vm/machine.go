package vm

import (
	"github.com/chazu/vmgen/pkg/il"
	"github.com/chazu/vmgen/pkg/model"
)

// Machine is the VM state of one function activation as seen by the code
// being generated. Every control-flow path owns its own Machine; paths fork
// with Clone and reconcile at joins with MergeInto.
type Machine struct {
	Function FuncView
	Stack    model.OperandStack
	Locals   model.OperandArray
	Pc       model.Pc

	mode   model.Mode
	interp *il.Value // nil in Pure mode
}

// Mode returns the generation mode of every component.
func (m *Machine) Mode() model.Mode { return m.mode }

// Interp returns the interpreter record value, or nil without memory.
func (m *Machine) Interp() *il.Value { return m.interp }

// SetStatus stores s in the interpreter's status field.
func (m *Machine) SetStatus(b *il.Builder, s int64) {
	if m.interp == nil {
		return
	}
	b.StoreIndirect(InterpreterStruct, FieldStatus, m.interp, b.ConstInt64(s))
}

// Commit flushes cached state to memory in the order function, stack,
// locals, pc.
func (m *Machine) Commit(b *il.Builder) {
	m.Function.Commit(b)
	m.Stack.Commit(b)
	m.Locals.Commit(b)
	m.Pc.Commit(b)
}

// Reload re-reads memory into cached state.
func (m *Machine) Reload(b *il.Builder) {
	m.Function.Reload(b)
	m.Stack.Reload(b)
	m.Locals.Reload(b)
	m.Pc.Reload(b)
}

// MergeInto writes m's values into the slots used by dest, which must be a
// *Machine of the same mode.
func (m *Machine) MergeInto(b *il.Builder, dest il.VMState) {
	d, ok := dest.(*Machine)
	if !ok || d.mode != m.mode {
		model.Fail("machine", model.ErrModeMismatch, "merge %s machine into %T", m.mode, dest)
	}
	m.Function.MergeInto(b, d.Function)
	m.Stack.MergeInto(b, d.Stack)
	m.Locals.MergeInto(b, d.Locals)
	m.Pc.MergeInto(b, d.Pc)
}

// MakeCopy implements il.VMState.
func (m *Machine) MakeCopy(b *il.Builder) il.VMState { return m.Clone(b) }

// Clone returns an independent Machine for another control-flow path.
func (m *Machine) Clone(b *il.Builder) *Machine {
	return &Machine{
		Function: m.Function.Clone(b),
		Stack:    m.Stack.Clone(b),
		Locals:   m.Locals.Clone(b),
		Pc:       m.Pc.Clone(b),
		mode:     m.mode,
		interp:   m.interp,
	}
}

// Factory creates the Machine for a routine's entry.
type Factory struct {
	Mode model.Mode
	// Func is the function being specialized. Real machines read the
	// function from the interpreter record instead.
	Func    *Func
	Options Options
}

// Create locates the interpreter fields, reserves the locals on the stack
// and initializes every component. interp is the interpreter record and
// may be nil in Pure mode.
func (f Factory) Create(b *il.Builder, interp *il.Value) *Machine {
	m := &Machine{mode: f.Mode, interp: interp}
	if f.Mode.HasMemory() && interp == nil {
		model.Fail("machine", model.ErrModeMismatch, "%s machine needs an interpreter record", f.Mode)
	}
	if f.Mode != model.Real && f.Func == nil {
		model.Fail("machine", model.ErrModeMismatch, "%s machine needs a function", f.Mode)
	}

	var pcAddr, spAddr, limitAddr, fpAddr, startAddr *il.Value
	if f.Mode.HasMemory() {
		pcAddr = b.StructFieldInstanceAddress(InterpreterStruct, FieldPc, interp)
		spAddr = b.StructFieldInstanceAddress(InterpreterStruct, FieldSp, interp)
		limitAddr = b.StructFieldInstanceAddress(InterpreterStruct, FieldSpLimit, interp)
		fpAddr = b.StructFieldInstanceAddress(InterpreterStruct, FieldFp, interp)
		startAddr = b.StructFieldInstanceAddress(InterpreterStruct, FieldStartPc, interp)
	}

	var code []byte
	var body il.Addr
	if f.Mode == model.Real {
		m.Function = newRealFuncView(b, interp)
	} else {
		m.Function = &constFuncView{mode: f.Mode, fn: f.Func}
		code, body = f.Func.Code(), f.Func.Body
	}

	opts := f.Options.model(m.trap)
	m.Stack = model.NewOperandStack(f.Mode, opts)
	m.Stack.Initialize(b, spAddr, limitAddr)
	nlocals := m.Function.NLocals(b)
	base := m.Stack.Reserve64(b, nlocals)

	m.Locals = model.NewOperandArray(f.Mode, opts)
	m.Locals.Initialize(b, fpAddr, base, nlocals)

	m.Pc = model.NewPc(f.Mode, code, body)
	m.Pc.Initialize(b, pcAddr, startAddr)
	return m
}

// trap reports reason through the trap helper, marks the interpreter as
// trapped and returns from the routine.
func (m *Machine) trap(b *il.Builder, reason string) {
	pc := b.LoadIndirect(InterpreterStruct, FieldPc, m.interp)
	b.Call(helperTrap, b.ConstString(reason), m.interp, pc)
	m.SetStatus(b, StatusTrap)
	b.Return()
}
