package vm

import (
	"fmt"

	"github.com/chazu/vmgen/pkg/il"
	"github.com/chazu/vmgen/pkg/model"
)

// BuildInterpreter emits the generic interpreter: a dispatch block decoding
// the opcode at the live pc and switching to one block per mapped opcode,
// each generated by the same handlers the Compiler uses. Unmapped opcodes go
// to the fallback block. The routine takes the interpreter record as its only
// argument and runs until a handler returns.
func (vm *VM) BuildInterpreter(table *HandlerTable) (r *il.Routine, err error) {
	if table == nil {
		table = DefaultHandlers()
	}
	defer model.Recover(&err)

	r = il.NewRoutine("interpret", vm.Types)
	r.DefineParameter("interp", vm.Types.Address)
	b := r.Builder()
	interp := b.Load("interp")

	// The machine exists before the first dispatch, so every handler block
	// sees the frame set up at entry.
	m := Factory{Mode: model.Real, Options: vm.opts}.Create(b, interp)
	dispatch := r.NewBlock("dispatch")
	b.GotoWithState(dispatch, m)

	db := b.At(dispatch)
	dm := dispatch.State().(*Machine).Clone(db)
	offset := db.Sub(dm.Pc.Load(db), dm.Pc.Start(db))
	if vm.opts.Checks {
		inBody := db.UnsignedLessThan(offset, dm.Function.Size(db).IL(db))
		db.IfThen(db.Equal(inBody, db.ConstInt64(0)), func(tb *il.Builder) {
			dm.trap(tb, "pc outside function body")
		})
	}
	op := db.ConvertTo(vm.Types.Int64, dm.Pc.Opcode(db).IL(db))
	if vm.opts.Trace {
		db.Call(helperTrace, interp, offset, op)
	}
	if vm.opts.TraceState {
		dm.Commit(db)
		db.Call(helperTraceState, interp, op)
		dm.Reload(db)
	}

	ops := table.Opcodes()
	cases := make([]il.Case, len(ops))
	for i, code := range ops {
		cases[i] = il.Case{Value: int64(code), Target: r.NewBlock("op_" + code.String())}
	}
	unknown := r.NewBlock("op_unknown")
	db.Switch(op, cases, unknown)

	for i, code := range ops {
		emitHandler(cases[i].Target, dispatch, dm, table.Lookup(code), b)
	}
	emitHandler(unknown, dispatch, dm, table.Fallback(), b)

	log.Debugf("generated interpreter: %d opcodes, %d blocks", len(ops), len(r.Blocks()))
	return r, nil
}

func emitHandler(blk, dispatch *il.Block, dm *Machine, h Handler, b *il.Builder) {
	hb := b.At(blk)
	hm := dm.Clone(hb)
	ctx := &loopContext{b: hb, dispatch: dispatch}
	if h(ctx, hm) {
		ctx.Continue(ctx.b, hm)
	}
}

type loopContext struct {
	b        *il.Builder
	dispatch *il.Block
}

func (c *loopContext) Builder() *il.Builder { return c.b }

func (c *loopContext) Continue(b *il.Builder, m *Machine) { b.GotoWithState(c.dispatch, m) }

// CompileInterpreter builds and compiles the generic interpreter.
func (vm *VM) CompileInterpreter(table *HandlerTable) (il.NativeFunc, *il.Routine, error) {
	r, err := vm.BuildInterpreter(table)
	if err != nil {
		return nil, nil, fmt.Errorf("vm: interpreter: %w", err)
	}
	fn, err := il.Compile(r, vm.Memory, vm.helpers)
	if err != nil {
		return nil, nil, fmt.Errorf("vm: interpreter: %w", err)
	}
	return fn, r, nil
}
