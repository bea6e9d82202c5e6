package vm

import (
	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/il"
	"github.com/chazu/vmgen/pkg/model"
)

// Handler emits the code for one opcode against m. It returns true when
// execution continues with the instruction m's pc now designates, and false
// once it has terminated the current path.
type Handler func(ctx Context, m *Machine) bool

// Context is what a dispatch strategy offers its handlers.
type Context interface {
	// Builder is the cursor handlers emit into. Handlers that split control
	// flow leave it positioned on the fall-through path.
	Builder() *il.Builder
	// Continue hands m, whose pc designates the next instruction, to the
	// dispatch strategy and terminates b's block.
	Continue(b *il.Builder, m *Machine)
}

func advance(b *il.Builder, m *Machine, op bytecode.Opcode) {
	m.Pc.Next(b, model.Const(b, m.Mode(), int64(op.InstructionLen())))
}

func genNop(ctx Context, m *Machine) bool {
	advance(ctx.Builder(), m, bytecode.OpNop)
	return true
}

func genHalt(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	m.Commit(b)
	m.SetStatus(b, StatusHalted)
	b.Return()
	return false
}

func genPushConst(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	v := m.Pc.ImmediateInt64(b, 1)
	m.Stack.Push(b, v.IL(b))
	advance(b, m, bytecode.OpPushConst)
	return true
}

func genAdd(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	y := m.Stack.Pop(b)
	x := m.Stack.Pop(b)
	m.Stack.Push(b, b.Add(x, y))
	advance(b, m, bytecode.OpAdd)
	return true
}

func genSub(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	y := m.Stack.Pop(b)
	x := m.Stack.Pop(b)
	m.Stack.Push(b, b.Sub(x, y))
	advance(b, m, bytecode.OpSub)
	return true
}

func genDup(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	m.Stack.Dup(b)
	advance(b, m, bytecode.OpDup)
	return true
}

func genDrop(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	m.Stack.Drop(b, 1)
	advance(b, m, bytecode.OpDrop)
	return true
}

func genPushLocal(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	idx := m.Pc.ImmediateSize(b, 1)
	m.Stack.Push(b, m.Locals.Get(b, idx))
	advance(b, m, bytecode.OpPushLocal)
	return true
}

func genPopLocal(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	idx := m.Pc.ImmediateSize(b, 1)
	m.Locals.Set(b, idx, m.Stack.Pop(b))
	advance(b, m, bytecode.OpPopLocal)
	return true
}

func genJump(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	m.Pc.Next(b, m.Pc.ImmediateInt64(b, 1))
	return true
}

func genJumpIfZero(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	offset := m.Pc.ImmediateInt64(b, 1)
	cond := m.Stack.Pop(b)
	branchIfZero(ctx, m, cond, func(tb *il.Builder, tm *Machine) {
		tm.Pc.Next(tb, offset)
	})
	advance(ctx.Builder(), m, bytecode.OpJumpIfZero)
	return true
}

// genUnknown reports the opcode and halts with StatusUnknownOpcode.
func genUnknown(ctx Context, m *Machine) bool {
	b := ctx.Builder()
	m.Commit(b)
	if m.interp != nil {
		op := b.ConvertTo(b.Types().Int64, m.Pc.Opcode(b).IL(b))
		offset := b.Sub(m.Pc.Load(b), m.Pc.Start(b))
		b.Call(helperUnknownOpcode, m.interp, offset, op)
	}
	m.SetStatus(b, StatusUnknownOpcode)
	b.Return()
	return false
}

// branchIfZero forks m: when cond is zero a clone of m is passed to taken
// and then to the dispatch strategy; otherwise generation continues with m
// in a fresh fall-through block.
func branchIfZero(ctx Context, m *Machine, cond *il.Value, taken func(tb *il.Builder, tm *Machine)) {
	b := ctx.Builder()
	r := b.Routine()
	takenBlk := r.NewBlock(b.Block().Name() + ".taken")
	fallBlk := r.NewBlock(b.Block().Name() + ".fall")

	tm := m.Clone(b)
	b.Branch(b.Equal(cond, b.ConstInt64(0)), takenBlk, fallBlk)

	tb := b.At(takenBlk)
	taken(tb, tm)
	ctx.Continue(tb, tm)
	b.SetBlock(fallBlk)
}
