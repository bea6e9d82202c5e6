package vm

import (
	"fmt"

	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/il"
	"github.com/chazu/vmgen/pkg/model"
)

// generator walks one function's bytecode at generation time and chains
// handler output in program order. Each jump target gets its own block; the
// Machine reaching a target first donates its state and later arrivals merge
// into it.
type generator struct {
	vm     *VM
	table  *HandlerTable
	fn     *Func
	mode   model.Mode
	r      *il.Routine
	interp *il.Value

	leaders map[uint64]bool
	blocks  map[uint64]*il.Block
	work    []uint64

	instructions int
	unknown      []int64
}

func newGenerator(vm *VM, table *HandlerTable, fn *Func, mode model.Mode, name string) *generator {
	g := &generator{
		vm:      vm,
		table:   table,
		fn:      fn,
		mode:    mode,
		r:       il.NewRoutine(name, vm.Types),
		leaders: make(map[uint64]bool),
		blocks:  make(map[uint64]*il.Block),
	}
	insts, _ := fn.Program.Decode()
	for _, in := range insts {
		if in.Op.IsJump() && in.Target() >= 0 {
			g.leaders[uint64(in.Target())] = true
		}
	}
	return g
}

// run emits the whole routine.
func (g *generator) run() {
	b := g.r.Builder()
	if g.mode.HasMemory() {
		g.r.DefineParameter("interp", g.vm.Types.Address)
		g.interp = b.Load("interp")
	}
	m := Factory{Mode: g.mode, Func: g.fn, Options: g.vm.opts}.Create(b, g.interp)
	g.transfer(b, m)

	for len(g.work) > 0 {
		off := g.work[0]
		g.work = g.work[1:]
		g.emitBlock(g.blocks[off])
	}
}

func (g *generator) blockAt(off uint64) *il.Block {
	if blk, ok := g.blocks[off]; ok {
		return blk
	}
	blk := g.r.NewBlock(fmt.Sprintf("pc_%04X", off))
	g.blocks[off] = blk
	g.work = append(g.work, off)
	return blk
}

// transfer ends b's block with a jump to the block for m's pc.
func (g *generator) transfer(b *il.Builder, m *Machine) {
	off, _ := m.Pc.Offset()
	if off >= uint64(len(g.fn.Code())) {
		model.Fail("generator", model.ErrPcRange, "%s: control reaches offset %d, body is %d bytes", g.fn.Name(), off, len(g.fn.Code()))
	}
	b.GotoWithState(g.blockAt(off), m)
}

func (g *generator) emitBlock(blk *il.Block) {
	b := g.r.Builder()
	b.SetBlock(blk)
	m := blk.State().(*Machine).Clone(b)
	ctx := &genContext{g: g, b: b}

	for {
		off, _ := m.Pc.Offset()
		op := bytecode.Opcode(m.Pc.Opcode(b).Unpack())
		g.instructions++
		if !g.table.Mapped(op) {
			g.unknown = append(g.unknown, int64(off))
		}
		g.trace(b, m, off, op)

		if !g.table.Lookup(op)(ctx, m) {
			return
		}
		next, _ := m.Pc.Offset()
		if op.IsJump() || g.leaders[next] || next >= uint64(len(g.fn.Code())) {
			g.transfer(b, m)
			return
		}
	}
}

func (g *generator) trace(b *il.Builder, m *Machine, off uint64, op bytecode.Opcode) {
	if g.interp == nil {
		return
	}
	if g.vm.opts.Trace {
		b.Call(helperTrace, g.interp, b.ConstInt64(int64(off)), b.ConstInt64(int64(op)))
	}
	if g.vm.opts.TraceState {
		m.Commit(b)
		b.Call(helperTraceState, g.interp, b.ConstInt64(int64(op)))
		m.Reload(b)
	}
}

type genContext struct {
	g *generator
	b *il.Builder
}

func (c *genContext) Builder() *il.Builder { return c.b }

func (c *genContext) Continue(b *il.Builder, m *Machine) { c.g.transfer(b, m) }
