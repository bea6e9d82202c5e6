package vm

import (
	"fmt"
	"time"

	"github.com/chazu/vmgen/pkg/il"
	"github.com/chazu/vmgen/pkg/model"
	"github.com/google/uuid"
)

// Compiler specializes functions into straight-line routines. Function
// metadata and bytecode are constants while generating, so decoding and
// dispatch happen once, at compile time.
type Compiler struct {
	vm    *VM
	table *HandlerTable
}

// NewCompiler creates a compiler. A nil table selects DefaultHandlers.
func NewCompiler(vm *VM, table *HandlerTable) *Compiler {
	if table == nil {
		table = DefaultHandlers()
	}
	return &Compiler{vm: vm, table: table}
}

// CompiledRoutine is a specialized function ready to run.
type CompiledRoutine struct {
	ID       uuid.UUID
	Func     *Func
	Routine  *il.Routine
	Entry    il.NativeFunc
	Duration time.Duration
}

// Generate builds the routine for h without compiling it.
func (c *Compiler) Generate(h Handle) (r *il.Routine, err error) {
	fn, err := c.vm.Funcs.Resolve(h)
	if err != nil {
		return nil, err
	}
	defer model.Recover(&err)

	g := newGenerator(c.vm, c.table, fn, model.Virt, "compiled_"+fn.Name())
	g.run()
	log.Debugf("generated %s: %d instructions, %d blocks", g.r.Name(), g.instructions, len(g.r.Blocks()))
	return g.r, nil
}

// Compile generates and compiles the routine for h. The result is not
// installed; see VM.Install.
func (c *Compiler) Compile(h Handle) (*CompiledRoutine, error) {
	start := time.Now()
	r, err := c.Generate(h)
	if err != nil {
		return nil, fmt.Errorf("vm: compile: %w", err)
	}
	entry, err := il.Compile(r, c.vm.Memory, c.vm.helpers)
	if err != nil {
		return nil, fmt.Errorf("vm: compile: %w", err)
	}
	fn, _ := c.vm.Funcs.Resolve(h)
	cr := &CompiledRoutine{
		ID:       uuid.New(),
		Func:     fn,
		Routine:  r,
		Entry:    entry,
		Duration: time.Since(start),
	}
	log.Infof("compiled %s (%s) in %s", fn.Name(), cr.ID, cr.Duration)
	return cr, nil
}

// Run resets in for the routine's function and invokes the routine.
func (cr *CompiledRoutine) Run(in *Interpreter) error {
	in.Reset(cr.Func)
	return cr.Entry.Invoke(in.Addr)
}
