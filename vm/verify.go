package vm

import (
	"fmt"

	"github.com/chazu/vmgen/pkg/model"
)

// Report summarizes a verification pass.
type Report struct {
	Function     string
	Instructions int     // instructions generated, counting every path
	Blocks       int
	Unknown      []int64 // offsets of opcodes routed to the fallback handler
}

// Verify runs the handlers over h's bytecode with no backing memory. It
// finds everything the specializing compiler would reject (stack bounds,
// bad local indices, control leaving the body, inconsistent stack depths at
// joins) without allocating or running anything.
func (vm *VM) Verify(h Handle, table *HandlerTable) (rep *Report, err error) {
	fn, err := vm.Funcs.Resolve(h)
	if err != nil {
		return nil, err
	}
	if table == nil {
		table = DefaultHandlers()
	}
	defer model.Recover(&err)

	g := newGenerator(vm, table, fn, model.Pure, "verify_"+fn.Name())
	g.run()
	if err := g.r.Err(); err != nil {
		return nil, fmt.Errorf("vm: verify %s: %w", fn.Name(), err)
	}
	return &Report{
		Function:     fn.Name(),
		Instructions: g.instructions,
		Blocks:       len(g.r.Blocks()),
		Unknown:      g.unknown,
	}, nil
}
