package vm

import (
	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/model"
)

// Options configure a VM and the code generated for it.
type Options struct {
	MemorySize int // arena bytes
	StackSlots int // operand stack slots per Interpreter, locals included

	// Checks emits run-time guards in the generic interpreter. Generation of
	// specialized routines always checks.
	Checks bool
	// PopSentinel overwrites popped stack slots with Sentinel.
	PopSentinel bool
	Sentinel    int64

	// Trace calls the trace helper before every instruction.
	Trace bool
	// TraceState commits the machine, calls the trace_state helper and
	// reloads before every instruction.
	TraceState bool
	// OnTrace receives trace events in addition to the log.
	OnTrace func(TraceEvent)
}

// DefaultOptions returns the configuration used when nothing is set.
func DefaultOptions() Options {
	return Options{
		MemorySize: 1 << 20,
		StackSlots: 1024,
		Checks:     true,
		Sentinel:   model.DefaultSentinel,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MemorySize <= 0 {
		o.MemorySize = d.MemorySize
	}
	if o.StackSlots <= 0 {
		o.StackSlots = d.StackSlots
	}
	return o
}

func (o Options) model(trap model.Trap) model.Options {
	return model.Options{
		Checks:        o.Checks,
		StackSlots:    uint64(o.StackSlots),
		Sentinel:      o.PopSentinel,
		SentinelValue: o.Sentinel,
		Trap:          trap,
	}
}

// TraceEvent describes one traced instruction.
type TraceEvent struct {
	Function string
	Offset   int64
	Opcode   bytecode.Opcode
	// Stack and Locals are filled only by trace_state.
	Stack  []int64
	Locals []int64
}
