package vm

import (
	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/il"
)

// Names of the runtime helpers generated code calls.
const (
	helperTrace         = "trace"
	helperTraceState    = "trace_state"
	helperUnknownOpcode = "unknown_opcode"
	helperTrap          = "trap"
)

func (vm *VM) newHelpers() il.Helpers {
	return il.Helpers{
		// trace(interp, offset, opcode)
		helperTrace: func(args il.Args) {
			ev := TraceEvent{
				Function: vm.funcName(args.Addr(0)),
				Offset:   args.Int(1),
				Opcode:   bytecode.Opcode(args.Int(2)),
			}
			log.Debugf("trace %s@%04X %s", ev.Function, ev.Offset, ev.Opcode)
			vm.emitTrace(ev)
		},
		// trace_state(interp, opcode); the machine is committed
		helperTraceState: func(args il.Args) {
			ev := TraceEvent{Function: vm.funcName(args.Addr(0)), Opcode: bytecode.Opcode(args.Int(1))}
			if in, ok := vm.interpreterAt(args.Addr(0)); ok {
				ev.Offset = in.Offset()
				if fr, err := in.Frame(); err == nil {
					ev.Stack, ev.Locals = fr.Stack, fr.Locals
				}
			}
			log.Debugf("state %s@%04X %s stack=%v locals=%v", ev.Function, ev.Offset, ev.Opcode, ev.Stack, ev.Locals)
			vm.emitTrace(ev)
		},
		// unknown_opcode(interp, offset, opcode)
		helperUnknownOpcode: func(args il.Args) {
			log.Warningf("%s@%04X: unknown opcode 0x%02X", vm.funcName(args.Addr(0)), args.Int(1), uint8(args.Int(2)))
		},
		// trap(reason, interp, pc)
		helperTrap: func(args il.Args) {
			in, ok := vm.interpreterAt(args.Addr(1))
			offset := int64(-1)
			if ok {
				offset = int64(args.Addr(2) - in.StartPC())
			}
			log.Warningf("%s@%04X: trap: %s", vm.funcName(args.Addr(1)), offset, args.Str(0))
		},
	}
}

func (vm *VM) funcName(interp il.Addr) string {
	if in, ok := vm.interpreterAt(interp); ok {
		if f, ok := in.Func(); ok {
			return f.Name()
		}
	}
	return "?"
}

func (vm *VM) emitTrace(ev TraceEvent) {
	if vm.opts.OnTrace != nil {
		vm.opts.OnTrace(ev)
	}
}
