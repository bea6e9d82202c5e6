package vm

import (
	"sync"

	"github.com/chazu/vmgen/pkg/bytecode"
)

// HandlerTable maps every opcode value to a handler. It is immutable once
// built; opcodes without an entry route to the fallback.
type HandlerTable struct {
	handlers [256]Handler
	mapped   [256]bool
	fallback Handler
}

// NewHandlerTable builds a table from entries, sending every other opcode
// value to fallback. A nil fallback uses the default unknown-opcode handler.
func NewHandlerTable(entries map[bytecode.Opcode]Handler, fallback Handler) *HandlerTable {
	if fallback == nil {
		fallback = genUnknown
	}
	t := &HandlerTable{fallback: fallback}
	for i := range t.handlers {
		t.handlers[i] = fallback
	}
	for op, h := range entries {
		if h == nil {
			continue
		}
		t.handlers[op] = h
		t.mapped[op] = true
	}
	return t
}

// DefaultHandlers returns the table for the vmgen instruction set.
var DefaultHandlers = sync.OnceValue(func() *HandlerTable {
	return NewHandlerTable(map[bytecode.Opcode]Handler{
		bytecode.OpNop:        genNop,
		bytecode.OpHalt:       genHalt,
		bytecode.OpPushConst:  genPushConst,
		bytecode.OpAdd:        genAdd,
		bytecode.OpPushLocal:  genPushLocal,
		bytecode.OpPopLocal:   genPopLocal,
		bytecode.OpSub:        genSub,
		bytecode.OpDup:        genDup,
		bytecode.OpDrop:       genDrop,
		bytecode.OpJump:       genJump,
		bytecode.OpJumpIfZero: genJumpIfZero,
	}, genUnknown)
})

// Lookup returns the handler for op.
func (t *HandlerTable) Lookup(op bytecode.Opcode) Handler { return t.handlers[op] }

// Fallback returns the handler for unmapped opcodes.
func (t *HandlerTable) Fallback() Handler { return t.fallback }

// Mapped reports whether op has its own handler.
func (t *HandlerTable) Mapped(op bytecode.Opcode) bool { return t.mapped[op] }

// Opcodes returns the mapped opcodes in ascending order.
func (t *HandlerTable) Opcodes() []bytecode.Opcode {
	var ops []bytecode.Opcode
	for i, ok := range t.mapped {
		if ok {
			ops = append(ops, bytecode.Opcode(i))
		}
	}
	return ops
}
