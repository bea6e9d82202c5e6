package bytecode

import "fmt"

// Opcode is the one-byte instruction tag.
type Opcode byte

const (
	OpNop        Opcode = 0x00 // No operation
	OpHalt       Opcode = 0x01 // Flush state and stop
	OpPushConst  Opcode = 0x02 // Push immediate: OpPushConst <value:i64>
	OpAdd        Opcode = 0x03 // Pop two, push sum
	OpPushLocal  Opcode = 0x04 // Push local: OpPushLocal <index:u64>
	OpPopLocal   Opcode = 0x05 // Pop into local: OpPopLocal <index:u64>
	OpSub        Opcode = 0x06 // Pop two, push difference (a - b where b is TOS)
	OpDup        Opcode = 0x07 // Duplicate top of stack
	OpDrop       Opcode = 0x08 // Pop and discard
	OpJump       Opcode = 0x09 // Unconditional jump: OpJump <offset:i64>
	OpJumpIfZero Opcode = 0x0A // Pop, jump if zero: OpJumpIfZero <offset:i64>
)

// OperandSize is the width of every operand.
const OperandSize = 8

// OpcodeInfo provides metadata about each opcode for listings and checks.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // Values popped from the stack
	StackPush  int    // Values pushed to the stack
	OperandLen int    // Operand bytes following the opcode
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:        {"NOP", 0, 0, 0},
	OpHalt:       {"HALT", 0, 0, 0},
	OpPushConst:  {"PUSH_CONST", 0, 1, OperandSize},
	OpAdd:        {"ADD", 2, 1, 0},
	OpPushLocal:  {"PUSH_LOCAL", 0, 1, OperandSize},
	OpPopLocal:   {"POP_LOCAL", 1, 0, OperandSize},
	OpSub:        {"SUB", 2, 1, 0},
	OpDup:        {"DUP", 1, 2, 0},
	OpDrop:       {"DROP", 1, 0, 0},
	OpJump:       {"JUMP", 0, 0, OperandSize},
	OpJumpIfZero: {"JUMP_IF_ZERO", 1, 0, OperandSize},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode. Unknown opcodes get the name
// "UNKNOWN(0xNN)" and no operands.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Lookup finds an opcode by its listing name.
func Lookup(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump reports whether op carries a relative jump offset.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfZero
}

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := Opcode(0); op <= OpJumpIfZero; op++ {
		if op.Known() {
			ops = append(ops, op)
		}
	}
	return ops
}
