// Package bytecode defines the instruction set executed by vmgen machines,
// the Program container for a function's code, and its textual (YAML
// assembly), binary (CBOR) and listing (disassembly) forms.
//
// Every instruction is a one-byte opcode followed by a fixed-width operand
// region. All operands are 8-byte little-endian words:
//
//	NOP, HALT, ADD, SUB, DUP, DROP        no operand
//	PUSH_CONST <i64>                       push an immediate
//	PUSH_LOCAL <u64> / POP_LOCAL <u64>     local index
//	JUMP <i64> / JUMP_IF_ZERO <i64>        offset from the jump's own start
package bytecode
