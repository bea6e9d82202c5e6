package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; === %s ===\n", p.Name)
	if p.NParams > 0 {
		fmt.Fprintf(&sb, "; Parameters: %d\n", p.NParams)
	}
	if p.NLocals > 0 {
		fmt.Fprintf(&sb, "; Locals: %d slots\n", p.NLocals)
	}
	sb.WriteString("; Code:\n")

	insts, err := p.Decode()
	for _, in := range insts {
		fmt.Fprintf(&sb, "%04X  %s\n", in.Offset, formatInstruction(in))
	}
	if err != nil {
		fmt.Fprintf(&sb, "; %v\n", err)
	}
	return sb.String()
}

func formatInstruction(in Instruction) string {
	name := in.Op.String()
	switch {
	case in.Op.IsJump():
		return fmt.Sprintf("%-14s %+d -> %04X", name, in.Operand, in.Target())
	case in.Op == OpPushLocal || in.Op == OpPopLocal:
		return fmt.Sprintf("%-14s %d", name, uint64(in.Operand))
	case in.Op.OperandLen() > 0:
		return fmt.Sprintf("%-14s %d", name, in.Operand)
	default:
		return name
	}
}
