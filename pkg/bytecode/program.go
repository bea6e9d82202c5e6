package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Program is the source form of one function: its bytecode body and the
// frame shape it expects.
type Program struct {
	Name    string `cbor:"1,keyasint" yaml:"name"`
	NLocals uint64 `cbor:"2,keyasint" yaml:"locals"`
	NParams uint64 `cbor:"3,keyasint" yaml:"params"`
	Code    []byte `cbor:"4,keyasint" yaml:"-"`
}

// NewProgram creates an empty program.
func NewProgram(name string, nlocals uint64) *Program {
	return &Program{Name: name, NLocals: nlocals, Code: make([]byte, 0, 64)}
}

// Emit appends an operand-less instruction and returns its offset.
func (p *Program) Emit(op Opcode) int {
	offset := len(p.Code)
	p.Code = append(p.Code, byte(op))
	return offset
}

// EmitInt64 appends an instruction with a signed operand.
func (p *Program) EmitInt64(op Opcode, v int64) int {
	offset := p.Emit(op)
	p.Code = binary.LittleEndian.AppendUint64(p.Code, uint64(v))
	return offset
}

// EmitIndex appends an instruction with an unsigned operand.
func (p *Program) EmitIndex(op Opcode, index uint64) int {
	offset := p.Emit(op)
	p.Code = binary.LittleEndian.AppendUint64(p.Code, index)
	return offset
}

// EmitJump appends a jump with a placeholder offset. Patch it with PatchJump
// once the target is known.
func (p *Program) EmitJump(op Opcode) int {
	return p.EmitInt64(op, 0)
}

// PatchJump points the jump at offset to target.
func (p *Program) PatchJump(offset, target int) {
	binary.LittleEndian.PutUint64(p.Code[offset+1:], uint64(int64(target-offset)))
}

// Len returns the code length in bytes.
func (p *Program) Len() int { return len(p.Code) }

// Instruction is one decoded instruction.
type Instruction struct {
	Offset  int
	Op      Opcode
	Operand int64
}

// Target returns the absolute offset a jump instruction transfers to.
func (in Instruction) Target() int { return in.Offset + int(in.Operand) }

// Errors returned by Decode and Validate.
var (
	ErrTruncated   = errors.New("truncated instruction")
	ErrJumpTarget  = errors.New("jump target is not an instruction boundary")
	ErrLocalIndex  = errors.New("local index out of range")
	ErrUnknownCode = errors.New("unknown opcode")
)

// DecodeError locates a problem in a program body.
type DecodeError struct {
	Program string
	Offset  int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s@%04X: %v", e.Program, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode splits the body into instructions. Unknown opcodes decode as
// operand-less instructions.
func (p *Program) Decode() ([]Instruction, error) {
	var out []Instruction
	for off := 0; off < len(p.Code); {
		op := Opcode(p.Code[off])
		in := Instruction{Offset: off, Op: op}
		n := op.OperandLen()
		if off+1+n > len(p.Code) {
			return out, &DecodeError{Program: p.Name, Offset: off, Err: ErrTruncated}
		}
		if n == OperandSize {
			in.Operand = int64(binary.LittleEndian.Uint64(p.Code[off+1:]))
		}
		out = append(out, in)
		off += 1 + n
	}
	return out, nil
}

// Validate checks that the body decodes, that jumps land on instruction
// boundaries inside the body and that local indices fit the frame. Unknown
// opcodes are reported only when strict is set; otherwise they are left for
// the machine's unknown-opcode handler.
func (p *Program) Validate(strict bool) error {
	insts, err := p.Decode()
	if err != nil {
		return err
	}
	starts := make(map[int]bool, len(insts))
	for _, in := range insts {
		starts[in.Offset] = true
	}
	for _, in := range insts {
		switch {
		case in.Op.IsJump():
			if !starts[in.Target()] {
				return &DecodeError{Program: p.Name, Offset: in.Offset, Err: ErrJumpTarget}
			}
		case in.Op == OpPushLocal || in.Op == OpPopLocal:
			if uint64(in.Operand) >= p.NLocals {
				return &DecodeError{Program: p.Name, Offset: in.Offset, Err: ErrLocalIndex}
			}
		case strict && !in.Op.Known():
			return &DecodeError{Program: p.Name, Offset: in.Offset, Err: ErrUnknownCode}
		}
	}
	return nil
}
