package model

import (
	"encoding/binary"

	"github.com/chazu/vmgen/pkg/il"
)

// Pc is the program counter: a register over the address of the current
// instruction with helpers to decode it.
type Pc interface {
	Mode() Mode
	// Initialize binds the pc and start-pc fields of the interpreter record.
	Initialize(b *il.Builder, pcAddr, startAddr *il.Value)
	// Load returns the address of the current instruction.
	Load(b *il.Builder) *il.Value
	// Start returns the address of the first byte of the function body.
	Start(b *il.Builder) *il.Value
	// Offset reports the byte offset into the body when it is known while
	// generating.
	Offset() (uint64, bool)
	Opcode(b *il.Builder) Byte
	// ImmediateInt64 decodes a little-endian signed word off bytes past the
	// current instruction start.
	ImmediateInt64(b *il.Builder, off uint64) Int64
	// ImmediateSize decodes a little-endian unsigned word off bytes past the
	// current instruction start.
	ImmediateSize(b *il.Builder, off uint64) Size
	// Next moves the pc by length bytes, which may be negative.
	Next(b *il.Builder, length Int64)
	Commit(b *il.Builder)
	Reload(b *il.Builder)
	MergeInto(b *il.Builder, dest Pc)
	Clone(b *il.Builder) Pc
}

// NewPc returns a program counter for mode. Virt and Pure counters decode
// code directly; body is its address in machine memory.
func NewPc(mode Mode, code []byte, body uint64) Pc {
	if mode == Real {
		return &RealPc{}
	}
	return &ConstPc{mode: mode, code: code, body: body}
}

// RealPc decodes from live memory.
type RealPc struct {
	pc    RealRegister
	start RealRegister
}

func (p *RealPc) Mode() Mode { return Real }

func (p *RealPc) Initialize(b *il.Builder, pcAddr, startAddr *il.Value) {
	p.pc = RealRegister{name: "pc", typ: b.Types().Address}
	p.pc.Initialize(b, pcAddr)
	p.start = RealRegister{name: "startpc", typ: b.Types().Address}
	p.start.Initialize(b, startAddr)
}

func (p *RealPc) Load(b *il.Builder) *il.Value { return p.pc.Load(b) }

func (p *RealPc) Start(b *il.Builder) *il.Value { return p.start.Load(b) }

func (p *RealPc) Offset() (uint64, bool) { return 0, false }

func (p *RealPc) Opcode(b *il.Builder) Byte {
	return Symbolic[uint8](Real, b.LoadAt(b.Types().Uint8, p.pc.Load(b)))
}

func (p *RealPc) operand(b *il.Builder, off uint64) *il.Value {
	return b.LoadAt(b.Types().Int64, b.Add(p.pc.Load(b), b.ConstAddress(off)))
}

func (p *RealPc) ImmediateInt64(b *il.Builder, off uint64) Int64 {
	return Symbolic[int64](Real, p.operand(b, off))
}

func (p *RealPc) ImmediateSize(b *il.Builder, off uint64) Size {
	return Symbolic[uint64](Real, p.operand(b, off))
}

func (p *RealPc) Next(b *il.Builder, length Int64) {
	p.pc.Store(b, b.Add(p.pc.Load(b), length.Expect(Real).IL(b)))
}

func (p *RealPc) Commit(b *il.Builder) {}

func (p *RealPc) Reload(b *il.Builder) {}

func (p *RealPc) MergeInto(b *il.Builder, dest Pc) {
	if _, ok := dest.(*RealPc); !ok {
		Fail("pc", ErrModeMismatch, "merge into %s pc", dest.Mode())
	}
}

func (p *RealPc) Clone(b *il.Builder) Pc {
	c := *p
	return &c
}

// ConstPc tracks the pc as a byte offset known while generating, for Virt
// and Pure modes. Every decode reads the code buffer and yields a constant.
// A Virt pc writes its address to memory on Commit; a Pure pc never does.
type ConstPc struct {
	mode      Mode
	code      []byte
	body      uint64
	off       uint64
	pcAddr    *il.Value
	startAddr *il.Value
}

func (p *ConstPc) Mode() Mode { return p.mode }

func (p *ConstPc) Initialize(b *il.Builder, pcAddr, startAddr *il.Value) {
	p.pcAddr, p.startAddr = pcAddr, startAddr
	p.off = 0
}

func (p *ConstPc) Load(b *il.Builder) *il.Value { return b.ConstAddress(p.body + p.off) }

func (p *ConstPc) Start(b *il.Builder) *il.Value { return b.ConstAddress(p.body) }

func (p *ConstPc) Offset() (uint64, bool) { return p.off, true }

func (p *ConstPc) bytes(off, n uint64) []byte {
	at := p.off + off
	if at+n > uint64(len(p.code)) || at+n < at {
		Fail("pc", ErrPcRange, "read of %d bytes at offset %d, body is %d bytes", n, at, len(p.code))
	}
	return p.code[at : at+n]
}

func (p *ConstPc) Opcode(b *il.Builder) Byte {
	return Pack(p.mode, p.bytes(0, 1)[0])
}

func (p *ConstPc) ImmediateInt64(b *il.Builder, off uint64) Int64 {
	return Pack(p.mode, int64(binary.LittleEndian.Uint64(p.bytes(off, 8))))
}

func (p *ConstPc) ImmediateSize(b *il.Builder, off uint64) Size {
	return Pack(p.mode, binary.LittleEndian.Uint64(p.bytes(off, 8)))
}

func (p *ConstPc) Next(b *il.Builder, length Int64) {
	n := int64(p.off) + length.Expect(p.mode).Unpack()
	if n < 0 || n > int64(len(p.code)) {
		Fail("pc", ErrPcRange, "advance to offset %d, body is %d bytes", n, len(p.code))
	}
	p.off = uint64(n)
}

func (p *ConstPc) Commit(b *il.Builder) {
	if p.mode != Virt || p.pcAddr == nil {
		return
	}
	b.StoreAt(p.pcAddr, p.Load(b))
	if p.startAddr != nil {
		b.StoreAt(p.startAddr, p.Start(b))
	}
}

func (p *ConstPc) Reload(b *il.Builder) {}

func (p *ConstPc) MergeInto(b *il.Builder, dest Pc) {
	d, ok := dest.(*ConstPc)
	if !ok || d.mode != p.mode {
		Fail("pc", ErrModeMismatch, "merge %s pc into %s pc", p.mode, dest.Mode())
	}
	if d.off != p.off {
		Fail("pc", ErrMergeShape, "pc at offset %d merging into offset %d", p.off, d.off)
	}
}

func (p *ConstPc) Clone(b *il.Builder) Pc {
	c := *p
	return &c
}
