package il

import (
	"encoding/binary"
	"fmt"
)

// Addr is a byte address inside a Memory arena. Zero is the null address.
type Addr = uint64

// nullGuard keeps the first bytes of every arena unallocated so that a zero
// address never aliases live data.
const nullGuard = 16

// Memory is the flat little-endian arena that generated routines read and
// write. It plays the role of process memory for records, operand stacks and
// bytecode bodies.
type Memory struct {
	data []byte
	brk  uint64
}

// Fault reports an out-of-bounds access by generated code or by the host.
type Fault struct {
	Op   string
	Addr Addr
	Size uint64
}

func (f *Fault) Error() string {
	return fmt.Sprintf("il: memory fault: %s of %d bytes at 0x%x", f.Op, f.Size, f.Addr)
}

// NewMemory creates an arena of size bytes.
func NewMemory(size int) *Memory {
	if size < nullGuard {
		size = nullGuard
	}
	return &Memory{data: make([]byte, size), brk: nullGuard}
}

// Size returns the arena capacity in bytes.
func (m *Memory) Size() int { return len(m.data) }

// Used returns the number of bytes handed out by Alloc, including the null
// guard.
func (m *Memory) Used() uint64 { return m.brk }

// Alloc reserves size bytes aligned to align and returns their address.
// Allocations are never freed; the arena lives as long as the VM.
func (m *Memory) Alloc(size, align uint64) (Addr, error) {
	if align == 0 {
		align = 1
	}
	start := (m.brk + align - 1) / align * align
	end := start + size
	if end > uint64(len(m.data)) || end < start {
		return 0, fmt.Errorf("il: out of memory: need %d bytes, %d free", size, uint64(len(m.data))-m.brk)
	}
	m.brk = end
	return start, nil
}

func (m *Memory) check(op string, addr Addr, n uint64) {
	if addr < nullGuard || addr+n > uint64(len(m.data)) || addr+n < addr {
		panic(&Fault{Op: op, Addr: addr, Size: n})
	}
}

// Load reads a scalar of kind k. Narrow kinds are zero- or sign-extended to
// 64 bits according to their signedness.
func (m *Memory) Load(k Kind, addr Addr) int64 {
	n := uint64(k.Size())
	if n == 0 {
		panic(fmt.Sprintf("il: load of non-scalar kind %s", k))
	}
	m.check("load", addr, n)
	switch k {
	case KindUint8:
		return int64(m.data[addr])
	case KindInt32:
		return int64(int32(binary.LittleEndian.Uint32(m.data[addr:])))
	default:
		return int64(binary.LittleEndian.Uint64(m.data[addr:]))
	}
}

// Store writes a scalar of kind k, truncating v to the kind's width.
func (m *Memory) Store(k Kind, addr Addr, v int64) {
	n := uint64(k.Size())
	if n == 0 {
		panic(fmt.Sprintf("il: store of non-scalar kind %s", k))
	}
	m.check("store", addr, n)
	switch k {
	case KindUint8:
		m.data[addr] = byte(v)
	case KindInt32:
		binary.LittleEndian.PutUint32(m.data[addr:], uint32(v))
	default:
		binary.LittleEndian.PutUint64(m.data[addr:], uint64(v))
	}
}

// LoadInt64 reads an 8-byte word.
func (m *Memory) LoadInt64(addr Addr) int64 { return m.Load(KindInt64, addr) }

// StoreInt64 writes an 8-byte word.
func (m *Memory) StoreInt64(addr Addr, v int64) { m.Store(KindInt64, addr, v) }

// LoadUint8 reads one byte.
func (m *Memory) LoadUint8(addr Addr) uint8 { return uint8(m.Load(KindUint8, addr)) }

// Write copies b into the arena at addr.
func (m *Memory) Write(addr Addr, b []byte) {
	m.check("write", addr, uint64(len(b)))
	copy(m.data[addr:], b)
}

// Read returns a copy of n bytes at addr.
func (m *Memory) Read(addr Addr, n uint64) []byte {
	m.check("read", addr, n)
	out := make([]byte, n)
	copy(out, m.data[addr:addr+n])
	return out
}
