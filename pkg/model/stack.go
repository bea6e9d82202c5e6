package model

import "github.com/chazu/vmgen/pkg/il"

const slotSize = 8

// OperandStack is the virtual machine's stack of 64-bit operands. Stacks
// grow upward in memory with an 8-byte stride.
type OperandStack interface {
	Mode() Mode
	// Initialize binds the stack to the stack-pointer field at spAddr.
	// limitAddr names the field holding the first address past the stack
	// region; Real stacks guard against it and may be given nil.
	Initialize(b *il.Builder, spAddr, limitAddr *il.Value)
	// Reserve64 claims n 8-byte slots below the first operand and returns
	// the address of the first one. Only valid on an empty stack.
	Reserve64(b *il.Builder, n Size) *il.Value
	Push(b *il.Builder, v *il.Value)
	Pop(b *il.Builder) *il.Value
	Top(b *il.Builder) *il.Value
	// Pick returns the operand depth slots below the top without removing it.
	Pick(b *il.Builder, depth int) *il.Value
	Drop(b *il.Builder, n int)
	Dup(b *il.Builder)
	// Depth reports the number of cached operands, or false when the depth
	// is only known at run time.
	Depth() (int, bool)
	Commit(b *il.Builder)
	Reload(b *il.Builder)
	MergeInto(b *il.Builder, dest OperandStack)
	Clone(b *il.Builder) OperandStack
}

// NewOperandStack returns an operand stack for mode.
func NewOperandStack(mode Mode, opts Options) OperandStack {
	switch mode {
	case Real:
		return &RealStack{opts: opts}
	case Virt:
		return &VirtStack{slots: opts.StackSlots}
	default:
		return &PureStack{slots: opts.StackSlots}
	}
}

// RealStack keeps nothing; every operation is a memory access through the
// stack pointer.
type RealStack struct {
	opts  Options
	sp    RealRegister
	floor *il.Value
	limit *il.Value
}

func (s *RealStack) Mode() Mode { return Real }

func (s *RealStack) Initialize(b *il.Builder, spAddr, limitAddr *il.Value) {
	s.sp = RealRegister{name: "sp", typ: b.Types().Address}
	s.sp.Initialize(b, spAddr)
	s.limit = nil
	if limitAddr != nil && s.opts.Checks {
		s.limit = b.LoadAt(b.Types().Address, limitAddr)
	}
}

func (s *RealStack) Reserve64(b *il.Builder, n Size) *il.Value {
	base := s.sp.Load(b)
	top := b.Add(base, b.Mul(n.IL(b), b.ConstAddress(slotSize)))
	s.overflow(b, top)
	s.sp.Store(b, top)
	s.floor = top
	return base
}

func (s *RealStack) Push(b *il.Builder, v *il.Value) {
	sp := s.sp.Load(b)
	next := b.Add(sp, b.ConstAddress(slotSize))
	s.overflow(b, next)
	b.StoreAt(sp, asInt64(b, v))
	s.sp.Store(b, next)
}

func (s *RealStack) Pop(b *il.Builder) *il.Value {
	sp := b.Sub(s.sp.Load(b), b.ConstAddress(slotSize))
	s.underflow(b, sp)
	v := b.LoadAt(b.Types().Int64, sp)
	if s.opts.Sentinel {
		b.StoreAt(sp, b.ConstInt64(s.opts.SentinelValue))
	}
	s.sp.Store(b, sp)
	return v
}

func (s *RealStack) Top(b *il.Builder) *il.Value { return s.Pick(b, 0) }

func (s *RealStack) Pick(b *il.Builder, depth int) *il.Value {
	addr := b.Sub(s.sp.Load(b), b.ConstAddress(uint64(depth+1)*slotSize))
	s.underflow(b, addr)
	return b.LoadAt(b.Types().Int64, addr)
}

func (s *RealStack) Drop(b *il.Builder, n int) {
	if n == 0 {
		return
	}
	sp := b.Sub(s.sp.Load(b), b.ConstAddress(uint64(n)*slotSize))
	s.underflow(b, sp)
	s.sp.Store(b, sp)
}

func (s *RealStack) Dup(b *il.Builder) { s.Push(b, s.Top(b)) }

func (s *RealStack) Depth() (int, bool) { return 0, false }

func (s *RealStack) underflow(b *il.Builder, addr *il.Value) {
	if s.floor == nil {
		return
	}
	s.opts.guard(b, b.UnsignedLessThan(addr, s.floor), "operand stack underflow")
}

// overflow guards a new stack pointer against the end of the stack region.
func (s *RealStack) overflow(b *il.Builder, top *il.Value) {
	if s.limit == nil {
		return
	}
	s.opts.guard(b, b.UnsignedLessThan(s.limit, top), "operand stack overflow")
}

func (s *RealStack) Commit(b *il.Builder) {}

func (s *RealStack) Reload(b *il.Builder) {}

func (s *RealStack) MergeInto(b *il.Builder, dest OperandStack) {
	if _, ok := dest.(*RealStack); !ok {
		Fail("stack", ErrModeMismatch, "merge into %s stack", dest.Mode())
	}
}

func (s *RealStack) Clone(b *il.Builder) OperandStack {
	c := *s
	return &c
}

// VirtStack caches operands pushed while generating. The memory image at
// [base, base+8*len) is written only by Commit. The depth is known here, so
// a stack bounded by slots overflows at generation time.
type VirtStack struct {
	sp       VirtRegister
	base     *il.Value
	elems    []*il.Value
	slots    uint64
	reserved uint64
}

func (s *VirtStack) Mode() Mode { return Virt }

func (s *VirtStack) Initialize(b *il.Builder, spAddr, limitAddr *il.Value) {
	s.sp = VirtRegister{name: "sp", typ: b.Types().Address}
	s.sp.Initialize(b, spAddr)
	s.base = b.Copy(s.sp.Load(b))
	s.elems = nil
	s.reserved = 0
}

func (s *VirtStack) Reserve64(b *il.Builder, n Size) *il.Value {
	count := n.Unpack()
	if len(s.elems) != 0 {
		Fail("stack", ErrMergeShape, "reserve on a stack holding %d operands", len(s.elems))
	}
	s.reserved = checkCapacity(s.slots, s.reserved, count)
	start := b.Copy(s.base)
	s.base = b.Add(s.base, b.ConstAddress(count*slotSize))
	s.sp.Store(b, s.base)
	return start
}

func (s *VirtStack) Push(b *il.Builder, v *il.Value) {
	checkCapacity(s.slots, s.reserved+uint64(len(s.elems)), 1)
	s.elems = append(s.elems, b.Copy(asInt64(b, v)))
}

func (s *VirtStack) Pop(b *il.Builder) *il.Value {
	n := len(s.elems)
	if n == 0 {
		Fail("stack", ErrStackUnderflow, "pop from empty stack")
	}
	v := s.elems[n-1]
	s.elems = s.elems[:n-1]
	return v
}

func (s *VirtStack) Top(b *il.Builder) *il.Value { return s.Pick(b, 0) }

func (s *VirtStack) Pick(b *il.Builder, depth int) *il.Value {
	i := len(s.elems) - 1 - depth
	if depth < 0 || i < 0 {
		Fail("stack", ErrStackUnderflow, "pick %d from stack of %d", depth, len(s.elems))
	}
	return s.elems[i]
}

func (s *VirtStack) Drop(b *il.Builder, n int) {
	if n > len(s.elems) {
		Fail("stack", ErrStackUnderflow, "drop %d from stack of %d", n, len(s.elems))
	}
	s.elems = s.elems[:len(s.elems)-n]
}

func (s *VirtStack) Dup(b *il.Builder) { s.Push(b, s.Top(b)) }

func (s *VirtStack) Depth() (int, bool) { return len(s.elems), true }

func (s *VirtStack) Commit(b *il.Builder) {
	for i, v := range s.elems {
		b.StoreAt(s.slot(b, i), v)
	}
	s.sp.Store(b, s.slot(b, len(s.elems)))
	s.sp.Commit(b)
}

// Reload does nothing: operands live in the cache between joins and are
// reconciled by MergeInto, never re-read from memory.
func (s *VirtStack) Reload(b *il.Builder) {}

func (s *VirtStack) MergeInto(b *il.Builder, dest OperandStack) {
	d, ok := dest.(*VirtStack)
	if !ok {
		Fail("stack", ErrModeMismatch, "merge into %s stack", dest.Mode())
	}
	if len(d.elems) != len(s.elems) {
		Fail("stack", ErrMergeShape, "depth %d merging into depth %d", len(s.elems), len(d.elems))
	}
	s.sp.MergeInto(b, &d.sp)
	b.StoreOver(d.base, s.base)
	for i, v := range s.elems {
		b.StoreOver(d.elems[i], v)
	}
}

func (s *VirtStack) Clone(b *il.Builder) OperandStack {
	c := &VirtStack{
		base:     b.Copy(s.base),
		elems:    make([]*il.Value, len(s.elems)),
		slots:    s.slots,
		reserved: s.reserved,
	}
	c.sp = *s.sp.Clone(b).(*VirtRegister)
	for i, v := range s.elems {
		c.elems[i] = b.Copy(v)
	}
	return c
}

func (s *VirtStack) slot(b *il.Builder, i int) *il.Value {
	if i == 0 {
		return s.base
	}
	return b.Add(s.base, b.ConstAddress(uint64(i)*slotSize))
}

// PureStack is a list of operands with no memory image.
type PureStack struct {
	elems    []*il.Value
	slots    uint64
	reserved uint64
}

func (s *PureStack) Mode() Mode { return Pure }

func (s *PureStack) Initialize(b *il.Builder, spAddr, limitAddr *il.Value) {
	s.elems = nil
	s.reserved = 0
}

func (s *PureStack) Reserve64(b *il.Builder, n Size) *il.Value {
	if len(s.elems) != 0 {
		Fail("stack", ErrMergeShape, "reserve on a stack holding %d operands", len(s.elems))
	}
	s.reserved = checkCapacity(s.slots, s.reserved, n.Unpack())
	return b.ConstAddress(0)
}

func (s *PureStack) Push(b *il.Builder, v *il.Value) {
	checkCapacity(s.slots, s.reserved+uint64(len(s.elems)), 1)
	s.elems = append(s.elems, b.Copy(asInt64(b, v)))
}

func (s *PureStack) Pop(b *il.Builder) *il.Value {
	n := len(s.elems)
	if n == 0 {
		Fail("stack", ErrStackUnderflow, "pop from empty stack")
	}
	v := s.elems[n-1]
	s.elems = s.elems[:n-1]
	return v
}

func (s *PureStack) Top(b *il.Builder) *il.Value { return s.Pick(b, 0) }

func (s *PureStack) Pick(b *il.Builder, depth int) *il.Value {
	i := len(s.elems) - 1 - depth
	if depth < 0 || i < 0 {
		Fail("stack", ErrStackUnderflow, "pick %d from stack of %d", depth, len(s.elems))
	}
	return s.elems[i]
}

func (s *PureStack) Drop(b *il.Builder, n int) {
	if n > len(s.elems) {
		Fail("stack", ErrStackUnderflow, "drop %d from stack of %d", n, len(s.elems))
	}
	s.elems = s.elems[:len(s.elems)-n]
}

func (s *PureStack) Dup(b *il.Builder) { s.Push(b, s.Top(b)) }

func (s *PureStack) Depth() (int, bool) { return len(s.elems), true }

func (s *PureStack) Commit(b *il.Builder) {}

func (s *PureStack) Reload(b *il.Builder) {}

func (s *PureStack) MergeInto(b *il.Builder, dest OperandStack) {
	d, ok := dest.(*PureStack)
	if !ok {
		Fail("stack", ErrModeMismatch, "merge into %s stack", dest.Mode())
	}
	if len(d.elems) != len(s.elems) {
		Fail("stack", ErrMergeShape, "depth %d merging into depth %d", len(s.elems), len(d.elems))
	}
	for i, v := range s.elems {
		b.StoreOver(d.elems[i], v)
	}
}

func (s *PureStack) Clone(b *il.Builder) OperandStack {
	c := &PureStack{elems: make([]*il.Value, len(s.elems)), slots: s.slots, reserved: s.reserved}
	for i, v := range s.elems {
		c.elems[i] = b.Copy(v)
	}
	return c
}

// checkCapacity returns used+n, failing when that exceeds slots. Zero slots
// means unbounded.
func checkCapacity(slots, used, n uint64) uint64 {
	if slots != 0 && used+n > slots {
		Fail("stack", ErrStackOverflow, "%d slots in use, %d more exceed %d", used, n, slots)
	}
	return used + n
}

func asInt64(b *il.Builder, v *il.Value) *il.Value {
	if v.Type() == b.Types().Int64 {
		return v
	}
	return b.ConvertTo(b.Types().Int64, v)
}
