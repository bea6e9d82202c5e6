package model

import "github.com/chazu/vmgen/pkg/il"

// OperandArray is a fixed-size array of 64-bit slots addressed by index,
// used for a function's locals. Its base address lives in a frame-pointer
// register.
type OperandArray interface {
	Mode() Mode
	// Initialize records base in the frame-pointer field at fpAddr and sizes
	// the array to count slots.
	Initialize(b *il.Builder, fpAddr, base *il.Value, count Size)
	Get(b *il.Builder, index Size) *il.Value
	Set(b *il.Builder, index Size, v *il.Value)
	Commit(b *il.Builder)
	Reload(b *il.Builder)
	MergeInto(b *il.Builder, dest OperandArray)
	Clone(b *il.Builder) OperandArray
}

// NewOperandArray returns a locals array for mode.
func NewOperandArray(mode Mode, opts Options) OperandArray {
	switch mode {
	case Real:
		return &RealArray{opts: opts}
	case Virt:
		return &VirtArray{}
	default:
		return &PureArray{}
	}
}

// RealArray addresses memory through the frame pointer on every access.
type RealArray struct {
	opts  Options
	fp    RealRegister
	count *il.Value
}

func (a *RealArray) Mode() Mode { return Real }

func (a *RealArray) Initialize(b *il.Builder, fpAddr, base *il.Value, count Size) {
	a.fp = RealRegister{name: "fp", typ: b.Types().Address}
	a.fp.Initialize(b, fpAddr)
	a.fp.Store(b, base)
	a.count = count.IL(b)
}

func (a *RealArray) addr(b *il.Builder, index Size) *il.Value {
	idx := index.IL(b)
	in := b.UnsignedLessThan(idx, a.count)
	a.opts.guard(b, b.Equal(in, b.ConstInt64(0)), "local index out of range")
	return b.Add(a.fp.Load(b), b.Mul(idx, b.ConstInt64(slotSize)))
}

func (a *RealArray) Get(b *il.Builder, index Size) *il.Value {
	return b.LoadAt(b.Types().Int64, a.addr(b, index))
}

func (a *RealArray) Set(b *il.Builder, index Size, v *il.Value) {
	b.StoreAt(a.addr(b, index), asInt64(b, v))
}

func (a *RealArray) Commit(b *il.Builder) {}

func (a *RealArray) Reload(b *il.Builder) {}

func (a *RealArray) MergeInto(b *il.Builder, dest OperandArray) {
	if _, ok := dest.(*RealArray); !ok {
		Fail("locals", ErrModeMismatch, "merge into %s locals", dest.Mode())
	}
}

func (a *RealArray) Clone(b *il.Builder) OperandArray {
	c := *a
	return &c
}

// VirtArray caches every slot. Indices must be generation-time constants.
type VirtArray struct {
	fp    VirtRegister
	elems []*il.Value
}

func (a *VirtArray) Mode() Mode { return Virt }

func (a *VirtArray) Initialize(b *il.Builder, fpAddr, base *il.Value, count Size) {
	n := count.Unpack()
	a.fp = VirtRegister{name: "fp", typ: b.Types().Address}
	a.fp.Initialize(b, fpAddr)
	a.fp.Store(b, base)
	a.elems = make([]*il.Value, n)
	for i := range a.elems {
		a.elems[i] = b.LoadAt(b.Types().Int64, a.slot(b, i))
	}
}

func (a *VirtArray) index(index Size) int {
	i := index.Unpack()
	if i >= uint64(len(a.elems)) {
		Fail("locals", ErrLocalIndex, "index %d, %d locals", i, len(a.elems))
	}
	return int(i)
}

func (a *VirtArray) Get(b *il.Builder, index Size) *il.Value {
	return b.Copy(a.elems[a.index(index)])
}

func (a *VirtArray) Set(b *il.Builder, index Size, v *il.Value) {
	a.elems[a.index(index)] = b.Copy(asInt64(b, v))
}

func (a *VirtArray) Commit(b *il.Builder) {
	a.fp.Commit(b)
	for i, v := range a.elems {
		b.StoreAt(a.slot(b, i), v)
	}
}

func (a *VirtArray) Reload(b *il.Builder) {
	for i, v := range a.elems {
		b.StoreOver(v, b.LoadAt(b.Types().Int64, a.slot(b, i)))
	}
}

func (a *VirtArray) MergeInto(b *il.Builder, dest OperandArray) {
	d, ok := dest.(*VirtArray)
	if !ok {
		Fail("locals", ErrModeMismatch, "merge into %s locals", dest.Mode())
	}
	if len(d.elems) != len(a.elems) {
		Fail("locals", ErrMergeShape, "%d locals merging into %d", len(a.elems), len(d.elems))
	}
	a.fp.MergeInto(b, &d.fp)
	for i, v := range a.elems {
		b.StoreOver(d.elems[i], v)
	}
}

func (a *VirtArray) Clone(b *il.Builder) OperandArray {
	c := &VirtArray{elems: make([]*il.Value, len(a.elems))}
	c.fp = *a.fp.Clone(b).(*VirtRegister)
	for i, v := range a.elems {
		c.elems[i] = b.Copy(v)
	}
	return c
}

func (a *VirtArray) slot(b *il.Builder, i int) *il.Value {
	return b.Add(a.fp.Load(b), b.ConstAddress(uint64(i)*slotSize))
}

// PureArray caches every slot with no memory image. Slots start at zero.
type PureArray struct {
	elems []*il.Value
}

func (a *PureArray) Mode() Mode { return Pure }

func (a *PureArray) Initialize(b *il.Builder, fpAddr, base *il.Value, count Size) {
	a.elems = make([]*il.Value, count.Unpack())
	for i := range a.elems {
		a.elems[i] = b.ConstInt64(0)
	}
}

func (a *PureArray) index(index Size) int {
	i := index.Unpack()
	if i >= uint64(len(a.elems)) {
		Fail("locals", ErrLocalIndex, "index %d, %d locals", i, len(a.elems))
	}
	return int(i)
}

func (a *PureArray) Get(b *il.Builder, index Size) *il.Value {
	return b.Copy(a.elems[a.index(index)])
}

func (a *PureArray) Set(b *il.Builder, index Size, v *il.Value) {
	a.elems[a.index(index)] = b.Copy(asInt64(b, v))
}

func (a *PureArray) Commit(b *il.Builder) {}

func (a *PureArray) Reload(b *il.Builder) {}

func (a *PureArray) MergeInto(b *il.Builder, dest OperandArray) {
	d, ok := dest.(*PureArray)
	if !ok {
		Fail("locals", ErrModeMismatch, "merge into %s locals", dest.Mode())
	}
	if len(d.elems) != len(a.elems) {
		Fail("locals", ErrMergeShape, "%d locals merging into %d", len(a.elems), len(d.elems))
	}
	for i, v := range a.elems {
		b.StoreOver(d.elems[i], v)
	}
}

func (a *PureArray) Clone(b *il.Builder) OperandArray {
	c := &PureArray{elems: make([]*il.Value, len(a.elems))}
	for i, v := range a.elems {
		c.elems[i] = b.Copy(v)
	}
	return c
}
