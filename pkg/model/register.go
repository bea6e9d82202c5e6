package model

import "github.com/chazu/vmgen/pkg/il"

// Register is a single machine-word slot of virtual machine state, such as
// the stack pointer or the program counter.
type Register interface {
	Mode() Mode
	// Initialize binds the register to the memory at addr. Pure registers
	// ignore addr, which may be nil.
	Initialize(b *il.Builder, addr *il.Value)
	Load(b *il.Builder) *il.Value
	Store(b *il.Builder, v *il.Value)
	Commit(b *il.Builder)
	Reload(b *il.Builder)
	MergeInto(b *il.Builder, dest Register)
	Clone(b *il.Builder) Register
}

// NewRegister returns a register of type t for mode.
func NewRegister(mode Mode, name string, t *il.Type) Register {
	switch mode {
	case Real:
		return &RealRegister{name: name, typ: t}
	case Virt:
		return &VirtRegister{name: name, typ: t}
	default:
		return &PureRegister{name: name, typ: t}
	}
}

// RealRegister reads and writes memory on every access.
type RealRegister struct {
	name string
	typ  *il.Type
	addr *il.Value
}

func (r *RealRegister) Mode() Mode { return Real }

func (r *RealRegister) Initialize(b *il.Builder, addr *il.Value) { r.addr = addr }

func (r *RealRegister) Load(b *il.Builder) *il.Value {
	r.bound()
	return b.LoadAt(r.typ, r.addr)
}

func (r *RealRegister) Store(b *il.Builder, v *il.Value) {
	r.bound()
	if v.Type() != r.typ {
		v = b.ConvertTo(r.typ, v)
	}
	b.StoreAt(r.addr, v)
}

func (r *RealRegister) Commit(b *il.Builder) {}

func (r *RealRegister) Reload(b *il.Builder) {}

func (r *RealRegister) MergeInto(b *il.Builder, dest Register) {
	if _, ok := dest.(*RealRegister); !ok {
		Fail("register "+r.name, ErrModeMismatch, "merge into %s register", dest.Mode())
	}
}

func (r *RealRegister) Clone(b *il.Builder) Register {
	c := *r
	return &c
}

func (r *RealRegister) bound() {
	if r.addr == nil {
		Fail("register "+r.name, ErrModeMismatch, "used before Initialize")
	}
}

// VirtRegister caches the register's value in a backend slot and touches
// memory only on Initialize, Commit and Reload.
type VirtRegister struct {
	name  string
	typ   *il.Type
	addr  *il.Value
	value *il.Value
}

func (r *VirtRegister) Mode() Mode { return Virt }

func (r *VirtRegister) Initialize(b *il.Builder, addr *il.Value) {
	r.addr = addr
	r.value = b.LoadAt(r.typ, addr)
}

// Load returns the cached slot. The slot belongs to the register; callers
// that keep it past the next Store must copy it.
func (r *VirtRegister) Load(b *il.Builder) *il.Value {
	r.bound()
	return r.value
}

func (r *VirtRegister) Store(b *il.Builder, v *il.Value) {
	if v.Type() != r.typ {
		v = b.ConvertTo(r.typ, v)
	}
	r.value = b.Copy(v)
}

func (r *VirtRegister) Commit(b *il.Builder) {
	r.bound()
	b.StoreAt(r.addr, r.value)
}

func (r *VirtRegister) Reload(b *il.Builder) {
	r.bound()
	b.StoreOver(r.value, b.LoadAt(r.typ, r.addr))
}

func (r *VirtRegister) MergeInto(b *il.Builder, dest Register) {
	d, ok := dest.(*VirtRegister)
	if !ok {
		Fail("register "+r.name, ErrModeMismatch, "merge into %s register", dest.Mode())
	}
	b.StoreOver(d.value, r.value)
}

func (r *VirtRegister) Clone(b *il.Builder) Register {
	c := *r
	if r.value != nil {
		c.value = b.Copy(r.value)
	}
	return &c
}

func (r *VirtRegister) bound() {
	if r.value == nil {
		Fail("register "+r.name, ErrModeMismatch, "used before Initialize")
	}
}

// PureRegister is a cached slot without backing memory. It starts at zero.
type PureRegister struct {
	name  string
	typ   *il.Type
	value *il.Value
}

func (r *PureRegister) Mode() Mode { return Pure }

func (r *PureRegister) Initialize(b *il.Builder, addr *il.Value) {
	r.value = b.Const(r.typ, 0)
}

func (r *PureRegister) Load(b *il.Builder) *il.Value {
	if r.value == nil {
		r.Initialize(b, nil)
	}
	return r.value
}

func (r *PureRegister) Store(b *il.Builder, v *il.Value) {
	if v.Type() != r.typ {
		v = b.ConvertTo(r.typ, v)
	}
	r.value = b.Copy(v)
}

func (r *PureRegister) Commit(b *il.Builder) {}

func (r *PureRegister) Reload(b *il.Builder) {}

func (r *PureRegister) MergeInto(b *il.Builder, dest Register) {
	d, ok := dest.(*PureRegister)
	if !ok {
		Fail("register "+r.name, ErrModeMismatch, "merge into %s register", dest.Mode())
	}
	b.StoreOver(d.Load(b), r.Load(b))
}

func (r *PureRegister) Clone(b *il.Builder) Register {
	c := *r
	if r.value != nil {
		c.value = b.Copy(r.value)
	}
	return &c
}
