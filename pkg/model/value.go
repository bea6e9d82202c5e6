package model

import "github.com/chazu/vmgen/pkg/il"

// Native is the set of host types a Value can carry.
type Native interface {
	~uint8 | ~int32 | ~int64 | ~uint64
}

// Value is a generation-time handle for a quantity of native type T. It
// either holds a constant known while generating (Virt and Pure modes), or
// a backend value computed by the generated code.
type Value[T Native] struct {
	mode  Mode
	known bool
	c     T
	v     *il.Value
}

// Size is a byte count or index.
type Size = Value[uint64]

// Int64 is a signed machine word.
type Int64 = Value[int64]

// Byte is an opcode or other single byte.
type Byte = Value[uint8]

// Pack wraps a generation-time constant.
func Pack[T Native](mode Mode, c T) Value[T] {
	return Value[T]{mode: mode, known: true, c: c}
}

// Symbolic wraps a value computed by generated code.
func Symbolic[T Native](mode Mode, v *il.Value) Value[T] {
	return Value[T]{mode: mode, v: v}
}

// Const builds a constant appropriate for mode: a packed constant when the
// mode caches, a materialized backend constant in Real mode.
func Const[T Native](b *il.Builder, mode Mode, c T) Value[T] {
	if mode.Caches() {
		return Pack(mode, c)
	}
	return Symbolic[T](mode, b.Const(ilType[T](b.Types()), int64(c)))
}

// Mode returns the mode the value was produced in.
func (x Value[T]) Mode() Mode { return x.mode }

// Known reports whether the value is a generation-time constant.
func (x Value[T]) Known() bool { return x.known }

// Unpack returns the constant. It fails generation when the value is only
// known at run time.
func (x Value[T]) Unpack() T {
	if !x.known {
		Fail("value", ErrNotConstant, "%s value has no generation-time constant", x.mode)
	}
	return x.c
}

// IL returns a backend value, materializing constants on demand.
func (x Value[T]) IL(b *il.Builder) *il.Value {
	if x.known {
		return b.Const(ilType[T](b.Types()), int64(x.c))
	}
	return x.v
}

// Expect fails generation unless the value was produced in mode m.
func (x Value[T]) Expect(m Mode) Value[T] {
	if x.mode != m {
		Fail("value", ErrModeMismatch, "%s value used with %s component", x.mode, m)
	}
	return x
}

func ilType[T Native](td *il.TypeDictionary) *il.Type {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return td.Uint8
	case int32:
		return td.Int32
	default:
		return td.Int64
	}
}
