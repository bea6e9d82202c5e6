package il

// Builder emits operations into the current block of a routine. Builders are
// cheap cursors; several may point into the same routine.
type Builder struct {
	r   *Routine
	cur *Block
}

// Routine returns the routine being built.
func (b *Builder) Routine() *Routine { return b.r }

// Types returns the routine's type dictionary.
func (b *Builder) Types() *TypeDictionary { return b.r.types }

// Block returns the block receiving operations.
func (b *Builder) Block() *Block { return b.cur }

// SetBlock moves the cursor to blk.
func (b *Builder) SetBlock(blk *Block) { b.cur = blk }

// At returns a new builder positioned at blk.
func (b *Builder) At(blk *Block) *Builder { return &Builder{r: b.r, cur: blk} }

// Terminated reports whether the current block already ends in a terminator.
func (b *Builder) Terminated() bool { return b.cur.Terminated() }

// Load returns the value bound to the named parameter.
func (b *Builder) Load(name string) *Value {
	for _, p := range b.r.params {
		if p.Name == name {
			return p.Value
		}
	}
	b.r.errorf("unknown parameter %q", name)
	return b.r.newValue(b.r.types.NoType)
}

func (b *Builder) emit(in instr) {
	if b.cur.Terminated() {
		b.r.errorf("block %s: %s emitted after terminator", b.cur.name, in.op)
		return
	}
	b.cur.instrs = append(b.cur.instrs, in)
}

func (b *Builder) checkScalar(op string, vs ...*Value) bool {
	for _, v := range vs {
		if v == nil {
			b.r.errorf("block %s: %s: nil operand", b.cur.name, op)
			return false
		}
		if !v.typ.IsScalar() {
			b.r.errorf("block %s: %s: operand %s has non-scalar type %s", b.cur.name, op, v, v.typ)
			return false
		}
	}
	return true
}

// Const materializes a constant of type t into a fresh slot.
func (b *Builder) Const(t *Type, c int64) *Value {
	v := b.r.newValue(t)
	b.emit(instr{op: opConst, dst: v, imm: c})
	return v
}

// ConstInt64 is shorthand for Const(Int64, c).
func (b *Builder) ConstInt64(c int64) *Value { return b.Const(b.r.types.Int64, c) }

// ConstAddress materializes an address constant.
func (b *Builder) ConstAddress(a Addr) *Value { return b.Const(b.r.types.Address, int64(a)) }

// ConstString materializes a string constant, usable only as a call argument.
func (b *Builder) ConstString(s string) *Value {
	v := b.r.newValue(b.r.types.String)
	b.emit(instr{op: opConstString, dst: v, str: s, imm: int64(b.r.intern(s))})
	return v
}

// Copy duplicates v into a fresh slot.
func (b *Builder) Copy(v *Value) *Value {
	if v == nil {
		b.r.errorf("block %s: copy of nil value", b.cur.name)
		return b.r.newValue(b.r.types.NoType)
	}
	out := b.r.newValue(v.typ)
	b.emit(instr{op: opCopy, dst: out, args: []*Value{v}})
	return out
}

// StoreOver overwrites the slot of dst with the current value of src.
func (b *Builder) StoreOver(dst, src *Value) {
	if dst == nil || src == nil {
		b.r.errorf("block %s: storeover with nil operand", b.cur.name)
		return
	}
	if dst == src {
		return
	}
	b.emit(instr{op: opStoreOver, dst: dst, args: []*Value{src}})
}

func (b *Builder) binary(op opcode, x, y *Value, result *Type) *Value {
	if !b.checkScalar(op.String(), x, y) {
		return b.r.newValue(b.r.types.NoType)
	}
	if result == nil {
		result = x.typ
	}
	v := b.r.newValue(result)
	b.emit(instr{op: op, dst: v, args: []*Value{x, y}})
	return v
}

// Add returns x+y with the type of x.
func (b *Builder) Add(x, y *Value) *Value { return b.binary(opAdd, x, y, nil) }

// Sub returns x-y with the type of x.
func (b *Builder) Sub(x, y *Value) *Value { return b.binary(opSub, x, y, nil) }

// Mul returns x*y with the type of x.
func (b *Builder) Mul(x, y *Value) *Value { return b.binary(opMul, x, y, nil) }

// Equal returns 1 when x == y and 0 otherwise.
func (b *Builder) Equal(x, y *Value) *Value {
	return b.binary(opEqual, x, y, b.r.types.Int64)
}

// LessThan compares x < y as signed integers.
func (b *Builder) LessThan(x, y *Value) *Value {
	return b.binary(opLessThan, x, y, b.r.types.Int64)
}

// UnsignedLessThan compares x < y as unsigned integers.
func (b *Builder) UnsignedLessThan(x, y *Value) *Value {
	return b.binary(opUnsignedLessThan, x, y, b.r.types.Int64)
}

// ConvertTo narrows or widens v to type t.
func (b *Builder) ConvertTo(t *Type, v *Value) *Value {
	if !b.checkScalar("convert", v) || !t.IsScalar() {
		return b.r.newValue(b.r.types.NoType)
	}
	out := b.r.newValue(t)
	b.emit(instr{op: opConvert, dst: out, args: []*Value{v}, typ: t})
	return out
}

// LoadAt reads a value of type t from the address held by addr.
func (b *Builder) LoadAt(t *Type, addr *Value) *Value {
	if !b.checkScalar("loadat", addr) || !t.IsScalar() {
		return b.r.newValue(b.r.types.NoType)
	}
	v := b.r.newValue(t)
	b.emit(instr{op: opLoadAt, dst: v, args: []*Value{addr}, typ: t})
	return v
}

// StoreAt writes v to the address held by addr using v's type width.
func (b *Builder) StoreAt(addr, v *Value) {
	if !b.checkScalar("storeat", addr, v) {
		return
	}
	b.emit(instr{op: opStoreAt, args: []*Value{addr, v}, typ: v.typ})
}

// StructFieldInstanceAddress returns base + offsetof(structName.field).
func (b *Builder) StructFieldInstanceAddress(structName, field string, base *Value) *Value {
	f, err := b.r.types.FieldOffset(structName, field)
	if err != nil {
		b.r.errs = append(b.r.errs, err)
		return b.r.newValue(b.r.types.Address)
	}
	if !b.checkScalar("fieldaddr", base) {
		return b.r.newValue(b.r.types.Address)
	}
	v := b.r.newValue(b.r.types.Address)
	b.emit(instr{op: opFieldAddr, dst: v, args: []*Value{base}, imm: f.Offset, str: structName + "." + field})
	return v
}

// LoadIndirect reads structName.field from the record at base.
func (b *Builder) LoadIndirect(structName, field string, base *Value) *Value {
	f, err := b.r.types.FieldOffset(structName, field)
	if err != nil {
		b.r.errs = append(b.r.errs, err)
		return b.r.newValue(b.r.types.NoType)
	}
	return b.LoadAt(f.Type, b.StructFieldInstanceAddress(structName, field, base))
}

// StoreIndirect writes v into structName.field of the record at base.
func (b *Builder) StoreIndirect(structName, field string, base, v *Value) {
	f, err := b.r.types.FieldOffset(structName, field)
	if err != nil {
		b.r.errs = append(b.r.errs, err)
		return
	}
	addr := b.StructFieldInstanceAddress(structName, field, base)
	if v != nil && v.typ != f.Type && v.typ.IsScalar() {
		v = b.ConvertTo(f.Type, v)
	}
	b.StoreAt(addr, v)
}

// Call invokes the named runtime helper. Helpers are bound at compile time.
func (b *Builder) Call(name string, args ...*Value) {
	for _, a := range args {
		if a == nil {
			b.r.errorf("block %s: call %s: nil argument", b.cur.name, name)
			return
		}
	}
	b.emit(instr{op: opCall, args: args, str: name})
}

func (b *Builder) terminate(t terminator) {
	if b.cur.Terminated() {
		b.r.errorf("block %s: second terminator", b.cur.name)
		return
	}
	b.cur.term = t
}

// Goto ends the block with an unconditional jump.
func (b *Builder) Goto(target *Block) {
	b.terminate(terminator{kind: termGoto, targets: []*Block{target}})
}

// Branch ends the block, jumping to then when cond is non-zero and to els
// otherwise.
func (b *Builder) Branch(cond *Value, then, els *Block) {
	if !b.checkScalar("branch", cond) {
		return
	}
	b.terminate(terminator{kind: termBranch, cond: cond, targets: []*Block{then, els}})
}

// Switch ends the block with a multi-way jump on v.
func (b *Builder) Switch(v *Value, cases []Case, def *Block) {
	if !b.checkScalar("switch", v) {
		return
	}
	seen := make(map[int64]bool, len(cases))
	for _, c := range cases {
		if seen[c.Value] {
			b.r.errorf("block %s: duplicate switch case %d", b.cur.name, c.Value)
			return
		}
		seen[c.Value] = true
	}
	b.terminate(terminator{kind: termSwitch, cond: v, cases: cases, targets: []*Block{def}})
}

// Return ends the block and the routine invocation.
func (b *Builder) Return() {
	b.terminate(terminator{kind: termReturn})
}

// IfThen emits then into a new block entered when cond is non-zero, and
// leaves the builder at the join block. then may terminate its block (for
// instance with Return); otherwise it falls into the join.
func (b *Builder) IfThen(cond *Value, then func(tb *Builder)) {
	thenBlk := b.r.NewBlock(b.cur.name + ".then")
	join := b.r.NewBlock(b.cur.name + ".join")
	b.Branch(cond, thenBlk, join)

	tb := b.At(thenBlk)
	then(tb)
	if !tb.Terminated() {
		tb.Goto(join)
	}
	b.cur = join
}
