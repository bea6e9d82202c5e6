package il

import (
	"errors"
	"fmt"
)

// Value is a typed symbolic quantity inside a routine. Every value names one
// mutable slot of the routine's frame: StoreOver rewrites the slot, which is
// how generation paths agree on where a live quantity resides at a join.
type Value struct {
	id  int
	typ *Type
}

// ID returns the slot number of the value.
func (v *Value) ID() int { return v.id }

// Type returns the value's type.
func (v *Value) Type() *Type { return v.typ }

func (v *Value) String() string { return fmt.Sprintf("v%d", v.id) }

type opcode uint8

const (
	opConst opcode = iota
	opConstString
	opCopy
	opStoreOver
	opAdd
	opSub
	opMul
	opEqual
	opLessThan
	opUnsignedLessThan
	opConvert
	opLoadAt
	opStoreAt
	opFieldAddr
	opCall
)

var opcodeNames = [...]string{
	opConst:            "const",
	opConstString:      "const.s",
	opCopy:             "copy",
	opStoreOver:        "storeover",
	opAdd:              "add",
	opSub:              "sub",
	opMul:              "mul",
	opEqual:            "eq",
	opLessThan:         "lt",
	opUnsignedLessThan: "ult",
	opConvert:          "convert",
	opLoadAt:           "loadat",
	opStoreAt:          "storeat",
	opFieldAddr:        "fieldaddr",
	opCall:             "call",
}

func (o opcode) String() string { return opcodeNames[o] }

// instr is one emitted operation.
type instr struct {
	op   opcode
	dst  *Value
	args []*Value
	imm  int64
	str  string
	typ  *Type
}

type termKind uint8

const (
	termNone termKind = iota
	termGoto
	termBranch
	termSwitch
	termReturn
)

// Case is one arm of a Switch terminator.
type Case struct {
	Value  int64
	Target *Block
}

type terminator struct {
	kind    termKind
	cond    *Value
	targets []*Block // goto: [target]; branch: [then, else]; switch: [default]
	cases   []Case
}

// Block is a straight-line sequence of operations ending in one terminator.
// A block may carry the VM state that predecessors transferred into it.
type Block struct {
	id     int
	name   string
	instrs []instr
	term   terminator
	state  VMState
}

// Name returns the block label.
func (blk *Block) Name() string { return blk.name }

// ID returns the block number within its routine.
func (blk *Block) ID() int { return blk.id }

// Terminated reports whether a terminator has been emitted.
func (blk *Block) Terminated() bool { return blk.term.kind != termNone }

// State returns the VM state transferred into the block, or nil.
func (blk *Block) State() VMState { return blk.state }

// SetState installs the entry VM state of the block.
func (blk *Block) SetState(s VMState) { blk.state = s }

// Len returns the number of operations in the block, excluding the terminator.
func (blk *Block) Len() int { return len(blk.instrs) }

func (blk *Block) successors() []*Block {
	switch blk.term.kind {
	case termGoto, termBranch:
		return blk.term.targets
	case termSwitch:
		out := make([]*Block, 0, len(blk.term.cases)+1)
		for _, c := range blk.term.cases {
			out = append(out, c.Target)
		}
		return append(out, blk.term.targets...)
	}
	return nil
}

// Param is a routine parameter. Parameters are bound to frame slots when the
// compiled routine is invoked.
type Param struct {
	Name  string
	Value *Value
}

// Routine is the unit of compilation: parameters, blocks and the frame slots
// they use. The first block is the entry.
type Routine struct {
	name   string
	types  *TypeDictionary
	params []Param
	values []*Value
	blocks []*Block
	pool   []string
	errs   []error
}

// NewRoutine creates an empty routine with an entry block.
func NewRoutine(name string, types *TypeDictionary) *Routine {
	r := &Routine{name: name, types: types}
	r.NewBlock("entry")
	return r
}

// Name returns the routine name.
func (r *Routine) Name() string { return r.name }

// Types returns the type dictionary the routine is built against.
func (r *Routine) Types() *TypeDictionary { return r.types }

// Entry returns the entry block.
func (r *Routine) Entry() *Block { return r.blocks[0] }

// Blocks returns every block in creation order.
func (r *Routine) Blocks() []*Block { return r.blocks }

// Params returns the declared parameters in order.
func (r *Routine) Params() []Param { return r.params }

// NumValues returns the number of frame slots the routine uses.
func (r *Routine) NumValues() int { return len(r.values) }

// DefineParameter declares the next positional parameter.
func (r *Routine) DefineParameter(name string, t *Type) *Value {
	for _, p := range r.params {
		if p.Name == name {
			r.errorf("duplicate parameter %q", name)
			return p.Value
		}
	}
	v := r.newValue(t)
	r.params = append(r.params, Param{Name: name, Value: v})
	return v
}

// NewBlock appends an empty block.
func (r *Routine) NewBlock(name string) *Block {
	blk := &Block{id: len(r.blocks), name: name}
	r.blocks = append(r.blocks, blk)
	return blk
}

// Builder returns a builder positioned at the entry block.
func (r *Routine) Builder() *Builder { return &Builder{r: r, cur: r.Entry()} }

// Err returns the problems recorded while building, if any.
func (r *Routine) Err() error { return errors.Join(r.errs...) }

// Instructions returns the total number of emitted operations.
func (r *Routine) Instructions() int {
	n := 0
	for _, blk := range r.blocks {
		n += len(blk.instrs)
	}
	return n
}

func (r *Routine) newValue(t *Type) *Value {
	v := &Value{id: len(r.values), typ: t}
	r.values = append(r.values, v)
	return v
}

// intern returns the string-pool index of s, adding it if needed.
func (r *Routine) intern(s string) int {
	for i, p := range r.pool {
		if p == s {
			return i
		}
	}
	r.pool = append(r.pool, s)
	return len(r.pool) - 1
}

func (r *Routine) errorf(format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf("il: %s: "+format, append([]any{r.name}, args...)...))
}

// reachable returns the blocks reachable from the entry, in creation order.
func (r *Routine) reachable() []*Block {
	seen := make([]bool, len(r.blocks))
	work := []*Block{r.Entry()}
	seen[0] = true
	for len(work) > 0 {
		blk := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range blk.successors() {
			if !seen[s.id] {
				seen[s.id] = true
				work = append(work, s)
			}
		}
	}
	out := make([]*Block, 0, len(r.blocks))
	for _, blk := range r.blocks {
		if seen[blk.id] {
			out = append(out, blk)
		}
	}
	return out
}
