package il

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vmgen.il")

// Compilation status codes reported by CompileError.
const (
	StatusOK = iota
	StatusBuildError
	StatusUnterminatedBlock
	StatusUnknownHelper
	StatusBadSignature
)

// CompileError reports why a routine could not be turned into a NativeFunc.
type CompileError struct {
	Routine  string
	Status   int
	Problems []error
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("il: compile %s failed (status %d): %s", e.Routine, e.Status, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is / errors.As.
func (e *CompileError) Unwrap() []error { return e.Problems }

// Args gives a helper access to its call arguments.
type Args struct {
	vals  []int64
	types []*Type
	strs  []string
	mem   *Memory
}

// Len returns the argument count.
func (a Args) Len() int { return len(a.vals) }

// Int returns argument i as an integer.
func (a Args) Int(i int) int64 { return a.vals[i] }

// Addr returns argument i as an address.
func (a Args) Addr(i int) Addr { return Addr(a.vals[i]) }

// Str returns argument i, which must have been built with ConstString.
func (a Args) Str(i int) string {
	if a.types[i].Kind != KindString {
		return fmt.Sprint(a.vals[i])
	}
	return a.strs[a.vals[i]]
}

// Memory returns the arena the routine runs against.
func (a Args) Memory() *Memory { return a.mem }

// Helper is a host function callable from generated code.
type Helper func(args Args)

// Helpers maps helper names to implementations.
type Helpers map[string]Helper

// NativeFunc is a compiled routine. Arguments bind to the routine's
// parameters in declaration order. Memory faults panic with *Fault; use
// Invoke to receive them as errors.
type NativeFunc func(args ...Addr)

// Invoke calls fn and converts memory faults into errors.
func (fn NativeFunc) Invoke(args ...Addr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(*Fault); ok {
				err = f
				return
			}
			panic(r)
		}
	}()
	fn(args...)
	return nil
}

type frame []int64

type step func(fr frame)

// next returns the index of the following block, or -1 to return.
type next func(fr frame) int

type compiledBlock struct {
	steps []step
	next  next
}

// Compile validates r and lowers it to a closure tree bound to mem and
// helpers.
func Compile(r *Routine, mem *Memory, helpers Helpers) (NativeFunc, error) {
	if err := r.Err(); err != nil {
		return nil, &CompileError{Routine: r.name, Status: StatusBuildError, Problems: flatten(err)}
	}
	if mem == nil {
		return nil, &CompileError{Routine: r.name, Status: StatusBadSignature, Problems: []error{errors.New("nil memory")}}
	}

	c := &compiler{r: r, mem: mem, helpers: helpers, index: make(map[*Block]int)}
	blocks := r.reachable()
	for i, blk := range blocks {
		c.index[blk] = i
	}
	code := make([]compiledBlock, len(blocks))
	for i, blk := range blocks {
		code[i] = c.block(blk)
	}
	if len(c.problems) > 0 {
		return nil, &CompileError{Routine: r.name, Status: c.status, Problems: c.problems}
	}

	nslots := len(r.values)
	params := make([]int, len(r.params))
	for i, p := range r.params {
		params[i] = p.Value.id
	}
	name := r.name

	log.Debugf("compiled %s: %d blocks, %d ops, %d slots", name, len(code), r.Instructions(), nslots)

	return func(args ...Addr) {
		if len(args) != len(params) {
			panic(fmt.Sprintf("il: %s: called with %d arguments, want %d", name, len(args), len(params)))
		}
		fr := make(frame, nslots)
		for i, slot := range params {
			fr[slot] = int64(args[i])
		}
		for blk := 0; blk >= 0; {
			cb := &code[blk]
			for _, s := range cb.steps {
				s(fr)
			}
			blk = cb.next(fr)
		}
	}, nil
}

func flatten(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

type compiler struct {
	r        *Routine
	mem      *Memory
	helpers  Helpers
	index    map[*Block]int
	problems []error
	status   int
}

func (c *compiler) fail(status int, format string, args ...any) {
	if c.status == StatusOK {
		c.status = status
	}
	c.problems = append(c.problems, fmt.Errorf(format, args...))
}

func (c *compiler) block(blk *Block) compiledBlock {
	cb := compiledBlock{steps: make([]step, 0, len(blk.instrs))}
	for _, in := range blk.instrs {
		if s := c.step(blk, in); s != nil {
			cb.steps = append(cb.steps, s)
		}
	}
	cb.next = c.terminator(blk)
	return cb
}

func (c *compiler) step(blk *Block, in instr) step {
	mem := c.mem
	var a, b int
	if len(in.args) > 0 {
		a = in.args[0].id
	}
	if len(in.args) > 1 {
		b = in.args[1].id
	}

	switch in.op {
	case opConst, opConstString:
		d, k := in.dst.id, in.imm
		return func(fr frame) { fr[d] = k }
	case opCopy, opStoreOver:
		d := in.dst.id
		return func(fr frame) { fr[d] = fr[a] }
	case opAdd:
		d := in.dst.id
		return func(fr frame) { fr[d] = fr[a] + fr[b] }
	case opSub:
		d := in.dst.id
		return func(fr frame) { fr[d] = fr[a] - fr[b] }
	case opMul:
		d := in.dst.id
		return func(fr frame) { fr[d] = fr[a] * fr[b] }
	case opEqual:
		d := in.dst.id
		return func(fr frame) { fr[d] = b2i(fr[a] == fr[b]) }
	case opLessThan:
		d := in.dst.id
		return func(fr frame) { fr[d] = b2i(fr[a] < fr[b]) }
	case opUnsignedLessThan:
		d := in.dst.id
		return func(fr frame) { fr[d] = b2i(uint64(fr[a]) < uint64(fr[b])) }
	case opConvert:
		d := in.dst.id
		switch in.typ.Kind {
		case KindUint8:
			return func(fr frame) { fr[d] = int64(uint8(fr[a])) }
		case KindInt32:
			return func(fr frame) { fr[d] = int64(int32(fr[a])) }
		default:
			return func(fr frame) { fr[d] = fr[a] }
		}
	case opLoadAt:
		d, k := in.dst.id, in.typ.Kind
		return func(fr frame) { fr[d] = mem.Load(k, Addr(fr[a])) }
	case opStoreAt:
		k := in.typ.Kind
		return func(fr frame) { mem.Store(k, Addr(fr[a]), fr[b]) }
	case opFieldAddr:
		d, off := in.dst.id, in.imm
		return func(fr frame) { fr[d] = fr[a] + off }
	case opCall:
		return c.call(blk, in)
	}
	c.fail(StatusBuildError, "block %s: unknown operation %d", blk.name, in.op)
	return nil
}

func (c *compiler) call(blk *Block, in instr) step {
	h, ok := c.helpers[in.str]
	if !ok {
		c.fail(StatusUnknownHelper, "block %s: unknown helper %q", blk.name, in.str)
		return nil
	}
	slots := make([]int, len(in.args))
	types := make([]*Type, len(in.args))
	for i, v := range in.args {
		slots[i] = v.id
		types[i] = v.typ
	}
	mem := c.mem
	strs := c.r.pool
	return func(fr frame) {
		vals := make([]int64, len(slots))
		for i, s := range slots {
			vals[i] = fr[s]
		}
		h(Args{vals: vals, types: types, strs: strs, mem: mem})
	}
}

func (c *compiler) terminator(blk *Block) next {
	t := blk.term
	switch t.kind {
	case termReturn:
		return func(frame) int { return -1 }
	case termGoto:
		to := c.index[t.targets[0]]
		return func(frame) int { return to }
	case termBranch:
		cond, then, els := t.cond.id, c.index[t.targets[0]], c.index[t.targets[1]]
		return func(fr frame) int {
			if fr[cond] != 0 {
				return then
			}
			return els
		}
	case termSwitch:
		cond, def := t.cond.id, c.index[t.targets[0]]
		table := make(map[int64]int, len(t.cases))
		for _, cs := range t.cases {
			table[cs.Value] = c.index[cs.Target]
		}
		return func(fr frame) int {
			if to, ok := table[fr[cond]]; ok {
				return to
			}
			return def
		}
	}
	c.fail(StatusUnterminatedBlock, "block %s is reachable but has no terminator", blk.name)
	return func(frame) int { return -1 }
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
