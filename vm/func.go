package vm

import (
	"fmt"
	"sync"

	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/il"
)

// Handle identifies a loaded function. The zero Handle is invalid.
type Handle uint32

// Func is a function loaded into VM memory.
type Func struct {
	Handle  Handle
	Program *bytecode.Program
	Addr    il.Addr // Func record
	Body    il.Addr // first bytecode byte
}

// Name returns the program name.
func (f *Func) Name() string { return f.Program.Name }

// NLocals returns the declared local count.
func (f *Func) NLocals() uint64 { return f.Program.NLocals }

// Code returns the bytecode body.
func (f *Func) Code() []byte { return f.Program.Code }

// FuncTable owns every loaded function and resolves handles and record
// addresses back to them. Generation reads function metadata only through
// the table.
type FuncTable struct {
	mu     sync.RWMutex
	funcs  []*Func
	byName map[string]*Func
	byAddr map[il.Addr]*Func
}

func newFuncTable() *FuncTable {
	return &FuncTable{byName: make(map[string]*Func), byAddr: make(map[il.Addr]*Func)}
}

func (t *FuncTable) add(f *Func) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.byName[f.Name()]; dup {
		return fmt.Errorf("vm: function %q already loaded", f.Name())
	}
	t.funcs = append(t.funcs, f)
	f.Handle = Handle(len(t.funcs))
	t.byName[f.Name()] = f
	t.byAddr[f.Addr] = f
	return nil
}

// Resolve returns the function for h.
func (t *FuncTable) Resolve(h Handle) (*Func, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h == 0 || int(h) > len(t.funcs) {
		return nil, fmt.Errorf("vm: invalid function handle %d", h)
	}
	return t.funcs[h-1], nil
}

// Lookup finds a function by name.
func (t *FuncTable) Lookup(name string) (*Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.byName[name]
	return f, ok
}

// At finds the function whose record starts at addr.
func (t *FuncTable) At(addr il.Addr) (*Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.byAddr[addr]
	return f, ok
}

// All returns the loaded functions in load order.
func (t *FuncTable) All() []*Func {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Func(nil), t.funcs...)
}
