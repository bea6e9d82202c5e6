package vm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/il"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vmgen.vm")

// VM owns the memory arena, the record layouts and the loaded functions
// shared by interpreters and compiled routines.
type VM struct {
	Memory *il.Memory
	Types  *il.TypeDictionary
	Funcs  *FuncTable

	opts    Options
	helpers il.Helpers

	mu      sync.RWMutex
	natives []il.NativeFunc
	interps map[il.Addr]*Interpreter
}

// NewVM creates a VM with an empty arena.
func NewVM(opts Options) (*VM, error) {
	opts = opts.withDefaults()
	td := il.NewTypeDictionary()
	if err := defineLayouts(td); err != nil {
		return nil, fmt.Errorf("vm: layouts: %w", err)
	}
	vm := &VM{
		Memory:  il.NewMemory(opts.MemorySize),
		Types:   td,
		Funcs:   newFuncTable(),
		opts:    opts,
		interps: make(map[il.Addr]*Interpreter),
	}
	vm.helpers = vm.newHelpers()
	return vm, nil
}

// Options returns the VM configuration.
func (vm *VM) Options() Options { return vm.opts }

// Helpers returns the runtime helpers generated code may call.
func (vm *VM) Helpers() il.Helpers { return vm.helpers }

func (vm *VM) off(record, field string) il.Addr { return fieldOffset(vm.Types, record, field) }

// Load copies p into memory as a Func record followed by its body. The
// body is not validated: decoding problems surface when code is generated
// for it or, in the interpreter, when it runs.
func (vm *VM) Load(p *bytecode.Program) (*Func, error) {
	if p == nil || p.Name == "" {
		return nil, errors.New("vm: load: program needs a name")
	}
	rec, _ := vm.Types.LookupStruct(FuncStruct)
	size := uint64(rec.Size()) + uint64(len(p.Code))
	addr, err := vm.Memory.Alloc(size, 8)
	if err != nil {
		return nil, fmt.Errorf("vm: load %s: %w", p.Name, err)
	}

	f := &Func{Program: p, Addr: addr, Body: addr + vm.off(FuncStruct, FieldBody)}
	vm.Memory.StoreInt64(addr+vm.off(FuncStruct, FieldCBody), 0)
	vm.Memory.StoreInt64(addr+vm.off(FuncStruct, FieldNLocals), int64(p.NLocals))
	vm.Memory.StoreInt64(addr+vm.off(FuncStruct, FieldNParams), int64(p.NParams))
	vm.Memory.StoreInt64(addr+vm.off(FuncStruct, FieldSize), int64(len(p.Code)))
	vm.Memory.Write(f.Body, p.Code)

	if err := vm.Funcs.add(f); err != nil {
		return nil, err
	}
	log.Debugf("loaded %s at 0x%x: %d bytes, %d locals", p.Name, addr, len(p.Code), p.NLocals)
	return f, nil
}

// Install stores fn in f's compiled-entry slot.
func (vm *VM) Install(f *Func, fn il.NativeFunc) {
	vm.mu.Lock()
	vm.natives = append(vm.natives, fn)
	slot := int64(len(vm.natives))
	vm.mu.Unlock()
	vm.Memory.StoreInt64(f.Addr+vm.off(FuncStruct, FieldCBody), slot)
}

// CompiledEntry returns the routine installed for f, if any.
func (vm *VM) CompiledEntry(f *Func) (il.NativeFunc, bool) {
	slot := vm.Memory.LoadInt64(f.Addr + vm.off(FuncStruct, FieldCBody))
	if slot == 0 {
		return nil, false
	}
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if slot < 0 || int(slot) > len(vm.natives) {
		return nil, false
	}
	return vm.natives[slot-1], true
}

func (vm *VM) interpreterAt(addr il.Addr) (*Interpreter, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	in, ok := vm.interps[addr]
	return in, ok
}
