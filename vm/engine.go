package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/vmgen/pkg/il"
)

// Engine runs functions in the generic interpreter and compiles the ones
// that get called often. Once compiled, a function's routine is installed in
// its compiled-entry slot and later calls bypass the interpreter.
type Engine struct {
	vm       *VM
	compiler *Compiler
	interp   il.NativeFunc
	cache    *RoutineCache

	mu       sync.Mutex
	calls    map[Handle]int
	routines map[Handle]*CompiledRoutine
	failed   map[Handle]error

	// Threshold is the number of interpreted calls after which a function
	// is compiled.
	Threshold int
	// Enabled turns compilation on.
	Enabled bool

	interpretedCalls  uint64
	compiledCalls     uint64
	functionsCompiled uint64
	compileFailures   uint64
}

// DefaultThreshold is the call count that triggers compilation.
const DefaultThreshold = 2

// NewEngine compiles the generic interpreter for vm. A nil table selects
// DefaultHandlers.
func NewEngine(vm *VM, table *HandlerTable) (*Engine, error) {
	interp, _, err := vm.CompileInterpreter(table)
	if err != nil {
		return nil, err
	}
	return &Engine{
		vm:        vm,
		compiler:  NewCompiler(vm, table),
		interp:    interp,
		calls:     make(map[Handle]int),
		routines:  make(map[Handle]*CompiledRoutine),
		failed:    make(map[Handle]error),
		Threshold: DefaultThreshold,
		Enabled:   true,
	}, nil
}

// SetCache records the Go listing of every routine the engine compiles.
func (e *Engine) SetCache(c *RoutineCache) {
	e.mu.Lock()
	e.cache = c
	e.mu.Unlock()
}

// Result is the outcome of one call.
type Result struct {
	Status   int64
	Offset   int64 // pc relative to the body start when execution stopped
	Frame    Frame
	Compiled bool // ran the compiled routine
}

// Call runs f from its first instruction on in. Calls are serialized; the
// VM arena is not safe for concurrent use.
func (e *Engine) Call(in *Interpreter, f *Func) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in.Reset(f)
	var res Result
	if fn, ok := e.vm.CompiledEntry(f); ok {
		res.Compiled = true
		atomic.AddUint64(&e.compiledCalls, 1)
		if err := fn.Invoke(in.Addr); err != nil {
			return res, fmt.Errorf("vm: %s: %w", f.Name(), err)
		}
	} else {
		atomic.AddUint64(&e.interpretedCalls, 1)
		if err := e.interp.Invoke(in.Addr); err != nil {
			return res, fmt.Errorf("vm: %s: %w", f.Name(), err)
		}
		e.calls[f.Handle]++
		if e.Enabled && e.calls[f.Handle] >= e.Threshold {
			e.compileLocked(f)
		}
	}

	res.Status = in.Status()
	res.Offset = in.Offset()
	fr, err := in.Frame()
	if err != nil {
		return res, err
	}
	res.Frame = fr
	return res, nil
}

// Compile compiles and installs f regardless of its call count.
func (e *Engine) Compile(f *Func) (*CompiledRoutine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compileLocked(f)
	if err, ok := e.failed[f.Handle]; ok {
		return nil, err
	}
	return e.routines[f.Handle], nil
}

func (e *Engine) compileLocked(f *Func) {
	if _, done := e.routines[f.Handle]; done {
		return
	}
	if _, failed := e.failed[f.Handle]; failed {
		return
	}

	cr, err := e.compiler.Compile(f.Handle)
	if err != nil {
		// Stay on the interpreter; it handles everything the compiler
		// rejects at run time.
		e.failed[f.Handle] = err
		atomic.AddUint64(&e.compileFailures, 1)
		log.Warningf("%s stays interpreted: %s", f.Name(), err)
		return
	}
	e.vm.Install(f, cr.Entry)
	e.routines[f.Handle] = cr
	atomic.AddUint64(&e.functionsCompiled, 1)

	if e.cache != nil {
		if err := e.cache.Store(cr); err != nil {
			log.Warningf("caching %s: %s", f.Name(), err)
		}
	}
}

// Routine returns the compiled routine of f, if any.
func (e *Engine) Routine(f *Func) (*CompiledRoutine, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cr, ok := e.routines[f.Handle]
	return cr, ok
}

// EngineStats holds engine counters.
type EngineStats struct {
	InterpretedCalls  uint64
	CompiledCalls     uint64
	FunctionsCompiled uint64
	CompileFailures   uint64
}

// Stats returns current counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		InterpretedCalls:  atomic.LoadUint64(&e.interpretedCalls),
		CompiledCalls:     atomic.LoadUint64(&e.compiledCalls),
		FunctionsCompiled: atomic.LoadUint64(&e.functionsCompiled),
		CompileFailures:   atomic.LoadUint64(&e.compileFailures),
	}
}
