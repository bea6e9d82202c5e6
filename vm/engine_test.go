package vm

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/model"
)

func newTestEngine(t *testing.T, vm *VM) *Engine {
	t.Helper()
	e, err := NewEngine(vm, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngineTierUp(t *testing.T) {
	vm := newTestVM(t, checkedOptions())
	e := newTestEngine(t, vm)
	f := mustLoad(t, vm, triangle(6))
	in := mustInterpreter(t, vm)

	wantCompiled := []bool{false, false, true, true}
	for i, want := range wantCompiled {
		res, err := e.Call(in, f)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if res.Compiled != want {
			t.Errorf("call %d: compiled = %v, want %v", i, res.Compiled, want)
		}
		if res.Status != StatusHalted || !slices.Equal(res.Frame.Stack, []int64{21}) {
			t.Errorf("call %d: status %s stack %v", i, StatusString(res.Status), res.Frame.Stack)
		}
		if res.Offset != 110 {
			t.Errorf("call %d: offset = %d, want 110", i, res.Offset)
		}
	}

	if _, ok := vm.CompiledEntry(f); !ok {
		t.Error("no compiled entry installed")
	}
	if cr, ok := e.Routine(f); !ok || cr.Func != f {
		t.Error("engine did not record the routine")
	}

	stats := e.Stats()
	want := EngineStats{InterpretedCalls: 2, CompiledCalls: 2, FunctionsCompiled: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestEngineCompileFailureStaysInterpreted(t *testing.T) {
	vm := newTestVM(t, checkedOptions())
	e := newTestEngine(t, vm)
	e.Threshold = 1
	f := mustLoad(t, vm, program("underflow", 0, func(p *bytecode.Program) {
		p.Emit(bytecode.OpAdd)
		p.Emit(bytecode.OpHalt)
	}))
	in := mustInterpreter(t, vm)

	for i := 0; i < 3; i++ {
		res, err := e.Call(in, f)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if res.Compiled {
			t.Errorf("call %d ran compiled code", i)
		}
		if res.Status != StatusTrap {
			t.Errorf("call %d: status = %s, want trap", i, StatusString(res.Status))
		}
	}

	if _, err := e.Compile(f); !errors.Is(err, model.ErrStackUnderflow) {
		t.Errorf("Compile err = %v, want %v", err, model.ErrStackUnderflow)
	}
	if got := e.Stats().CompileFailures; got != 1 {
		t.Errorf("compile failures = %d, want 1", got)
	}
}

func TestEngineDisabled(t *testing.T) {
	vm := newTestVM(t, checkedOptions())
	e := newTestEngine(t, vm)
	e.Enabled = false
	f := mustLoad(t, vm, countdown(2))
	in := mustInterpreter(t, vm)

	for i := 0; i < 4; i++ {
		res, err := e.Call(in, f)
		if err != nil {
			t.Fatal(err)
		}
		if res.Compiled {
			t.Fatalf("call %d compiled with the engine disabled", i)
		}
	}
	if e.Stats().FunctionsCompiled != 0 {
		t.Error("functions compiled with the engine disabled")
	}
}

func TestEngineExplicitCompile(t *testing.T) {
	vm := newTestVM(t, checkedOptions())
	e := newTestEngine(t, vm)
	f := mustLoad(t, vm, countdown(4))
	in := mustInterpreter(t, vm)

	cr, err := e.Compile(f)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	again, err := e.Compile(f)
	if err != nil || again != cr {
		t.Errorf("recompile returned %v, %v", again, err)
	}

	res, err := e.Call(in, f)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Compiled || !slices.Equal(res.Frame.Locals, []int64{0}) {
		t.Errorf("result = %+v", res)
	}
}

func TestEngineCachesRoutines(t *testing.T) {
	cache, err := OpenRoutineCache(":memory:")
	if err != nil {
		t.Fatalf("OpenRoutineCache: %v", err)
	}
	defer cache.Close()

	vm := newTestVM(t, checkedOptions())
	e := newTestEngine(t, vm)
	e.SetCache(cache)
	f := mustLoad(t, vm, countdown(2))

	cr, err := e.Compile(f)
	if err != nil {
		t.Fatal(err)
	}
	key, err := RoutineKey(f.Program)
	if err != nil {
		t.Fatal(err)
	}
	entry, err := cache.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.ID != cr.ID || entry.Name != "countdown" {
		t.Errorf("entry = %+v", entry)
	}
	if !strings.Contains(entry.Source, "func compiled_countdown(") {
		t.Errorf("cached source does not define the routine:\n%s", entry.Source)
	}
}
