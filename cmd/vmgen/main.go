// vmgen CLI - runs bytecode programs through the generated interpreter and
// compiler
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/vmgen/manifest"
	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/il"
	"github.com/chazu/vmgen/vm"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("vmgen.cli")

func main() {
	configDir := flag.String("config", ".", "Directory to search upward for vmgen.toml")
	mode := flag.String("mode", "jit", "Execution mode: interp, compile, jit, verify")
	entry := flag.String("entry", "", "Function to run (default: first loaded)")
	calls := flag.Int("calls", 1, "Number of times to call the entry function")
	disasm := flag.Bool("disasm", false, "Print a disassembly of every loaded function")
	emitGo := flag.Bool("emit-go", false, "Print the Go listing of the generated routine")
	trace := flag.Bool("trace", false, "Trace every executed instruction")
	cachePath := flag.String("cache", "", "SQLite file recording generated routines (overrides vmgen.toml)")
	encode := flag.String("encode", "", "Write loaded programs as CBOR into this directory")
	verbosity := flag.Int("v", -1, "Log verbosity (overrides vmgen.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vmgen [options] program.yaml|program.vmbc...\n\n")
		fmt.Fprintf(os.Stderr, "Loads bytecode programs and runs them through generated code.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  vmgen sum.yaml                    # Run interpreted, compile when hot\n")
		fmt.Fprintf(os.Stderr, "  vmgen -mode compile -emit-go f.yaml  # Specialize and show the routine\n")
		fmt.Fprintf(os.Stderr, "  vmgen -mode verify f.yaml         # Check without running\n")
		fmt.Fprintf(os.Stderr, "  vmgen -encode out/ f.yaml         # Convert assembly to .vmbc\n")
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(*configDir)
	if err != nil {
		fatalf("%v", err)
	}
	if m == nil {
		m = manifest.Default()
	}
	if *verbosity >= 0 {
		m.Log.Verbosity = *verbosity
	}
	if *trace {
		m.Diagnostics.Trace = true
		if m.Log.Verbosity < 2 {
			m.Log.Verbosity = 2
		}
	}
	if *cachePath != "" {
		m.Cache.Path = *cachePath
	}
	commonlog.Configure(m.Log.Verbosity, nil)

	progs, err := loadPrograms(flag.Args())
	if err != nil {
		fatalf("%v", err)
	}

	if *encode != "" {
		if err := encodePrograms(*encode, progs); err != nil {
			fatalf("%v", err)
		}
	}

	machine, err := vm.NewVM(vmOptions(m))
	if err != nil {
		fatalf("%v", err)
	}
	for _, p := range progs {
		if _, err := machine.Load(p); err != nil {
			fatalf("%v", err)
		}
	}

	out := newPrinter()
	if *disasm {
		for _, p := range progs {
			out.listing(p.Disassemble())
		}
	}

	fn := machine.Funcs.All()[0]
	if *entry != "" {
		f, ok := machine.Funcs.Lookup(*entry)
		if !ok {
			fatalf("no function named %q", *entry)
		}
		fn = f
	}

	if err := run(machine, m, fn, *mode, *calls, *emitGo, out); err != nil {
		fatalf("%v", err)
	}
}

func run(machine *vm.VM, m *manifest.Manifest, fn *vm.Func, mode string, calls int, emitGo bool, out *printer) error {
	switch mode {
	case "verify":
		rep, err := machine.Verify(fn.Handle, nil)
		if err != nil {
			return err
		}
		out.header(fmt.Sprintf("%s: ok, %d instructions in %d blocks", rep.Function, rep.Instructions, rep.Blocks))
		for _, off := range rep.Unknown {
			fmt.Printf("  unknown opcode at %04X\n", off)
		}
		return nil

	case "compile":
		cr, err := vm.NewCompiler(machine, nil).Compile(fn.Handle)
		if err != nil {
			return err
		}
		if emitGo {
			if err := printGo(cr.Routine, out); err != nil {
				return err
			}
		}
		in, err := machine.NewInterpreter()
		if err != nil {
			return err
		}
		for i := 0; i < calls; i++ {
			if err := cr.Run(in); err != nil {
				return err
			}
		}
		return report(in, out)

	case "interp", "jit":
		engine, err := vm.NewEngine(machine, nil)
		if err != nil {
			return err
		}
		engine.Threshold = m.JIT.Threshold
		engine.Enabled = mode == "jit" && *m.JIT.Enabled
		if path := m.CachePath(); path != "" {
			cache, err := vm.OpenRoutineCache(path)
			if err != nil {
				return err
			}
			defer cache.Close()
			engine.SetCache(cache)
		}
		if emitGo && mode == "interp" {
			r, err := machine.BuildInterpreter(nil)
			if err != nil {
				return err
			}
			if err := printGo(r, out); err != nil {
				return err
			}
		}

		in, err := machine.NewInterpreter()
		if err != nil {
			return err
		}
		var res vm.Result
		for i := 0; i < calls; i++ {
			if res, err = engine.Call(in, fn); err != nil {
				return err
			}
		}
		if emitGo && mode == "jit" {
			if cr, ok := engine.Routine(fn); ok {
				if err := printGo(cr.Routine, out); err != nil {
					return err
				}
			}
		}
		s := engine.Stats()
		log.Infof("calls: %d interpreted, %d compiled; %d functions compiled", s.InterpretedCalls, s.CompiledCalls, s.FunctionsCompiled)
		if res.Compiled {
			out.header("(compiled)")
		}
		return report(in, out)

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func vmOptions(m *manifest.Manifest) vm.Options {
	return vm.Options{
		MemorySize:  m.Memory.Size,
		StackSlots:  m.Memory.StackSlots,
		Checks:      *m.Diagnostics.Checks,
		PopSentinel: m.Diagnostics.PopSentinel,
		Sentinel:    m.Diagnostics.Sentinel,
		Trace:       m.Diagnostics.Trace,
		TraceState:  m.Diagnostics.TraceState,
	}
}

func loadPrograms(paths []string) ([]*bytecode.Program, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no programs given (try -h)")
	}
	var progs []*bytecode.Program
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case bytecode.FileExt:
			p, err := bytecode.UnmarshalProgram(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			progs = append(progs, p)
		case ".yaml", ".yml":
			ps, err := bytecode.ParseAssembly(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			progs = append(progs, ps...)
		default:
			return nil, fmt.Errorf("%s: unknown file type", path)
		}
	}
	return progs, nil
}

func encodePrograms(dir string, progs []*bytecode.Program) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, p := range progs {
		data, err := bytecode.MarshalProgram(p)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, p.Name+bytecode.FileExt)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		log.Infof("wrote %s", path)
	}
	return nil
}

func printGo(r *il.Routine, out *printer) error {
	src, err := il.GoSource(r, "routines")
	if err != nil {
		return err
	}
	out.listing(src)
	return nil
}

func report(in *vm.Interpreter, out *printer) error {
	fr, err := in.Frame()
	if err != nil {
		return err
	}
	out.header(fmt.Sprintf("status: %s at %04X", vm.StatusString(in.Status()), in.Offset()))
	fmt.Printf("stack:  %v\n", fr.Stack)
	fmt.Printf("locals: %v\n", fr.Locals)
	return nil
}

// printer adds color when stdout is a terminal.
type printer struct {
	color bool
}

func newPrinter() *printer {
	fd := os.Stdout.Fd()
	return &printer{color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (p *printer) header(s string) {
	if p.color {
		fmt.Printf("\x1b[1m%s\x1b[0m\n", s)
		return
	}
	fmt.Println(s)
}

func (p *printer) listing(s string) {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if p.color && (strings.HasPrefix(line, ";") || strings.HasPrefix(line, "//")) {
			fmt.Printf("\x1b[2m%s\x1b[0m\n", line)
			continue
		}
		fmt.Println(line)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
