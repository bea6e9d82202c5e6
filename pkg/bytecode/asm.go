package bytecode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// assembly is the YAML form of a program:
//
//	name: countdown
//	locals: 1
//	code:
//	  - PUSH_CONST 3
//	  - POP_LOCAL 0
//	  - "loop:"
//	  - PUSH_LOCAL 0
//	  - JUMP_IF_ZERO @done
//	  - ...
//	  - "done:"
//	  - HALT
//
// An entry ending in ':' defines a label and must be quoted, since a bare
// "loop:" is a YAML mapping; '@label' operands resolve to the
// jump's relative offset. ".byte N" emits a raw byte.
type assembly struct {
	Name   string   `yaml:"name"`
	Locals uint64   `yaml:"locals"`
	Params uint64   `yaml:"params"`
	Code   []string `yaml:"code"`
}

// AsmError reports a problem in a YAML assembly listing.
type AsmError struct {
	Program string
	Line    int // index into the code list, 0-based
	Msg     string
}

func (e *AsmError) Error() string {
	return fmt.Sprintf("asm %s: code[%d]: %s", e.Program, e.Line, e.Msg)
}

// ParseAssembly reads one or more YAML documents, each describing a program.
func ParseAssembly(data []byte) ([]*Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var progs []*Program
	for {
		var a assembly
		err := dec.Decode(&a)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("asm: %w", err)
		}
		p, err := a.assemble()
		if err != nil {
			return nil, err
		}
		progs = append(progs, p)
	}
	if len(progs) == 0 {
		return nil, errors.New("asm: no programs")
	}
	return progs, nil
}

type fixup struct {
	at    int
	label string
	line  int
}

func (a *assembly) assemble() (*Program, error) {
	if a.Name == "" {
		return nil, errors.New("asm: program without name")
	}
	p := NewProgram(a.Name, a.Locals)
	p.NParams = a.Params
	labels := make(map[string]int)
	var fixups []fixup

	for i, line := range a.Code {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) == 1 && strings.HasSuffix(fields[0], ":") {
			name := strings.TrimSuffix(fields[0], ":")
			if _, dup := labels[name]; dup {
				return nil, &AsmError{a.Name, i, fmt.Sprintf("duplicate label %q", name)}
			}
			labels[name] = p.Len()
			continue
		}
		if fields[0] == ".byte" {
			if len(fields) != 2 {
				return nil, &AsmError{a.Name, i, ".byte takes one value"}
			}
			v, err := strconv.ParseUint(fields[1], 0, 8)
			if err != nil {
				return nil, &AsmError{a.Name, i, err.Error()}
			}
			p.Code = append(p.Code, byte(v))
			continue
		}

		op, ok := Lookup(strings.ToUpper(fields[0]))
		if !ok {
			return nil, &AsmError{a.Name, i, fmt.Sprintf("unknown mnemonic %q", fields[0])}
		}
		if want := min(op.OperandLen(), 1); len(fields)-1 != want {
			return nil, &AsmError{a.Name, i, fmt.Sprintf("%s takes %d operand(s)", op, want)}
		}
		if op.OperandLen() == 0 {
			p.Emit(op)
			continue
		}

		arg := fields[1]
		if strings.HasPrefix(arg, "@") {
			if !op.IsJump() {
				return nil, &AsmError{a.Name, i, fmt.Sprintf("%s does not take a label", op)}
			}
			fixups = append(fixups, fixup{at: p.EmitJump(op), label: arg[1:], line: i})
			continue
		}
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return nil, &AsmError{a.Name, i, err.Error()}
		}
		p.EmitInt64(op, v)
	}

	for _, f := range fixups {
		target, ok := labels[f.label]
		if !ok {
			return nil, &AsmError{a.Name, f.line, fmt.Sprintf("undefined label %q", f.label)}
		}
		p.PatchJump(f.at, target)
	}
	return p, nil
}
