package vm

import (
	"fmt"

	"github.com/chazu/vmgen/pkg/il"
)

// Record and field names addressed by generated code.
const (
	InterpreterStruct = "Interpreter"
	FieldPc           = "_pc"
	FieldSp           = "_sp"
	FieldFp           = "_fp"
	FieldStartPc      = "_startpc"
	FieldStatus       = "_status"
	FieldFunc         = "_func"
	FieldSpLimit      = "_splimit"

	FuncStruct   = "Func"
	FieldCBody   = "cbody"
	FieldNLocals = "nlocals"
	FieldNParams = "nparams"
	FieldSize    = "size"
	FieldBody    = "body"
)

// Interpreter status values stored in the _status field.
const (
	StatusRunning int64 = iota
	StatusHalted
	StatusUnknownOpcode
	StatusTrap
)

// StatusString names a status value.
func StatusString(s int64) string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusHalted:
		return "halted"
	case StatusUnknownOpcode:
		return "unknown-opcode"
	case StatusTrap:
		return "trap"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// defineLayouts registers the Interpreter and Func records in td.
//
// The Func body is a trailing byte array: the record header is followed
// directly by the bytecode. cbody holds a compiled-entry handle, 0 when the
// function has not been compiled.
func defineLayouts(td *il.TypeDictionary) error {
	if _, err := td.DefineStruct(InterpreterStruct,
		il.FieldDef{Name: FieldPc, Type: td.Address},
		il.FieldDef{Name: FieldSp, Type: td.Address},
		il.FieldDef{Name: FieldFp, Type: td.Address},
		il.FieldDef{Name: FieldStartPc, Type: td.Address},
		il.FieldDef{Name: FieldStatus, Type: td.Int64},
		il.FieldDef{Name: FieldFunc, Type: td.Address},
		il.FieldDef{Name: FieldSpLimit, Type: td.Address},
	); err != nil {
		return err
	}
	_, err := td.DefineStruct(FuncStruct,
		il.FieldDef{Name: FieldCBody, Type: td.Int64},
		il.FieldDef{Name: FieldNLocals, Type: td.Int64},
		il.FieldDef{Name: FieldNParams, Type: td.Int64},
		il.FieldDef{Name: FieldSize, Type: td.Int64},
		il.FieldDef{Name: FieldBody, Type: td.Uint8, Trailing: true},
	)
	return err
}

func fieldOffset(td *il.TypeDictionary, record, field string) il.Addr {
	f, err := td.FieldOffset(record, field)
	if err != nil {
		panic(err)
	}
	return il.Addr(f.Offset)
}
