package vm

import (
	"github.com/chazu/vmgen/pkg/il"
	"github.com/chazu/vmgen/pkg/model"
)

// FuncView gives generated code access to the function being executed.
// Functions are read-only while they run, so views have no state to commit.
type FuncView interface {
	Mode() model.Mode
	NLocals(b *il.Builder) model.Size
	NParams(b *il.Builder) model.Size
	Size(b *il.Builder) model.Size
	Body(b *il.Builder) *il.Value
	Commit(b *il.Builder)
	Reload(b *il.Builder)
	MergeInto(b *il.Builder, dest FuncView)
	Clone(b *il.Builder) FuncView
}

// realFuncView reads the Func record named by the interpreter's _func field.
type realFuncView struct {
	record *il.Value
}

func newRealFuncView(b *il.Builder, interp *il.Value) *realFuncView {
	return &realFuncView{record: b.LoadIndirect(InterpreterStruct, FieldFunc, interp)}
}

func (v *realFuncView) Mode() model.Mode { return model.Real }

func (v *realFuncView) field(b *il.Builder, name string) model.Size {
	return model.Symbolic[uint64](model.Real, b.LoadIndirect(FuncStruct, name, v.record))
}

func (v *realFuncView) NLocals(b *il.Builder) model.Size { return v.field(b, FieldNLocals) }
func (v *realFuncView) NParams(b *il.Builder) model.Size { return v.field(b, FieldNParams) }
func (v *realFuncView) Size(b *il.Builder) model.Size    { return v.field(b, FieldSize) }

func (v *realFuncView) Body(b *il.Builder) *il.Value {
	return b.StructFieldInstanceAddress(FuncStruct, FieldBody, v.record)
}

func (v *realFuncView) Commit(b *il.Builder) {}
func (v *realFuncView) Reload(b *il.Builder) {}

func (v *realFuncView) MergeInto(b *il.Builder, dest FuncView) {
	if _, ok := dest.(*realFuncView); !ok {
		model.Fail("function", model.ErrModeMismatch, "merge into %s function view", dest.Mode())
	}
}

func (v *realFuncView) Clone(b *il.Builder) FuncView { return v }

// constFuncView exposes a resolved Func as generation-time constants.
type constFuncView struct {
	mode model.Mode
	fn   *Func
}

func (v *constFuncView) Mode() model.Mode { return v.mode }

func (v *constFuncView) NLocals(b *il.Builder) model.Size {
	return model.Pack(v.mode, v.fn.NLocals())
}

func (v *constFuncView) NParams(b *il.Builder) model.Size {
	return model.Pack(v.mode, v.fn.Program.NParams)
}

func (v *constFuncView) Size(b *il.Builder) model.Size {
	return model.Pack(v.mode, uint64(len(v.fn.Code())))
}

func (v *constFuncView) Body(b *il.Builder) *il.Value { return b.ConstAddress(v.fn.Body) }

func (v *constFuncView) Commit(b *il.Builder) {}
func (v *constFuncView) Reload(b *il.Builder) {}

func (v *constFuncView) MergeInto(b *il.Builder, dest FuncView) {
	d, ok := dest.(*constFuncView)
	if !ok || d.mode != v.mode {
		model.Fail("function", model.ErrModeMismatch, "merge %s function view into %s", v.mode, dest.Mode())
	}
	if d.fn != v.fn {
		model.Fail("function", model.ErrMergeShape, "merge %s into %s", v.fn.Name(), d.fn.Name())
	}
}

func (v *constFuncView) Clone(b *il.Builder) FuncView { return v }
