package model

import (
	"errors"
	"fmt"
)

// Generation-time contract violations. They are programming errors in the
// bytecode being specialized (or in a handler), never run-time conditions.
var (
	ErrStackUnderflow = errors.New("operand stack underflow")
	ErrStackOverflow  = errors.New("operand stack overflow")
	ErrLocalIndex     = errors.New("local index out of range")
	ErrPcRange        = errors.New("pc outside function body")
	ErrNotConstant    = errors.New("value is not a generation-time constant")
	ErrMergeShape     = errors.New("incompatible states at merge")
	ErrModeMismatch   = errors.New("mode mismatch")
)

// GenError reports a failed generation pass.
type GenError struct {
	Component string
	Err       error
	Detail    string
}

func (e *GenError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("model: %s: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("model: %s: %v: %s", e.Component, e.Err, e.Detail)
}

func (e *GenError) Unwrap() error { return e.Err }

// Fail aborts the current generation pass. Generation code is deeply nested
// and has no useful way to continue after a contract violation, so the error
// travels as a panic and is turned back into a value by Recover.
func Fail(component string, err error, format string, args ...any) {
	panic(&GenError{Component: component, Err: err, Detail: fmt.Sprintf(format, args...)})
}

// Recover stores a GenError raised by Fail into *errp. Other panics are
// re-raised. Call it deferred at generation entry points:
//
//	defer model.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ge, ok := r.(*GenError); ok {
		*errp = ge
		return
	}
	panic(r)
}
