package codegen

import (
	"errors"
	"fmt"
)

var (
	// ErrParamCount means a kernel definition does not have the template parameter list
	// its kind expects, which happens when the catalog and the emitter disagree on version.
	ErrParamCount = errors.New("kernel template parameter count mismatch")
	// ErrNullOperand is the Go model of the null-pointer throw in generated code.
	ErrNullOperand = errors.New("operand pointer is null")
)

// ParamCountError reports a definition whose parameter list has the wrong length.
type ParamCountError struct {
	Key       string
	Got, Want int
}

func (e *ParamCountError) Error() string {
	return fmt.Sprintf("%s: %s: got %d parameters, want %d", ErrParamCount, e.Key, e.Got, e.Want)
}

func (e *ParamCountError) Unwrap() error { return ErrParamCount }
