package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a recovered panic. It is always fatal.
type PanicError struct {
	Value any
	Stack string
	cause error
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	return e.cause
}

func (e *PanicError) IsFatal() bool {
	return true
}

// RecoverPanic recovers from a panic and returns it as an error
// It captures the stack trace for debugging
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	pe := &PanicError{
		Value: r,
		Stack: string(debug.Stack()),
	}
	if err, ok := r.(error); ok {
		pe.cause = err
	}
	return pe
}
