package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

// traced records the call stack of the constructor's caller on e.
func traced(e *AppError) *AppError {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	e.stack = pcs[:n]
	return e
}

// StackOf returns the call stack captured where the innermost AppError of
// err's chain was created, one frame per function and file:line pair. It
// returns "" when no error in the chain carries a stack.
func StackOf(err error) string {
	var pcs []uintptr
	for ; err != nil; err = stderrors.Unwrap(err) {
		if e, ok := err.(*AppError); ok && len(e.stack) > 0 {
			pcs = e.stack
		}
	}
	if len(pcs) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
