// Package errors provides the kernel's structured error type.
//
// Every failure raised while compiling or running a pipeline is an *AppError
// carrying a machine-readable ErrorCode. The action envelope records the
// error on the monitor log; the code decides whether a write is retried.
package errors
