package runtime

import (
	"context"
	"io"
)

// Adapter wraps one embedded interpreter behind a uniform contract.
//
// Contract:
// - Concurrency: Initialize and State are safe for concurrent use. SetOutput and
// Execute are called by the Coordinator under its execution lock, one call at a time.
// - Context: Execute should stop early when ctx is cancelled if the interpreter
// can be interrupted; otherwise it may run to completion.
// - Errors: failures in learner code should be returned as *Error with
// KindSyntax or KindRuntime; anything else is classified as execution_error.
// - Ownership: req is read-only; the returned Output is caller-owned.
type Adapter interface {
	// Language returns the language this adapter serves.
	Language() Language

	// Initialize bootstraps the interpreter once. It is idempotent and
	// single-flight.
	Initialize(ctx context.Context) error

	// State reports the interpreter's lifecycle state. StateInitializing is
	// the Loading state callers use to disable Run.
	State() State

	// SetOutput installs w as the interpreter's output hook. A nil w
	// uninstalls it and output is discarded.
	SetOutput(w io.Writer)

	// Execute runs code.
	Execute(ctx context.Context, req ExecuteRequest) (Output, error)
}

// Resetter is implemented by adapters that keep state between runs and can
// discard it on request.
type Resetter interface {
	Reset() error
}

// Logger is the interface for logging. *slog.Logger satisfies it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
