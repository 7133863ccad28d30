package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy of execution failures.
type ErrorKind string

const (
	KindInitialization ErrorKind = "initialization_error"
	KindSyntax         ErrorKind = "syntax_error"
	KindRuntime        ErrorKind = "runtime_error"
	KindTimeout        ErrorKind = "timeout_error"
	KindExecution      ErrorKind = "execution_error"
)

// Sentinel errors for error classification.
var (
	// ErrInitialization indicates an adapter failed to bootstrap.
	ErrInitialization = errors.New("runtime initialization failed")

	// ErrTimeout indicates an execution exceeded its time limit.
	ErrTimeout = errors.New("execution timed out")

	// ErrBusy indicates a run was rejected because another is in flight.
	ErrBusy = errors.New("another execution is in progress")

	// ErrUnknownLanguage indicates no adapter serves the requested language.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrConfiguration indicates an invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrAdapterExists is returned when registering a language twice.
	ErrAdapterExists = errors.New("adapter already registered")
)

// Error is a classified failure raised by an adapter or the Coordinator.
// It includes optional source location information.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Message describes the failure in terms a learner can act on.
	Message string

	// Line is the 1-based line number where the error occurred.
	// Zero indicates the line is unknown.
	Line int

	// Column is the 1-based column number where the error occurred.
	// Zero indicates the column is unknown.
	Column int

	// Err is the underlying error, if any.
	Err error
}

// NewError returns an Error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error returns the message, including line and column if available.
func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, col %d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets initialization and timeout errors match their sentinels.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindInitialization:
		return target == ErrInitialization
	case KindTimeout:
		return target == ErrTimeout
	}
	return false
}

// Classify converts any error into an ExecError. It returns nil for a nil
// error and never panics.
func Classify(err error) (out *ExecError) {
	if err == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			out = &ExecError{Kind: KindExecution, Message: fmt.Sprintf("unprintable error: %v", r)}
		}
	}()

	var e *Error
	switch {
	case errors.As(err, &e):
		kind := e.Kind
		if kind == "" {
			kind = KindExecution
		}
		msg := e.Message
		if msg == "" && e.Err != nil {
			msg = e.Err.Error()
		}
		return &ExecError{Kind: kind, Message: cleanMessage(msg), Line: e.Line}
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &ExecError{Kind: KindTimeout, Message: timeoutMessage}
	case errors.Is(err, ErrInitialization):
		return &ExecError{Kind: KindInitialization, Message: cleanMessage(err.Error())}
	case errors.Is(err, context.Canceled):
		return &ExecError{Kind: KindExecution, Message: "execution was cancelled"}
	case errors.Is(err, ErrBusy):
		return &ExecError{Kind: KindExecution, Message: "another execution is still running; wait for it to finish"}
	default:
		return &ExecError{Kind: KindExecution, Message: cleanMessage(err.Error())}
	}
}

const timeoutMessage = "execution took too long and was stopped; check for infinite loops"

func timeoutError(limit fmt.Stringer) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("execution exceeded the %s time limit and was stopped; check for infinite loops", limit),
		Err:     ErrTimeout,
	}
}

func cleanMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "unknown error"
	}
	return msg
}
