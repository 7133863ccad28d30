package runtime

import (
	"fmt"
	"time"

	"github.com/jonwraymond/exercisegrade/result"
)

// Language selects the interpreter an exercise runs in.
type Language string

const (
	// LanguageSQL runs statements against the exercise's fixture database.
	LanguageSQL Language = "sql"

	// LanguageScript runs a general-purpose script and grades its output.
	LanguageScript Language = "script"
)

// IsValid reports whether l is a known language.
func (l Language) IsValid() bool {
	return l == LanguageSQL || l == LanguageScript
}

// ExerciseContext identifies the fixture tier an exercise runs against.
type ExerciseContext struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

// Key returns a readable label for the context, for logs and spans. It is not
// unique ("a/b" + "c" and "a" + "b/c" share a label); compare contexts with ==.
func (c ExerciseContext) Key() string {
	return c.Topic + "/" + c.Difficulty
}

// ExecuteRequest is one Run action. It is never modified after creation.
type ExecuteRequest struct {
	// Code is the learner's source.
	Code string `json:"code"`

	// Language selects the adapter.
	Language Language `json:"language"`

	// Timeout bounds the run. Zero means the Coordinator default.
	Timeout time.Duration `json:"timeout"`

	// Exercise selects fixtures for SQL exercises.
	Exercise ExerciseContext `json:"exercise"`

	// Inputs are returned, in order, by interactive input calls.
	Inputs []string `json:"inputs,omitempty"`
}

// Validate checks the request's language.
func (r ExecuteRequest) Validate() error {
	if !r.Language.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, r.Language)
	}
	return nil
}

// Output is what an adapter returns for a successful run. Stdout is captured
// by the Coordinator through the output hook and is not part of Output.
type Output struct {
	Columns []string
	Rows    []result.Row
	Stderr  string
}

// ExecError is the structured, user-presentable form of a failure.
type ExecError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Line    int       `json:"line,omitempty"`
}

// Error implements error.
func (e *ExecError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ExecuteResult is the outcome of one execution.
type ExecuteResult struct {
	// Success is false whenever Error is set.
	Success bool `json:"success"`

	// Columns lists the column names of Rows in engine order, when known.
	Columns []string `json:"columns,omitempty"`

	// Rows holds the result set for SQL runs.
	Rows []result.Row `json:"rows,omitempty"`

	// Stdout is the output captured through the adapter's output hook. On a
	// timeout it holds whatever was written before the deadline.
	Stdout string `json:"stdout,omitempty"`

	// Stderr holds diagnostic output, such as a traceback.
	Stderr string `json:"stderr,omitempty"`

	// Error is set when Success is false.
	Error *ExecError `json:"error,omitempty"`

	// Elapsed is the wall-clock time the caller waited.
	Elapsed time.Duration `json:"-"`

	// ElapsedMs mirrors Elapsed in milliseconds.
	ElapsedMs int64 `json:"elapsedMs"`

	// RequestID is unique and increasing per Coordinator.
	RequestID uint64 `json:"requestId"`

	// Stale reports that the exercise changed while the run was in flight.
	Stale bool `json:"stale,omitempty"`
}

// Failed builds an unsuccessful result from err.
func Failed(err error) ExecuteResult {
	return ExecuteResult{Error: Classify(err)}
}
