// Package grade turns execution results into verdicts.
//
// Build is a pure function over one learner result and its reference. Session
// drives the Run cycle of one learner around it: execute, run the reference
// solution for SQL exercises, build the verdict, and report solved exercises
// to a progress sink.
package grade

import (
	"fmt"
	"strings"

	"github.com/jonwraymond/exercisegrade/diff"
	"github.com/jonwraymond/exercisegrade/result"
	"github.com/jonwraymond/exercisegrade/runtime"
	"github.com/jonwraymond/exercisegrade/textcheck"
)

// ReasonCode explains a verdict.
type ReasonCode string

const (
	ReasonCorrect        ReasonCode = "correct"
	ReasonExtraColumns   ReasonCode = "extra_columns"
	ReasonMissingRows    ReasonCode = "missing_rows"
	ReasonExtraRows      ReasonCode = "extra_rows"
	ReasonRowMismatch    ReasonCode = "row_mismatch"
	ReasonCountMismatch  ReasonCode = "count_mismatch"
	ReasonOutputMismatch ReasonCode = "output_mismatch"
	ReasonExecutionError ReasonCode = "execution_error"
	ReasonTimeout        ReasonCode = "timeout_error"
	ReasonReferenceError ReasonCode = "reference_error"
)

// Verdict is the outcome of one grading attempt. The next attempt replaces
// it; verdicts are never merged.
type Verdict struct {
	IsCorrect     bool       `json:"isCorrect"`
	Reason        ReasonCode `json:"reasonCode"`
	UserCount     int        `json:"userCount"`
	ExpectedCount int        `json:"expectedCount"`
	Message       string     `json:"message"`
	Warning       string     `json:"warning,omitempty"`

	// Error is the learner's execution error, when there was one.
	Error *runtime.ExecError `json:"error,omitempty"`

	// Diff is set for SQL verdicts built from a comparison.
	Diff *diff.Report `json:"diff,omitempty"`
}

// Reference is what a learner result is graded against.
type Reference struct {
	// Language selects row comparison (SQL) or output comparison (script).
	Language runtime.Language

	// Rows is the expected result set for SQL exercises.
	Rows []result.Row

	// Error is set when the reference solution itself failed to run.
	Error *runtime.ExecError

	// ExpectedOutput is the expected stdout of a script exercise.
	ExpectedOutput string

	// StrictOutput disables whitespace tolerance for ExpectedOutput.
	StrictOutput bool

	// StrictCount makes a row count difference incorrect even when every
	// row matches, as it does when duplicates matter.
	StrictCount bool
}

// ReferenceFromResult builds a SQL reference from the result of running the
// solution query.
func ReferenceFromResult(res runtime.ExecuteResult) Reference {
	ref := Reference{Language: runtime.LanguageSQL, Rows: res.Rows}
	if !res.Success {
		ref.Error = res.Error
		if ref.Error == nil {
			ref.Error = &runtime.ExecError{Kind: runtime.KindExecution, Message: "reference solution failed"}
		}
	}
	return ref
}

// Build grades user against ref. It never panics and never returns an error;
// a mismatch is a negative verdict.
func Build(user runtime.ExecuteResult, ref Reference) Verdict {
	if !user.Success || user.Error != nil {
		return failedRun(user.Error)
	}
	switch ref.Language {
	case runtime.LanguageSQL:
		return compareRows(user.Rows, ref)
	case runtime.LanguageScript:
		return compareOutput(user.Stdout, ref)
	default:
		return Verdict{
			Reason:  ReasonReferenceError,
			Message: fmt.Sprintf("exercise has no grading rule for language %q", ref.Language),
		}
	}
}

func failedRun(e *runtime.ExecError) Verdict {
	if e == nil {
		e = &runtime.ExecError{Kind: runtime.KindExecution, Message: "execution failed"}
	}
	v := Verdict{Reason: ReasonExecutionError, Error: e, Message: e.Message}
	if e.Kind == runtime.KindTimeout {
		v.Reason = ReasonTimeout
	}
	if e.Line > 0 {
		v.Message = fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return v
}

func compareRows(userRows []result.Row, ref Reference) Verdict {
	if ref.Error != nil {
		return Verdict{
			Reason:    ReasonReferenceError,
			UserCount: len(userRows),
			Message:   "the reference solution could not be run: " + ref.Error.Message,
		}
	}

	report := diff.Diff(userRows, ref.Rows)
	v := Verdict{
		UserCount:     len(userRows),
		ExpectedCount: len(ref.Rows),
		Diff:          &report,
	}
	missing, extra := len(report.MissingRows), len(report.ExtraRows)
	countsDiffer := v.UserCount != v.ExpectedCount

	switch {
	case missing > 0 && extra > 0:
		v.Reason = ReasonRowMismatch
		v.Message = fmt.Sprintf("%d expected %s not found and %d unexpected %s returned.",
			missing, plural(missing, "row was", "rows were"), extra, plural(extra, "row was", "rows were"))
	case missing > 0:
		v.Reason = ReasonMissingRows
		v.Message = fmt.Sprintf("%d expected %s missing from your result.", missing, plural(missing, "row is", "rows are"))
	case extra > 0:
		v.Reason = ReasonExtraRows
		v.Message = fmt.Sprintf("Your result has %d unexpected %s.", extra, plural(extra, "row", "rows"))
	case countsDiffer && ref.StrictCount:
		v.Reason = ReasonCountMismatch
		v.Message = "Every row matches, but duplicates differ."
	default:
		v.IsCorrect = true
		v.Reason = ReasonCorrect
		v.Message = "Correct!"
		if report.HasExtraColumns {
			v.Reason = ReasonExtraColumns
			v.Warning = fmt.Sprintf("Your query selects columns the exercise does not ask for: %s.", strings.Join(report.ExtraColumns, ", "))
		}
	}

	if countsDiffer {
		v.Message += fmt.Sprintf(" Your query returned %d %s; the expected result has %d.",
			v.UserCount, plural(v.UserCount, "row", "rows"), v.ExpectedCount)
	}
	return v
}

func compareOutput(stdout string, ref Reference) Verdict {
	if textcheck.ValidateOutput(stdout, ref.ExpectedOutput, ref.StrictOutput) {
		return Verdict{IsCorrect: true, Reason: ReasonCorrect, Message: "Correct!"}
	}
	return Verdict{
		Reason:  ReasonOutputMismatch,
		Message: "Your program's output does not match the expected output.",
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
