package grade

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/exercisegrade/result"
	"github.com/jonwraymond/exercisegrade/runtime"
)

// ErrInvalidExercise is returned for exercise metadata that cannot be graded.
var ErrInvalidExercise = errors.New("invalid exercise")

// Exercise is the metadata the content bank supplies for one exercise.
type Exercise struct {
	ID         string           `json:"id"`
	Language   runtime.Language `json:"language"`
	Topic      string           `json:"topic"`
	Difficulty string           `json:"difficulty"`

	// SolutionQuery is run after a successful learner run of a SQL exercise
	// to produce the expected rows.
	SolutionQuery string `json:"solutionQuery,omitempty"`

	// ExpectedRows is used for SQL exercises without a SolutionQuery.
	ExpectedRows []result.Row `json:"expectedRows,omitempty"`

	// SolutionCode is the model answer of a script exercise. It is shown, not
	// executed.
	SolutionCode string `json:"solutionCode,omitempty"`

	// ExpectedOutput is compared with a script exercise's stdout.
	ExpectedOutput string `json:"expectedOutput,omitempty"`

	// Strict disables whitespace tolerance for script output.
	Strict bool `json:"strict,omitempty"`

	// StrictCount makes duplicate rows count for SQL exercises.
	StrictCount bool `json:"strictCount,omitempty"`

	// Inputs feed input() calls of script exercises.
	Inputs []string `json:"inputs,omitempty"`

	// TimeoutMs overrides the default run timeout.
	TimeoutMs int64 `json:"timeoutMs,omitempty"`

	Hints []string `json:"hints,omitempty"`
}

// Context returns the fixture context of the exercise.
func (e Exercise) Context() runtime.ExerciseContext {
	return runtime.ExerciseContext{Topic: e.Topic, Difficulty: e.Difficulty}
}

// Validate checks that the exercise can be graded.
func (e Exercise) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidExercise)
	case !e.Language.IsValid():
		return fmt.Errorf("%w: %s: unknown language %q", ErrInvalidExercise, e.ID, e.Language)
	case e.Language == runtime.LanguageSQL && e.SolutionQuery == "" && e.ExpectedRows == nil:
		return fmt.Errorf("%w: %s: needs a solution query or expected rows", ErrInvalidExercise, e.ID)
	}
	return nil
}

// Request builds the ExecuteRequest for running code in this exercise.
func (e Exercise) Request(code string) runtime.ExecuteRequest {
	return runtime.ExecuteRequest{
		Code:     code,
		Language: e.Language,
		Timeout:  time.Duration(e.TimeoutMs) * time.Millisecond,
		Exercise: e.Context(),
		Inputs:   e.Inputs,
	}
}

// StaticReference returns the reference that needs no execution: expected
// rows for SQL, expected output for scripts.
func (e Exercise) StaticReference() Reference {
	return Reference{
		Language:       e.Language,
		Rows:           e.ExpectedRows,
		ExpectedOutput: e.ExpectedOutput,
		StrictOutput:   e.Strict,
		StrictCount:    e.StrictCount,
	}
}
