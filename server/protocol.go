package server

import (
	"github.com/jonwraymond/exercisegrade/grade"
	"github.com/jonwraymond/exercisegrade/runtime"
)

// Inbound message types.
const (
	TypeSelectExercise = "select_exercise"
	TypeRun            = "run"
	TypeReset          = "reset"
)

// Outbound message types.
const (
	TypeState   = "state"
	TypeResult  = "result"
	TypeVerdict = "verdict"
	TypeError   = "error"
)

// Error codes carried by error messages.
const (
	CodeBadRequest     = "bad_request"
	CodeUnknown        = "unknown_exercise"
	CodeNoExercise     = "no_exercise"
	CodeRunInProgress  = "run_in_progress"
	CodeRateLimited    = "rate_limited"
	CodeLoading        = "loading"
	CodeSuperseded     = "superseded"
	CodeResetFailed    = "reset_failed"
	CodeInitialization = "initialization_error"
)

// Inbound is a message from the client.
type Inbound struct {
	Type string `json:"type"`

	// ExerciseID selects a catalog exercise (select_exercise).
	ExerciseID string `json:"exerciseId,omitempty"`

	// Code is the learner's source (run).
	Code string `json:"code,omitempty"`
}

// Outbound is a message to the client.
type Outbound struct {
	Type string `json:"type"`

	SessionID  string `json:"sessionId,omitempty"`
	ExerciseID string `json:"exerciseId,omitempty"`

	// Phase and Runtime describe the session (state).
	Phase   string `json:"phase,omitempty"`
	Runtime string `json:"runtime,omitempty"`

	Result  *runtime.ExecuteResult `json:"result,omitempty"`
	Verdict *grade.Verdict         `json:"verdict,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
