package grade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/exercisegrade/progress"
	"github.com/jonwraymond/exercisegrade/runtime"
)

var tracer = otel.Tracer("github.com/jonwraymond/exercisegrade/grade")

// Errors returned by Session.
var (
	// ErrNoExercise is returned by Run before an exercise was selected.
	ErrNoExercise = errors.New("no exercise selected")

	// ErrRunInProgress is returned by Run while another Run of the same
	// session is still executing.
	ErrRunInProgress = errors.New("a run is already in progress")

	// ErrSuperseded is returned by Run when the exercise changed while the
	// run was in flight. Its result is discarded.
	ErrSuperseded = errors.New("exercise changed during the run")
)

// Phase is the state of a Session's grading cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExecuting
	PhaseSucceeded
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseExecuting:
		return "executing"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Executor runs code. *runtime.Coordinator implements it.
type Executor interface {
	Execute(ctx context.Context, req runtime.ExecuteRequest) runtime.ExecuteResult
	Supersede() uint64
	Reset(ctx context.Context, lang runtime.Language) error
	State(lang runtime.Language) runtime.State
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Executor runs learner and reference code.
	// Required.
	Executor Executor

	// ID identifies the learner session in progress events.
	// Default: a random UUID.
	ID string

	// Sink is notified of correct verdicts. Optional.
	Sink progress.Sink

	// Logger is an optional logger.
	Logger runtime.Logger
}

// Outcome is what one Run produced.
type Outcome struct {
	Result  runtime.ExecuteResult `json:"result"`
	Verdict Verdict               `json:"verdict"`
}

// Session is one learner working through exercises.
//
// Contract:
// - Concurrency: safe for concurrent use; overlapping Run calls are rejected
// with ErrRunInProgress.
// - Errors: learner mistakes are negative verdicts, not errors.
type Session struct {
	cfg SessionConfig

	mu       sync.Mutex
	exercise *Exercise
	gen      uint64
	phase    Phase
	running  bool
	attempts int
	last     *Outcome
}

// NewSession creates a Session in the Idle phase with no exercise.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("%w: missing required fields: Executor", runtime.ErrConfiguration)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{cfg: cfg}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.cfg.ID }

// SetExercise selects ex. Any run in flight is superseded and the previous
// verdict is cleared.
func (s *Session) SetExercise(ex Exercise) error {
	if err := ex.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.exercise = &ex
	s.gen++
	s.phase = PhaseIdle
	s.attempts = 0
	s.last = nil
	s.mu.Unlock()

	s.cfg.Executor.Supersede()
	s.cfg.Logger.Debug("exercise selected", "session", s.cfg.ID, "exercise", ex.ID, "language", ex.Language)
	return nil
}

// Exercise returns the selected exercise.
func (s *Session) Exercise() (Exercise, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exercise == nil {
		return Exercise{}, false
	}
	return *s.exercise, true
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Last returns the outcome of the latest completed run of the current
// exercise.
func (s *Session) Last() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// Ready reports whether the interpreter for the selected exercise has
// finished loading, so Run can be offered.
func (s *Session) Ready() bool {
	ex, ok := s.Exercise()
	if !ok {
		return false
	}
	return s.cfg.Executor.State(ex.Language) != runtime.StateInitializing
}

// Run executes code for the selected exercise and grades it.
func (s *Session) Run(ctx context.Context, code string) (Outcome, error) {
	s.mu.Lock()
	if s.exercise == nil {
		s.mu.Unlock()
		return Outcome{}, ErrNoExercise
	}
	if s.running {
		s.mu.Unlock()
		return Outcome{}, ErrRunInProgress
	}
	ex, gen := *s.exercise, s.gen
	s.running = true
	s.phase = PhaseExecuting
	s.attempts++
	attempts := s.attempts
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "grade.Run", trace.WithAttributes(
		attribute.String("session.id", s.cfg.ID),
		attribute.String("exercise.id", ex.ID),
		attribute.String("exercise.language", string(ex.Language)),
		attribute.Int("grade.attempt", attempts),
	))
	defer span.End()

	out, err := s.grade(ctx, ex, code)

	s.mu.Lock()
	s.running = false
	if err == nil && s.gen != gen {
		err = ErrSuperseded
	}
	if err != nil {
		if s.gen == gen {
			s.phase = PhaseIdle
		}
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}
	s.last = &out
	s.phase = PhaseSucceeded
	if !out.Result.Success {
		s.phase = PhaseFailed
	}
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("grade.correct", out.Verdict.IsCorrect),
		attribute.String("grade.reason", string(out.Verdict.Reason)),
	)
	s.cfg.Logger.Info("graded run",
		"session", s.cfg.ID,
		"exercise", ex.ID,
		"attempt", attempts,
		"correct", out.Verdict.IsCorrect,
		"reason", out.Verdict.Reason)

	if out.Verdict.IsCorrect {
		s.notify(ctx, ex, out.Verdict, attempts)
	}
	return out, nil
}

func (s *Session) grade(ctx context.Context, ex Exercise, code string) (Outcome, error) {
	user := s.cfg.Executor.Execute(ctx, ex.Request(code))
	if user.Stale {
		return Outcome{}, ErrSuperseded
	}

	ref := ex.StaticReference()
	if user.Success && ex.Language == runtime.LanguageSQL && ex.SolutionQuery != "" {
		req := ex.Request(ex.SolutionQuery)
		req.Inputs = nil
		solution := s.cfg.Executor.Execute(ctx, req)
		if solution.Stale {
			return Outcome{}, ErrSuperseded
		}
		if !solution.Success {
			s.cfg.Logger.Warn("reference solution failed",
				"exercise", ex.ID, "error", solution.Error)
		}
		ref = ReferenceFromResult(solution)
		ref.StrictCount = ex.StrictCount
	}
	return Outcome{Result: user, Verdict: Build(user, ref)}, nil
}

func (s *Session) notify(ctx context.Context, ex Exercise, v Verdict, attempts int) {
	if s.cfg.Sink == nil {
		return
	}
	ev := progress.NewEvent(s.cfg.ID, ex.ID, string(v.Reason), attempts)
	ev.Warning = v.Warning
	if err := s.cfg.Sink.Notify(context.WithoutCancel(ctx), ev); err != nil {
		s.cfg.Logger.Error("progress notification failed", "session", s.cfg.ID, "exercise", ex.ID, "error", err)
	}
}

// Reset discards the learner's changes to the exercise's state, such as rows
// inserted into the SQL database, and returns the session to Idle.
func (s *Session) Reset(ctx context.Context) error {
	ex, ok := s.Exercise()
	if !ok {
		return ErrNoExercise
	}
	if err := s.cfg.Executor.Reset(ctx, ex.Language); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.running {
		s.phase = PhaseIdle
	}
	s.last = nil
	s.mu.Unlock()
	return nil
}
