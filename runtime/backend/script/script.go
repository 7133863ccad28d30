// Package script provides the script adapter, an embedded Starlark
// interpreter. Learner programs print through the adapter's output hook, read
// pre-supplied values with input(), and can be interrupted when the run's
// context is cancelled.
package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/jonwraymond/exercisegrade/runtime"
)

// Filename is the name learner code is compiled under. It appears in
// backtraces.
const Filename = "main.star"

// Config configures the script adapter.
type Config struct {
	// MaxSteps bounds the computation steps of a single run.
	// Zero means no step limit; the Coordinator timeout still applies.
	MaxSteps uint64

	// Boot runs once during bootstrap after the universe is built. It is a
	// hook for embedding extra modules and for tests.
	Boot func(ctx context.Context, universe starlark.StringDict) error

	// Logger is an optional logger.
	Logger runtime.Logger
}

// universe is the bootstrapped handle: the frozen predeclared environment
// every run starts from.
type universe struct {
	predeclared starlark.StringDict
}

// Adapter runs Starlark programs.
type Adapter struct {
	cfg Config
	rt  *runtime.Runtime[*universe]

	mu  sync.Mutex
	out io.Writer
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// New creates a script adapter. The interpreter is not bootstrapped until
// Initialize or the first Execute.
func New(cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Adapter{cfg: cfg}
	a.rt = runtime.NewRuntime("starlark", a.boot)
	return a
}

func (a *Adapter) boot(ctx context.Context) (*universe, error) {
	predeclared := starlark.StringDict{
		"input":  starlark.NewBuiltin("input", builtinInput),
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"math":   math.Module,
		"json":   json.Module,
		"time":   time.Module,
	}
	if a.cfg.Boot != nil {
		if err := a.cfg.Boot(ctx, predeclared); err != nil {
			return nil, err
		}
	}
	predeclared.Freeze()
	a.cfg.Logger.Info("script interpreter ready", "modules", len(predeclared))
	return &universe{predeclared: predeclared}, nil
}

// Language returns runtime.LanguageScript.
func (a *Adapter) Language() runtime.Language { return runtime.LanguageScript }

// Initialize bootstraps the interpreter.
func (a *Adapter) Initialize(ctx context.Context) error {
	_, err := a.rt.Initialize(ctx)
	return err
}

// State reports the interpreter's lifecycle state. StateInitializing is the
// Loading state.
func (a *Adapter) State() runtime.State { return a.rt.State() }

// SetOutput installs the output hook.
func (a *Adapter) SetOutput(w io.Writer) {
	a.mu.Lock()
	a.out = w
	a.mu.Unlock()
}

func (a *Adapter) write(s string) {
	a.mu.Lock()
	w := a.out
	a.mu.Unlock()
	if w != nil {
		_, _ = io.WriteString(w, s)
	}
}

// Execute runs req.Code as a fresh module. Globals do not survive between
// runs.
func (a *Adapter) Execute(ctx context.Context, req runtime.ExecuteRequest) (runtime.Output, error) {
	u, err := a.rt.Initialize(ctx)
	if err != nil {
		return runtime.Output{}, err
	}

	thread := &starlark.Thread{
		Name: "learner",
		Print: func(_ *starlark.Thread, msg string) {
			a.write(msg + "\n")
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q): modules cannot be loaded in exercises", module)
		},
	}
	thread.SetLocal(inputKey, newInputQueue(req.Inputs, a.write))
	if a.cfg.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(a.cfg.MaxSteps)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	_, err = starlark.ExecFileOptions(fileOptions, thread, Filename, req.Code, u.predeclared)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return runtime.Output{}, ctxErr
		}
		return runtime.Output{Stderr: backtrace(err)}, translate(err)
	}
	return runtime.Output{}, nil
}

var _ runtime.Adapter = (*Adapter)(nil)
