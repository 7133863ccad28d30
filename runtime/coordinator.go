package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/jonwraymond/exercisegrade/runtime")

// Coordinator is the entry point for running learner code.
//
// Contract:
// - Concurrency: safe for concurrent use; executions are serialized.
// - Context: cancelling ctx stops the wait and cancels the adapter call.
// - Timeout: the request timeout covers both the wait for the lock and the run.
// - Errors: Execute never returns a Go error; failures are in ExecuteResult.Error.
type Coordinator struct {
	cfg Config

	// sem is the execution lock. A slot is held from before the output hook
	// is installed until after the adapter call returns.
	sem chan struct{}

	seq atomic.Uint64
	gen atomic.Uint64

	mu       sync.Mutex
	inflight map[uint64]context.CancelFunc
}

// NewCoordinator creates a Coordinator with the given configuration.
// Returns ErrConfiguration if any required field is missing.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Coordinator{
		cfg:      cfg,
		sem:      make(chan struct{}, 1),
		inflight: make(map[uint64]context.CancelFunc),
	}, nil
}

// Registry returns the adapters this Coordinator dispatches to.
func (c *Coordinator) Registry() *Registry {
	return c.cfg.Registry
}

// Initialize boots the adapter for lang. It is idempotent, and concurrent
// callers share one bootstrap.
func (c *Coordinator) Initialize(ctx context.Context, lang Language) error {
	a, ok := c.cfg.Registry.Get(lang)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return a.Initialize(ctx)
}

// State reports the lifecycle state of the adapter for lang.
func (c *Coordinator) State(lang Language) State {
	a, ok := c.cfg.Registry.Get(lang)
	if !ok {
		return StateUninitialized
	}
	return a.State()
}

// Generation returns the current exercise generation.
func (c *Coordinator) Generation() uint64 {
	return c.gen.Load()
}

// Supersede marks every run started so far as stale and cancels the ones in
// flight. Call it when the learner moves to a different exercise.
func (c *Coordinator) Supersede() uint64 {
	gen := c.gen.Add(1)

	c.mu.Lock()
	n := len(c.inflight)
	for _, cancel := range c.inflight {
		cancel()
	}
	c.mu.Unlock()

	if n > 0 {
		c.cfg.Logger.Debug("superseded in-flight executions", "generation", gen, "cancelled", n)
	}
	return gen
}

// Execute runs req and reports the outcome. It never returns a Go error.
func (c *Coordinator) Execute(ctx context.Context, req ExecuteRequest) (res ExecuteResult) {
	id := c.seq.Add(1)
	gen := c.gen.Load()
	start := time.Now()
	req.Timeout = c.cfg.timeoutFor(req.Timeout)

	ctx, span := tracer.Start(ctx, "runtime.Execute", trace.WithAttributes(
		attribute.String("exercise.language", string(req.Language)),
		attribute.String("exercise.context", req.Exercise.Key()),
		attribute.Int64("execution.request_id", int64(id)),
		attribute.Int64("execution.timeout_ms", req.Timeout.Milliseconds()),
	))

	defer func() {
		if p := recover(); p != nil {
			res = Failed(NewError(KindExecution, "internal error: %v", p))
		}
		res.RequestID = id
		res.Elapsed = time.Since(start)
		res.ElapsedMs = res.Elapsed.Milliseconds()
		if c.gen.Load() != gen {
			res.Stale = true
		}
		res.Success = res.Error == nil

		observeExecution(req.Language, res)
		if res.Error != nil {
			span.SetStatus(codes.Error, res.Error.Message)
			span.SetAttributes(attribute.String("execution.error_kind", string(res.Error.Kind)))
		}
		span.SetAttributes(attribute.Bool("execution.stale", res.Stale))
		span.End()

		c.cfg.Logger.Debug("execution finished",
			"request_id", id,
			"language", req.Language,
			"success", res.Success,
			"stale", res.Stale,
			"elapsed_ms", res.ElapsedMs)
	}()

	if err := req.Validate(); err != nil {
		return Failed(err)
	}
	adapter, ok := c.cfg.Registry.Get(req.Language)
	if !ok {
		return Failed(fmt.Errorf("%w: no adapter for %q", ErrUnknownLanguage, req.Language))
	}

	if err := adapter.Initialize(ctx); err != nil {
		c.cfg.Logger.Warn("adapter initialization failed", "language", req.Language, "error", err)
		return Failed(err)
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	if err := c.acquire(ctx, timer.C); err != nil {
		if errors.Is(err, errQueueExpired) {
			c.cfg.Logger.Info("execution timed out waiting for the execution lock",
				"request_id", id, "language", req.Language, "timeout", req.Timeout)
			return Failed(timeoutError(req.Timeout))
		}
		return Failed(err)
	}
	if c.gen.Load() != gen {
		// The learner moved on while this run was queued.
		c.release()
		return Failed(context.Canceled)
	}
	return c.run(ctx, id, adapter, req, timer)
}

type attempt struct {
	out Output
	err error
}

// run executes req while holding the execution lock. timer is the request's
// deadline, started before the lock was requested.
func (c *Coordinator) run(ctx context.Context, id uint64, adapter Adapter, req ExecuteRequest, timer *time.Timer) ExecuteResult {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.track(id, cancel)

	stdout := &lockedBuffer{}
	done := make(chan attempt, 1)
	var abandoned atomic.Bool

	go func() {
		defer c.release()
		defer c.untrack(id)
		defer cancel()

		adapter.SetOutput(stdout)
		defer adapter.SetOutput(nil)

		out, err := safeExecute(runCtx, adapter, req)
		if abandoned.Load() {
			lateResultsTotal.Inc()
			c.cfg.Logger.Debug("discarding late result", "request_id", id, "language", req.Language)
			return
		}
		done <- attempt{out: out, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			res := Failed(a.err)
			res.Stdout = stdout.String()
			res.Stderr = a.out.Stderr
			return res
		}
		return ExecuteResult{
			Columns: a.out.Columns,
			Rows:    a.out.Rows,
			Stdout:  stdout.String(),
			Stderr:  a.out.Stderr,
		}
	case <-timer.C:
		abandoned.Store(true)
		cancel()
		c.cfg.Logger.Info("execution timed out", "request_id", id, "language", req.Language, "timeout", req.Timeout)
		res := Failed(timeoutError(req.Timeout))
		res.Stdout = stdout.String()
		return res
	case <-ctx.Done():
		abandoned.Store(true)
		cancel()
		res := Failed(ctx.Err())
		res.Stdout = stdout.String()
		return res
	}
}

func safeExecute(ctx context.Context, adapter Adapter, req ExecuteRequest) (out Output, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = NewError(KindExecution, "interpreter crashed: %v", p)
		}
	}()
	return adapter.Execute(ctx, req)
}

// Reset discards the state the adapter for lang keeps between runs, such as
// the SQL database. It takes the execution lock, so it never overlaps a run.
// Adapters that keep no state are left alone.
func (c *Coordinator) Reset(ctx context.Context, lang Language) error {
	a, ok := c.cfg.Registry.Get(lang)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	r, ok := a.(Resetter)
	if !ok {
		return nil
	}
	if err := c.acquire(ctx, nil); err != nil {
		return err
	}
	defer c.release()

	if err := r.Reset(); err != nil {
		return fmt.Errorf("reset %s adapter: %w", lang, err)
	}
	c.cfg.Logger.Info("adapter state reset", "language", lang)
	return nil
}

// errQueueExpired reports that the request deadline passed while waiting
// for the execution lock.
var errQueueExpired = errors.New("deadline passed while queued")

// acquire takes the execution lock. A nil expired channel waits until ctx is
// done.
func (c *Coordinator) acquire(ctx context.Context, expired <-chan time.Time) error {
	if c.cfg.RejectWhenBusy {
		select {
		case c.sem <- struct{}{}:
			return nil
		default:
			busyRejectionsTotal.Inc()
			return ErrBusy
		}
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return errQueueExpired
	}
}

func (c *Coordinator) release() {
	<-c.sem
}

func (c *Coordinator) track(id uint64, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[id] = cancel
}

func (c *Coordinator) untrack(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

// lockedBuffer lets the caller read partial output while a timed-out adapter
// may still be writing.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
