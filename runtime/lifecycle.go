package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Runtime.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BootFunc performs the expensive, one-time setup of an interpreter and
// returns its handle.
type BootFunc[H any] func(ctx context.Context) (H, error)

// Runtime owns the lazily created handle of one interpreter.
//
// Contract:
// - Concurrency: safe for concurrent use; concurrent Initialize calls share one bootstrap.
// - Context: the bootstrap runs detached from any single caller's cancellation;
// each caller stops waiting when its own context is done.
// - Errors: bootstrap failures are wrapped with ErrInitialization; a failed runtime retries on the next call.
type Runtime[H any] struct {
	name  string
	boot  BootFunc[H]
	group singleflight.Group

	mu     sync.RWMutex
	state  State
	handle H
	err    error
}

// NewRuntime creates an uninitialized Runtime. The name labels logs and metrics.
func NewRuntime[H any](name string, boot BootFunc[H]) *Runtime[H] {
	return &Runtime[H]{name: name, boot: boot}
}

// State returns the current lifecycle state.
func (r *Runtime[H]) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the error of the last failed bootstrap, if the runtime is Failed.
func (r *Runtime[H]) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != StateFailed {
		return nil
	}
	return r.err
}

// Handle returns the handle and whether the runtime is Ready.
func (r *Runtime[H]) Handle() (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handle, r.state == StateReady
}

// Initialize returns the handle, bootstrapping it first if needed.
func (r *Runtime[H]) Initialize(ctx context.Context) (H, error) {
	if h, ok := r.Handle(); ok {
		return h, nil
	}

	bootCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("boot", func() (any, error) {
		// Only the flight that runs the bootstrap moves the state, so a
		// finishing failed bootstrap cannot overwrite a retry in progress.
		r.mu.Lock()
		if r.state == StateReady {
			// A previous bootstrap finished and left the group just before
			// this caller reached DoChan.
			h := r.handle
			r.mu.Unlock()
			return h, nil
		}
		r.state = StateInitializing
		r.mu.Unlock()
		return r.bootstrap(bootCtx)
	})

	var zero H
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(H), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (r *Runtime[H]) bootstrap(ctx context.Context) (h H, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("bootstrap panicked: %v", p)
		}
		if err != nil {
			err = &Error{
				Kind:    KindInitialization,
				Message: fmt.Sprintf("%s failed to start: %v", r.name, err),
				Err:     err,
			}
		}

		r.mu.Lock()
		if err != nil {
			r.state = StateFailed
			r.err = err
		} else {
			r.state = StateReady
			r.handle = h
			r.err = nil
		}
		r.mu.Unlock()
		observeBootstrap(r.name, err, time.Since(start))
	}()

	if r.boot == nil {
		return h, fmt.Errorf("no bootstrap function")
	}
	return r.boot(ctx)
}
