package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// fakeHandle is the handle booted by fakeAdapter.
type fakeHandle struct {
	id int
}

// fakeAdapter implements Adapter for testing.
type fakeAdapter struct {
	lang Language
	rt   *Runtime[*fakeHandle]

	// Configurable behavior
	exec func(ctx context.Context, w io.Writer, req ExecuteRequest) (Output, error)

	// Call tracking
	boots atomic.Int32
	calls atomic.Int32

	mu  sync.Mutex
	out io.Writer
}

func newFakeAdapter(lang Language, exec func(ctx context.Context, w io.Writer, req ExecuteRequest) (Output, error)) *fakeAdapter {
	a := &fakeAdapter{lang: lang, exec: exec}
	a.rt = NewRuntime(fmt.Sprintf("fake-%s", lang), func(context.Context) (*fakeHandle, error) {
		n := a.boots.Add(1)
		return &fakeHandle{id: int(n)}, nil
	})
	return a
}

func (a *fakeAdapter) Language() Language { return a.lang }

func (a *fakeAdapter) Initialize(ctx context.Context) error {
	_, err := a.rt.Initialize(ctx)
	return err
}

func (a *fakeAdapter) State() State { return a.rt.State() }

func (a *fakeAdapter) SetOutput(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out = w
}

func (a *fakeAdapter) output() io.Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.out == nil {
		return io.Discard
	}
	return a.out
}

func (a *fakeAdapter) Execute(ctx context.Context, req ExecuteRequest) (Output, error) {
	a.calls.Add(1)
	if a.exec == nil {
		return Output{}, nil
	}
	return a.exec(ctx, a.output(), req)
}

var _ Adapter = (*fakeAdapter)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCoordinator(t interface {
	Helper()
	Fatalf(string, ...any)
}, cfg Config) *Coordinator {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	c, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	return c
}
