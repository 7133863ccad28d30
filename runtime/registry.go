package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registry holds the adapters of one session, keyed by language. It owns
// their runtimes; nothing is kept in package-level state.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Language]Adapter
}

// NewRegistry creates a registry holding adapters. It panics on a duplicate
// language, which is a programming error.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Language]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter is nil")
	}
	lang := a.Language()
	if !lang.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[lang]; exists {
		return fmt.Errorf("%w: %s", ErrAdapterExists, lang)
	}
	r.adapters[lang] = a
	return nil
}

// Get retrieves the adapter for a language.
func (r *Registry) Get(lang Language) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[lang]
	return a, ok
}

// Languages returns registered languages sorted for deterministic output.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Language, 0, len(r.adapters))
	for lang := range r.adapters {
		out = append(out, lang)
	}
	slices.Sort(out)
	return out
}

// InitializeAll boots every adapter concurrently and joins their errors.
func (r *Registry) InitializeAll(ctx context.Context) error {
	langs := r.Languages()
	errs := make([]error, len(langs))

	var wg sync.WaitGroup
	for i, lang := range langs {
		a, _ := r.Get(lang)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = a.Initialize(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
