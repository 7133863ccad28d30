package sqlite

import (
	"context"
	"errors"

	"github.com/jonwraymond/exercisegrade/runtime"
)

// ErrNoFixture is returned by a FixtureSource that has nothing for a context.
// The adapter then starts from an empty database.
var ErrNoFixture = errors.New("no fixture for exercise context")

// FixtureSource supplies the schema and seed data for an exercise context as a
// SQL script.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: return ErrNoFixture when the context has no fixture.
type FixtureSource interface {
	Fixture(ctx context.Context, ec runtime.ExerciseContext) (string, error)
}

// FixtureFunc adapts a function to FixtureSource.
type FixtureFunc func(ctx context.Context, ec runtime.ExerciseContext) (string, error)

// Fixture calls f.
func (f FixtureFunc) Fixture(ctx context.Context, ec runtime.ExerciseContext) (string, error) {
	return f(ctx, ec)
}

// Fixtures is a static FixtureSource. Lookups fall back from topic and
// difficulty, to the topic alone, to the zero context.
type Fixtures map[runtime.ExerciseContext]string

// Fixture returns the script for ec.
func (f Fixtures) Fixture(_ context.Context, ec runtime.ExerciseContext) (string, error) {
	for _, key := range []runtime.ExerciseContext{ec, {Topic: ec.Topic}, {}} {
		if script, ok := f[key]; ok {
			return script, nil
		}
	}
	return "", ErrNoFixture
}
