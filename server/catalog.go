package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jonwraymond/exercisegrade/grade"
	"github.com/jonwraymond/exercisegrade/runtime"
	"github.com/jonwraymond/exercisegrade/runtime/backend/sqlite"
)

// ErrUnknownExercise is returned for an exercise id the catalog does not hold.
var ErrUnknownExercise = errors.New("unknown exercise")

// Fixture is the seed script for one exercise context.
type Fixture struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty,omitempty"`
	Script     string `json:"script"`
}

// Catalog holds the exercises and SQL fixtures a server offers.
type Catalog struct {
	exercises map[string]grade.Exercise
	fixtures  sqlite.Fixtures
}

type catalogFile struct {
	Exercises []grade.Exercise `json:"exercises"`
	Fixtures  []Fixture        `json:"fixtures"`
}

// NewCatalog builds a catalog. Every exercise must validate and ids must be
// unique.
func NewCatalog(exercises []grade.Exercise, fixtures []Fixture) (*Catalog, error) {
	c := &Catalog{
		exercises: make(map[string]grade.Exercise, len(exercises)),
		fixtures:  make(sqlite.Fixtures, len(fixtures)),
	}
	for _, ex := range exercises {
		if err := ex.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.exercises[ex.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", grade.ErrInvalidExercise, ex.ID)
		}
		c.exercises[ex.ID] = ex
	}
	for _, f := range fixtures {
		c.fixtures[runtime.ExerciseContext{Topic: f.Topic, Difficulty: f.Difficulty}] = f.Script
	}
	return c, nil
}

// LoadCatalog decodes a JSON catalog of the form
// {"exercises": [...], "fixtures": [{"topic", "difficulty", "script"}]}.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(f.Exercises, f.Fixtures)
}

// LoadCatalogFile reads a JSON catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Exercise returns the exercise with id.
func (c *Catalog) Exercise(id string) (grade.Exercise, error) {
	ex, ok := c.exercises[id]
	if !ok {
		return grade.Exercise{}, fmt.Errorf("%w: %q", ErrUnknownExercise, id)
	}
	return ex, nil
}

// IDs returns the exercise ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.exercises))
	for id := range c.exercises {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fixture implements sqlite.FixtureSource.
func (c *Catalog) Fixture(ctx context.Context, ec runtime.ExerciseContext) (string, error) {
	return c.fixtures.Fixture(ctx, ec)
}

var _ sqlite.FixtureSource = (*Catalog)(nil)
