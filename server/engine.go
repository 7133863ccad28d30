package server

import (
	"time"

	"github.com/jonwraymond/exercisegrade/runtime"
	"github.com/jonwraymond/exercisegrade/runtime/backend/script"
	"github.com/jonwraymond/exercisegrade/runtime/backend/sqlite"
)

// EngineConfig configures the interpreters built for each connection.
type EngineConfig struct {
	Fixtures       sqlite.FixtureSource
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	MaxRows        int
	MaxSteps       uint64
	RejectWhenBusy bool
	Logger         runtime.Logger
}

// Engine is one connection's Coordinator with its adapters.
type Engine struct {
	*runtime.Coordinator
	sql *sqlite.Adapter
}

// Close releases the SQL database.
func (e *Engine) Close() error {
	return e.sql.Close()
}

// NewEngine builds a Coordinator over fresh SQL and script adapters. The
// interpreters boot lazily on first use.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	sql := sqlite.New(sqlite.Config{
		Fixtures: cfg.Fixtures,
		MaxRows:  cfg.MaxRows,
		Logger:   cfg.Logger,
	})
	scr := script.New(script.Config{
		MaxSteps: cfg.MaxSteps,
		Logger:   cfg.Logger,
	})
	coord, err := runtime.NewCoordinator(runtime.Config{
		Registry:       runtime.NewRegistry(sql, scr),
		DefaultTimeout: cfg.DefaultTimeout,
		MaxTimeout:     cfg.MaxTimeout,
		RejectWhenBusy: cfg.RejectWhenBusy,
		Logger:         cfg.Logger,
	})
	if err != nil {
		_ = sql.Close()
		return nil, err
	}
	return &Engine{Coordinator: coord, sql: sql}, nil
}
