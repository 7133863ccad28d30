// Package sqlite provides the SQL adapter. Each exercise context gets its own
// in-memory SQLite database seeded from a FixtureSource; the database persists
// across runs until the context changes or Reset is called.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/jonwraymond/exercisegrade/result"
	"github.com/jonwraymond/exercisegrade/runtime"
)

// DefaultMaxRows caps the rows one query may return.
const DefaultMaxRows = 10000

const driverName = "sqlite"

// Config configures the SQL adapter.
type Config struct {
	// Fixtures supplies schema and seed data per exercise context.
	// Nil means every context starts from an empty database.
	Fixtures FixtureSource

	// MaxRows caps the rows a single query may return.
	// Default: DefaultMaxRows.
	MaxRows int

	// Logger is an optional logger.
	Logger runtime.Logger
}

// engine is the bootstrapped handle.
type engine struct {
	version string
}

// Adapter executes SQL against per-exercise SQLite databases.
type Adapter struct {
	cfg Config
	rt  *runtime.Runtime[*engine]

	outMu sync.Mutex
	out   io.Writer

	mu sync.Mutex
	db *sql.DB
	ec runtime.ExerciseContext // context db was seeded for; valid while db != nil
}

// New creates an SQL adapter. The engine is not started until Initialize or
// the first Execute.
func New(cfg Config) *Adapter {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Adapter{cfg: cfg}
	a.rt = runtime.NewRuntime("sqlite", a.boot)
	return a
}

func (a *Adapter) boot(ctx context.Context) (*engine, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return nil, fmt.Errorf("probe engine: %w", err)
	}
	a.cfg.Logger.Info("sql engine ready", "version", version)
	return &engine{version: version}, nil
}

// Language returns runtime.LanguageSQL.
func (a *Adapter) Language() runtime.Language { return runtime.LanguageSQL }

// Initialize starts the engine.
func (a *Adapter) Initialize(ctx context.Context) error {
	_, err := a.rt.Initialize(ctx)
	return err
}

// State reports the engine's lifecycle state.
func (a *Adapter) State() runtime.State { return a.rt.State() }

// Version returns the SQLite version, or "" before the engine is ready.
func (a *Adapter) Version() string {
	if e, ok := a.rt.Handle(); ok {
		return e.version
	}
	return ""
}

// SetOutput installs the output hook.
func (a *Adapter) SetOutput(w io.Writer) {
	a.outMu.Lock()
	a.out = w
	a.outMu.Unlock()
}

func (a *Adapter) printf(format string, args ...any) {
	a.outMu.Lock()
	w := a.out
	a.outMu.Unlock()
	if w != nil {
		_, _ = fmt.Fprintf(w, format, args...)
	}
}

// Execute runs every statement in req.Code in order and returns the result
// set of the last statement that produced one.
func (a *Adapter) Execute(ctx context.Context, req runtime.ExecuteRequest) (runtime.Output, error) {
	if _, err := a.rt.Initialize(ctx); err != nil {
		return runtime.Output{}, err
	}

	stmts := Split(req.Code)
	if len(stmts) == 0 {
		return runtime.Output{}, runtime.NewError(runtime.KindSyntax, "no SQL statement to run")
	}

	db, err := a.database(ctx, req.Exercise)
	if err != nil {
		return runtime.Output{}, err
	}

	var out runtime.Output
	for i, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return runtime.Output{}, err
		}
		if returnsRows(stmt) {
			cols, rows, err := a.query(ctx, db, stmt)
			if err != nil {
				return runtime.Output{}, a.fail(ctx, err, i+1, len(stmts))
			}
			out.Columns, out.Rows = cols, rows
			if modifiesRows(stmt) {
				// DML with RETURNING: one returned row per affected row.
				a.printf("%d row(s) affected\n", len(rows))
			}
			continue
		}
		res, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return runtime.Output{}, a.fail(ctx, err, i+1, len(stmts))
		}
		if !modifiesRows(stmt) {
			continue
		}
		if n, err := res.RowsAffected(); err == nil {
			a.printf("%d row(s) affected\n", n)
		}
	}
	if out.Rows == nil {
		out.Rows = []result.Row{}
	}
	return out, nil
}

func (a *Adapter) fail(ctx context.Context, err error, stmt, total int) error {
	var rerr *runtime.Error
	if errors.As(err, &rerr) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return translate(err, stmt, total)
}

func (a *Adapter) query(ctx context.Context, db *sql.DB, stmt string) ([]string, []result.Row, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := []result.Row{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if len(out) >= a.cfg.MaxRows {
			return nil, nil, runtime.NewError(runtime.KindRuntime,
				"query returned more than %d rows; add a LIMIT or a WHERE clause", a.cfg.MaxRows)
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(result.Row, len(cols))
		for i, c := range cols {
			row[c] = result.FromAny(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

// database returns the database for ec, building and seeding a new one when
// the exercise context changed since the last run.
func (a *Adapter) database(ctx context.Context, ec runtime.ExerciseContext) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil && a.ec == ec {
		return a.db, nil
	}
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}

	db, err := a.open(ctx, ec)
	if err != nil {
		return nil, err
	}
	a.db, a.ec = db, ec
	a.cfg.Logger.Debug("sql database seeded", "exercise", ec.Key())
	return db, nil
}

func (a *Adapter) open(ctx context.Context, ec runtime.ExerciseContext) (*sql.DB, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}

	script, err := a.fixture(ctx, ec)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for i, stmt := range Split(script) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, &runtime.Error{
				Kind:    runtime.KindExecution,
				Message: fmt.Sprintf("loading fixtures for %s failed at statement %d: %s", ec.Key(), i+1, cleanMessage(err.Error())),
				Err:     err,
			}
		}
	}
	return db, nil
}

func (a *Adapter) fixture(ctx context.Context, ec runtime.ExerciseContext) (string, error) {
	if a.cfg.Fixtures == nil {
		return "", nil
	}
	script, err := a.cfg.Fixtures.Fixture(ctx, ec)
	switch {
	case errors.Is(err, ErrNoFixture):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("fixtures for %s: %w", ec.Key(), err)
	}
	return strings.TrimSpace(script), nil
}

// Reset discards the current database. The next run re-seeds from fixtures.
func (a *Adapter) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db, a.ec = nil, runtime.ExerciseContext{}
	return err
}

// Close releases the database.
func (a *Adapter) Close() error {
	return a.Reset()
}

var (
	_ runtime.Adapter  = (*Adapter)(nil)
	_ runtime.Resetter = (*Adapter)(nil)
)
