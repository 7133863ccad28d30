package sqlite

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/exercisegrade/result"
	"github.com/jonwraymond/exercisegrade/runtime"
)

const customersFixture = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	city TEXT,
	balance REAL
);
INSERT INTO customers VALUES (1, 'Mario', 'Rome', 10.5);
INSERT INTO customers VALUES (2, 'Luigi', 'Milan', NULL);
`

var (
	basics   = runtime.ExerciseContext{Topic: "select", Difficulty: "easy"}
	advanced = runtime.ExerciseContext{Topic: "select", Difficulty: "hard"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(t *testing.T, fx FixtureSource) *Adapter {
	t.Helper()
	a := New(Config{Fixtures: fx, Logger: quietLogger()})
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func run(t *testing.T, a *Adapter, ec runtime.ExerciseContext, code string) (runtime.Output, error) {
	t.Helper()
	return a.Execute(context.Background(), runtime.ExecuteRequest{
		Code:     code,
		Language: runtime.LanguageSQL,
		Exercise: ec,
	})
}

func TestAdapter_InitializeReportsVersion(t *testing.T) {
	a := newTestAdapter(t, nil)
	if a.State() != runtime.StateUninitialized {
		t.Fatalf("State() = %v before Initialize", a.State())
	}
	if a.Version() != "" {
		t.Errorf("Version() = %q before Initialize", a.Version())
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if a.State() != runtime.StateReady {
		t.Errorf("State() = %v, want ready", a.State())
	}
	if !strings.HasPrefix(a.Version(), "3.") {
		t.Errorf("Version() = %q, want 3.x", a.Version())
	}
}

func TestAdapter_QueryFixture(t *testing.T) {
	a := newTestAdapter(t, Fixtures{{Topic: "select"}: customersFixture})

	out, err := run(t, a, basics, "SELECT id, name, balance, city FROM customers ORDER BY id")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := strings.Join(out.Columns, ","), "id,name,balance,city"; got != want {
		t.Errorf("Columns = %q, want %q", got, want)
	}
	if len(out.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(out.Rows))
	}

	first := out.Rows[0]
	if first["id"].Kind() != result.KindNumber || result.Normalize(first["id"]) != "1" {
		t.Errorf("id = %v", first["id"])
	}
	if result.Normalize(first["name"]) != "mario" {
		t.Errorf("name = %v", first["name"])
	}
	if result.Normalize(first["balance"]) != "10.50" {
		t.Errorf("balance = %v", first["balance"])
	}
	if !out.Rows[1]["balance"].IsNull() {
		t.Errorf("balance of row 2 = %v, want null", out.Rows[1]["balance"])
	}
}

func TestAdapter_LastResultSetWins(t *testing.T) {
	a := newTestAdapter(t, nil)
	out, err := run(t, a, basics, "SELECT 1 AS a; SELECT 2 AS b, 3 AS c;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(out.Columns) != 2 || out.Columns[0] != "b" {
		t.Errorf("Columns = %v, want [b c]", out.Columns)
	}
}

func TestAdapter_NoResultSet(t *testing.T) {
	a := newTestAdapter(t, nil)
	out, err := run(t, a, basics, "CREATE TABLE t (id INTEGER)")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Rows == nil || len(out.Rows) != 0 {
		t.Errorf("Rows = %#v, want empty non-nil", out.Rows)
	}
}

func TestAdapter_MutationsPersistWithinContext(t *testing.T) {
	a := newTestAdapter(t, Fixtures{{Topic: "select"}: customersFixture})

	var buf bytes.Buffer
	a.SetOutput(&buf)
	if _, err := run(t, a, basics, "INSERT INTO customers (id, name) VALUES (3, 'Peach')"); err != nil {
		t.Fatalf("insert error = %v", err)
	}
	a.SetOutput(nil)
	if got := buf.String(); got != "1 row(s) affected\n" {
		t.Errorf("output = %q", got)
	}

	out, err := run(t, a, basics, "SELECT count(*) AS n FROM customers")
	if err != nil {
		t.Fatalf("count error = %v", err)
	}
	if got := result.Normalize(out.Rows[0]["n"]); got != "3" {
		t.Errorf("count after insert = %s, want 3", got)
	}
}

func TestAdapter_ReturningClauseYieldsRows(t *testing.T) {
	a := newTestAdapter(t, Fixtures{{Topic: "select"}: customersFixture})

	var buf bytes.Buffer
	a.SetOutput(&buf)
	out, err := run(t, a, basics, "INSERT INTO customers (id, name) VALUES (3, 'Peach'), (4, 'Daisy') RETURNING id, name")
	a.SetOutput(nil)
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if len(out.Rows) != 2 || len(out.Columns) != 2 {
		t.Fatalf("RETURNING rows = %v, columns = %v", out.Rows, out.Columns)
	}
	names := map[string]bool{}
	for _, row := range out.Rows {
		names[result.Normalize(row["name"])] = true
	}
	if !names["peach"] || !names["daisy"] {
		t.Errorf("returned names = %v, want peach and daisy", names)
	}
	if got := buf.String(); got != "2 row(s) affected\n" {
		t.Errorf("output = %q", got)
	}

	out, err = run(t, a, basics, "DELETE FROM customers WHERE id > 2 RETURNING id")
	if err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if len(out.Rows) != 2 {
		t.Errorf("DELETE RETURNING rows = %v, want 2", out.Rows)
	}
}

func TestAdapter_ContextChangeReseeds(t *testing.T) {
	a := newTestAdapter(t, Fixtures{{Topic: "select"}: customersFixture})

	if _, err := run(t, a, basics, "DELETE FROM customers"); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	out, err := run(t, a, advanced, "SELECT count(*) AS n FROM customers")
	if err != nil {
		t.Fatalf("count error = %v", err)
	}
	if got := result.Normalize(out.Rows[0]["n"]); got != "2" {
		t.Errorf("count in new context = %s, want 2", got)
	}
}

func TestAdapter_ContextsWithSameLabelAreDistinct(t *testing.T) {
	first := runtime.ExerciseContext{Topic: "a/b", Difficulty: "c"}
	second := runtime.ExerciseContext{Topic: "a", Difficulty: "b/c"}
	a := newTestAdapter(t, Fixtures{
		first:  "CREATE TABLE t (v TEXT); INSERT INTO t VALUES ('first');",
		second: "CREATE TABLE t (v TEXT); INSERT INTO t VALUES ('second');",
	})

	for _, tt := range []struct {
		ec   runtime.ExerciseContext
		want string
	}{{first, "first"}, {second, "second"}, {first, "first"}} {
		out, err := run(t, a, tt.ec, "SELECT v FROM t")
		if err != nil {
			t.Fatalf("%+v: query error = %v", tt.ec, err)
		}
		if len(out.Rows) != 1 {
			t.Fatalf("%+v: rows = %v", tt.ec, out.Rows)
		}
		if got := result.Normalize(out.Rows[0]["v"]); got != tt.want {
			t.Errorf("%+v: v = %s, want %s", tt.ec, got, tt.want)
		}
	}
}

func TestAdapter_ResetReseeds(t *testing.T) {
	a := newTestAdapter(t, Fixtures{{Topic: "select"}: customersFixture})

	if _, err := run(t, a, basics, "DELETE FROM customers"); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if err := a.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	out, err := run(t, a, basics, "SELECT count(*) AS n FROM customers")
	if err != nil {
		t.Fatalf("count error = %v", err)
	}
	if got := result.Normalize(out.Rows[0]["n"]); got != "2" {
		t.Errorf("count after reset = %s, want 2", got)
	}
}

func TestAdapter_FixtureErrors(t *testing.T) {
	t.Run("no fixture gives empty database", func(t *testing.T) {
		a := newTestAdapter(t, Fixtures{{Topic: "joins"}: customersFixture})
		_, err := run(t, a, basics, "SELECT * FROM customers")
		assertKind(t, err, runtime.KindRuntime)
	})

	t.Run("source failure", func(t *testing.T) {
		boom := errors.New("bank offline")
		a := newTestAdapter(t, FixtureFunc(func(context.Context, runtime.ExerciseContext) (string, error) {
			return "", boom
		}))
		_, err := run(t, a, basics, "SELECT 1")
		if !errors.Is(err, boom) {
			t.Fatalf("error = %v, want wrapped %v", err, boom)
		}
	})

	t.Run("broken fixture script", func(t *testing.T) {
		a := newTestAdapter(t, Fixtures{{}: "CREATE TABLE t (id INTEGER); INSERT INTO missing VALUES (1);"})
		_, err := run(t, a, basics, "SELECT 1")
		assertKind(t, err, runtime.KindExecution)
		if !strings.Contains(err.Error(), "statement 2") {
			t.Errorf("error = %v, want statement position", err)
		}
	})
}

func TestAdapter_ErrorTranslation(t *testing.T) {
	fx := Fixtures{{}: customersFixture}
	tests := []struct {
		name     string
		code     string
		kind     runtime.ErrorKind
		contains string
	}{
		{"empty", "  -- nothing\n", runtime.KindSyntax, "no SQL statement"},
		{"syntax", "SELEC * FROM customers", runtime.KindSyntax, "syntax error"},
		{"unknown table", "SELECT * FROM nope", runtime.KindRuntime, "no such table: nope"},
		{"unknown column", "SELECT nope FROM customers", runtime.KindRuntime, "no such column: nope"},
		{"constraint", "INSERT INTO customers (id, name) VALUES (1, 'dup')", runtime.KindRuntime, "constraint violation"},
		{"not null", "INSERT INTO customers (id) VALUES (9)", runtime.KindRuntime, "NOT NULL"},
		{"second statement", "SELECT 1; SELECT * FROM nope", runtime.KindRuntime, "statement 2: no such table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, fx)
			_, err := run(t, a, basics, tt.code)
			assertKind(t, err, tt.kind)
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.contains)
			}
			if strings.Contains(err.Error(), "SQL logic error") {
				t.Errorf("error = %q still carries the driver prefix", err.Error())
			}
		})
	}
}

func TestAdapter_MaxRows(t *testing.T) {
	a := New(Config{MaxRows: 3, Logger: quietLogger()})
	t.Cleanup(func() { _ = a.Close() })

	_, err := run(t, a, basics, "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c LIMIT 10) SELECT x FROM c")
	assertKind(t, err, runtime.KindRuntime)
	if !strings.Contains(err.Error(), "more than 3 rows") {
		t.Errorf("error = %v", err)
	}
}

func TestAdapter_TimeoutThroughCoordinator(t *testing.T) {
	a := newTestAdapter(t, nil)
	c, err := runtime.NewCoordinator(runtime.Config{
		Registry: runtime.NewRegistry(a),
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	if err := c.Initialize(context.Background(), runtime.LanguageSQL); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	start := time.Now()
	res := c.Execute(context.Background(), runtime.ExecuteRequest{
		Code:     "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT count(*) FROM c",
		Language: runtime.LanguageSQL,
		Timeout:  150 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if res.Success || res.Error == nil || res.Error.Kind != runtime.KindTimeout {
		t.Fatalf("result = %+v, want timeout", res)
	}
	if elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, want close to the 150ms limit", elapsed)
	}

	// The interrupted query releases the engine for the next run.
	res = c.Execute(context.Background(), runtime.ExecuteRequest{
		Code:     "SELECT 42 AS answer",
		Language: runtime.LanguageSQL,
		Timeout:  5 * time.Second,
	})
	if !res.Success {
		t.Fatalf("follow-up run failed: %+v", res.Error)
	}
	if got := result.Normalize(res.Rows[0]["answer"]); got != "42" {
		t.Errorf("answer = %s", got)
	}
}

func TestFixtures_Fallback(t *testing.T) {
	fx := Fixtures{
		{Topic: "select", Difficulty: "hard"}: "exact",
		{Topic: "select"}:                     "topic",
		{}:                                    "default",
	}
	tests := []struct {
		ec   runtime.ExerciseContext
		want string
	}{
		{advanced, "exact"},
		{basics, "topic"},
		{runtime.ExerciseContext{Topic: "joins"}, "default"},
	}
	for _, tt := range tests {
		got, err := fx.Fixture(context.Background(), tt.ec)
		if err != nil || got != tt.want {
			t.Errorf("Fixture(%v) = %q, %v; want %q", tt.ec, got, err, tt.want)
		}
	}

	if _, err := (Fixtures{}).Fixture(context.Background(), basics); !errors.Is(err, ErrNoFixture) {
		t.Errorf("empty Fixtures error = %v, want ErrNoFixture", err)
	}
}

func assertKind(t *testing.T, err error, want runtime.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", want)
	}
	var rerr *runtime.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("error %T (%v) is not *runtime.Error", err, err)
	}
	if rerr.Kind != want {
		t.Fatalf("kind = %s (%v), want %s", rerr.Kind, err, want)
	}
}
