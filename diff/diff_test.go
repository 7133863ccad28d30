package diff

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jonwraymond/exercisegrade/result"
)

func row(kv ...any) result.Row {
	r := make(result.Row, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = result.FromAny(kv[i+1])
	}
	return r
}

func TestDiff_CaseTolerance(t *testing.T) {
	user := []result.Row{row("id", 1, "name", "Mario")}
	expected := []result.Row{row("id", 1, "name", "mario")}

	got := Diff(user, expected)
	if !got.Empty() {
		t.Fatalf("expected empty diff, got %+v", got)
	}
	if got.HasExtraColumns {
		t.Errorf("unexpected extra columns: %v", got.ExtraColumns)
	}
}

func TestDiff_Reordering(t *testing.T) {
	user := []result.Row{row("a", 1), row("a", 2)}
	expected := []result.Row{row("a", 2), row("a", 1)}

	if got := Diff(user, expected); !got.Empty() {
		t.Fatalf("expected empty diff, got %+v", got)
	}
}

func TestDiff_ExtraColumnWarning(t *testing.T) {
	user := []result.Row{row("id", 1, "name", "x", "extra", "y")}
	expected := []result.Row{row("id", 1, "name", "x")}

	got := Diff(user, expected)
	want := Report{
		MissingRows:     []result.NormalizedRow{},
		ExtraRows:       []result.NormalizedRow{},
		ExtraColumns:    []string{"extra"},
		HasExtraColumns: true,
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", d)
	}
}

func TestDiff_MissingRows(t *testing.T) {
	got := Diff(nil, []result.Row{row("id", 1)})
	want := Report{
		MissingRows:  []result.NormalizedRow{{"id": "1"}},
		ExtraRows:    []result.NormalizedRow{},
		ExtraColumns: []string{},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", d)
	}
}

func TestDiff_ExpectedEmpty(t *testing.T) {
	got := Diff([]result.Row{row("id", 2), row("id", 1)}, nil)
	if len(got.MissingRows) != 0 {
		t.Errorf("expected no missing rows, got %v", got.MissingRows)
	}
	want := []result.NormalizedRow{{"id": "1"}, {"id": "2"}}
	if d := cmp.Diff(want, got.ExtraRows); d != "" {
		t.Errorf("ExtraRows mismatch (-want +got):\n%s", d)
	}
	if got.HasExtraColumns {
		t.Error("extra columns must not be computed when one side is empty")
	}
}

func TestDiff_BothEmpty(t *testing.T) {
	got := Diff(nil, nil)
	if !got.Empty() || got.HasExtraColumns || len(got.ExtraColumns) != 0 {
		t.Errorf("expected empty report, got %+v", got)
	}
}

func TestDiff_ValueMismatch(t *testing.T) {
	user := []result.Row{row("id", 1, "total", 10), row("id", 2, "total", 5)}
	expected := []result.Row{row("id", 1, "total", 10.0), row("id", 2, "total", 6)}

	got := Diff(user, expected)
	if d := cmp.Diff([]result.NormalizedRow{{"id": "2", "total": "6"}}, got.MissingRows); d != "" {
		t.Errorf("MissingRows mismatch (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]result.NormalizedRow{{"id": "2", "total": "5"}}, got.ExtraRows); d != "" {
		t.Errorf("ExtraRows mismatch (-want +got):\n%s", d)
	}
}

func TestDiff_FloatNoiseTolerated(t *testing.T) {
	user := []result.Row{row("avg", 0.1+0.2)}
	expected := []result.Row{row("avg", 0.3)}
	if got := Diff(user, expected); !got.Empty() {
		t.Errorf("expected float noise to be tolerated, got %+v", got)
	}
}

func TestDiff_SubsetMatchNeedsEveryReferenceColumn(t *testing.T) {
	user := []result.Row{row("id", 1)}
	expected := []result.Row{row("id", 1, "name", "x")}

	got := Diff(user, expected)
	if len(got.MissingRows) != 1 {
		t.Errorf("expected the reference row to be missing, got %+v", got)
	}
	if len(got.ExtraRows) != 1 {
		t.Errorf("expected the user row to be extra, got %+v", got)
	}
}

func TestDiff_HeterogeneousShapesDoNotPanic(t *testing.T) {
	user := []result.Row{row("a", 1), row("a", 1, "b", nil), {}}
	expected := []result.Row{row("b", nil), row("a", 1)}

	got := Diff(user, expected)
	if len(got.MissingRows) != 0 {
		t.Errorf("expected every reference row to match, got %v", got.MissingRows)
	}
	// The empty user row matches no reference row.
	if d := cmp.Diff([]result.NormalizedRow{{}}, got.ExtraRows); d != "" {
		t.Errorf("ExtraRows mismatch (-want +got):\n%s", d)
	}
}

func TestDiff_ExtraColumnsDetectedOnEveryRow(t *testing.T) {
	expected := []result.Row{row("id", 1), row("id", 2), row("id", 3)}
	user := make([]result.Row, len(expected))
	for i, r := range expected {
		u := make(result.Row, len(r)+1)
		for k, v := range r {
			u[k] = v
		}
		u["note"] = result.Text("added")
		user[i] = u
	}

	got := Diff(user, expected)
	if !got.HasExtraColumns {
		t.Fatal("expected HasExtraColumns")
	}
	if d := cmp.Diff([]string{"note"}, got.ExtraColumns); d != "" {
		t.Errorf("ExtraColumns mismatch (-want +got):\n%s", d)
	}
	if !got.Empty() {
		t.Errorf("subset-match should ignore the added column, got %+v", got)
	}
}

func randomRows(r *rand.Rand, n int) []result.Row {
	names := []string{"Ada", "bob", "CARLA", "dan"}
	rows := make([]result.Row, n)
	for i := range rows {
		rows[i] = row(
			"id", r.IntN(5),
			"name", names[r.IntN(len(names))],
			"score", float64(r.IntN(300))/7,
			"active", r.IntN(2) == 0,
		)
	}
	return rows
}

func TestDiff_MirrorProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		a := randomRows(r, r.IntN(8))
		b := randomRows(r, r.IntN(8))

		ab := Diff(a, b)
		ba := Diff(b, a)
		if d := cmp.Diff(ab.MissingRows, ba.ExtraRows, cmpopts.EquateEmpty()); d != "" {
			t.Fatalf("iteration %d: diff(A,B).missing != diff(B,A).extra:\n%s", i, d)
		}
		if d := cmp.Diff(ab.ExtraRows, ba.MissingRows, cmpopts.EquateEmpty()); d != "" {
			t.Fatalf("iteration %d: diff(A,B).extra != diff(B,A).missing:\n%s", i, d)
		}
	}
}

func TestDiff_OrderInvariance(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 50; i++ {
		a := randomRows(r, 1+r.IntN(10))
		p := make([]result.Row, len(a))
		copy(p, a)
		r.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })

		if got := Diff(a, p); !got.Empty() {
			t.Fatalf("iteration %d: permutation produced a diff: %+v", i, got)
		}
	}
}

func TestDiff_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	a := randomRows(r, 12)
	b := randomRows(r, 12)

	first := Diff(a, b)
	for i := 0; i < 10; i++ {
		if d := cmp.Diff(first, Diff(a, b)); d != "" {
			t.Fatalf("Diff() not reproducible:\n%s", d)
		}
	}
}

func TestDiff_DoesNotMutateInput(t *testing.T) {
	user := []result.Row{row("a", 2), row("a", 1)}
	Diff(user, []result.Row{row("a", 1)})
	if v, _ := user[0]["a"].AsFloat(); v != 2 {
		t.Errorf("input order changed: %v", user)
	}
}
