package grade

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/exercisegrade/result"
	"github.com/jonwraymond/exercisegrade/runtime"
)

func rows(ms ...map[string]any) []result.Row {
	out := make([]result.Row, 0, len(ms))
	for _, m := range ms {
		out = append(out, result.RowFromMap(m))
	}
	return out
}

func ok(rs []result.Row) runtime.ExecuteResult {
	return runtime.ExecuteResult{Success: true, Rows: rs}
}

func sqlRef(rs []result.Row) Reference {
	return Reference{Language: runtime.LanguageSQL, Rows: rs}
}

func TestBuild_SQL(t *testing.T) {
	tests := []struct {
		name     string
		user     []result.Row
		expected []result.Row
		correct  bool
		reason   ReasonCode
		message  []string
		warning  string
	}{
		{
			name:     "case tolerance",
			user:     rows(map[string]any{"id": 1, "name": "Mario"}),
			expected: rows(map[string]any{"id": 1, "name": "mario"}),
			correct:  true,
			reason:   ReasonCorrect,
		},
		{
			name:     "reordering",
			user:     rows(map[string]any{"a": 1}, map[string]any{"a": 2}),
			expected: rows(map[string]any{"a": 2}, map[string]any{"a": 1}),
			correct:  true,
			reason:   ReasonCorrect,
		},
		{
			name:     "extra column warning",
			user:     rows(map[string]any{"id": 1, "name": "x", "extra": "y"}),
			expected: rows(map[string]any{"id": 1, "name": "x"}),
			correct:  true,
			reason:   ReasonExtraColumns,
			warning:  "extra",
		},
		{
			name:     "missing rows",
			user:     rows(),
			expected: rows(map[string]any{"id": 1}),
			reason:   ReasonMissingRows,
			message:  []string{"1 expected row is missing", "returned 0 rows", "has 1"},
		},
		{
			name:     "extra rows",
			user:     rows(map[string]any{"id": 1}, map[string]any{"id": 2}),
			expected: rows(map[string]any{"id": 1}),
			reason:   ReasonExtraRows,
			message:  []string{"1 unexpected row", "returned 2 rows", "has 1"},
		},
		{
			name:     "both",
			user:     rows(map[string]any{"id": 2}),
			expected: rows(map[string]any{"id": 1}),
			reason:   ReasonRowMismatch,
			message:  []string{"1 expected row was not found", "1 unexpected row was returned"},
		},
		{
			name:     "duplicates are tolerated",
			user:     rows(map[string]any{"id": 1}, map[string]any{"id": 1}),
			expected: rows(map[string]any{"id": 1}),
			correct:  true,
			reason:   ReasonCorrect,
			message:  []string{"returned 2 rows", "has 1"},
		},
		{
			name:     "both empty",
			user:     rows(),
			expected: rows(),
			correct:  true,
			reason:   ReasonCorrect,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Build(ok(tt.user), sqlRef(tt.expected))
			if v.IsCorrect != tt.correct || v.Reason != tt.reason {
				t.Fatalf("Build() = {IsCorrect:%v Reason:%s}, want {%v %s}; message %q",
					v.IsCorrect, v.Reason, tt.correct, tt.reason, v.Message)
			}
			if v.UserCount != len(tt.user) || v.ExpectedCount != len(tt.expected) {
				t.Errorf("counts = %d/%d, want %d/%d", v.UserCount, v.ExpectedCount, len(tt.user), len(tt.expected))
			}
			for _, want := range tt.message {
				if !strings.Contains(v.Message, want) {
					t.Errorf("Message = %q, want it to contain %q", v.Message, want)
				}
			}
			if tt.warning != "" && !strings.Contains(v.Warning, tt.warning) {
				t.Errorf("Warning = %q, want it to mention %q", v.Warning, tt.warning)
			}
			if tt.warning == "" && v.Warning != "" {
				t.Errorf("unexpected Warning %q", v.Warning)
			}
			if v.Diff == nil {
				t.Error("SQL verdicts carry the diff report")
			}
		})
	}
}

func TestBuild_StrictCount(t *testing.T) {
	ref := sqlRef(rows(map[string]any{"id": 1}))
	ref.StrictCount = true
	v := Build(ok(rows(map[string]any{"id": 1}, map[string]any{"id": 1})), ref)
	if v.IsCorrect || v.Reason != ReasonCountMismatch {
		t.Fatalf("Build() = %+v, want count mismatch", v)
	}
	if !strings.Contains(v.Message, "returned 2 rows") || !strings.Contains(v.Message, "has 1") {
		t.Errorf("Message = %q, want both counts", v.Message)
	}
}

func TestBuild_FailedRun(t *testing.T) {
	tests := []struct {
		name   string
		err    *runtime.ExecError
		reason ReasonCode
		msg    string
	}{
		{"syntax", &runtime.ExecError{Kind: runtime.KindSyntax, Message: "near \"SELEC\": syntax error", Line: 1}, ReasonExecutionError, "syntax error (line 1)"},
		{"runtime", &runtime.ExecError{Kind: runtime.KindRuntime, Message: "no such table: x"}, ReasonExecutionError, "no such table: x"},
		{"timeout", &runtime.ExecError{Kind: runtime.KindTimeout, Message: "check for infinite loops"}, ReasonTimeout, "infinite loops"},
		{"no detail", nil, ReasonExecutionError, "execution failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Build(runtime.ExecuteResult{Error: tt.err}, sqlRef(rows(map[string]any{"id": 1})))
			if v.IsCorrect || v.Reason != tt.reason {
				t.Fatalf("Build() = %+v, want reason %s", v, tt.reason)
			}
			if !strings.Contains(v.Message, tt.msg) {
				t.Errorf("Message = %q, want it to contain %q", v.Message, tt.msg)
			}
			if v.Diff != nil {
				t.Error("no diff is computed for a failed run")
			}
		})
	}
}

func TestBuild_ReferenceFailure(t *testing.T) {
	ref := ReferenceFromResult(runtime.ExecuteResult{
		Error: &runtime.ExecError{Kind: runtime.KindRuntime, Message: "no such table: orders"},
	})
	v := Build(ok(rows(map[string]any{"id": 1})), ref)
	if v.IsCorrect || v.Reason != ReasonReferenceError {
		t.Fatalf("Build() = %+v, want reference error", v)
	}
	if !strings.Contains(v.Message, "no such table: orders") {
		t.Errorf("Message = %q", v.Message)
	}
}

func TestBuild_Script(t *testing.T) {
	ref := Reference{Language: runtime.LanguageScript, ExpectedOutput: "Hello World\n"}

	v := Build(runtime.ExecuteResult{Success: true, Stdout: "  Hello   World \r\n"}, ref)
	if !v.IsCorrect || v.Reason != ReasonCorrect {
		t.Errorf("tolerant match = %+v", v)
	}

	ref.StrictOutput = true
	v = Build(runtime.ExecuteResult{Success: true, Stdout: "Hello  World"}, ref)
	if v.IsCorrect || v.Reason != ReasonOutputMismatch {
		t.Errorf("strict mismatch = %+v", v)
	}
}

func TestBuild_UnknownLanguage(t *testing.T) {
	v := Build(ok(nil), Reference{Language: "cobol"})
	if v.IsCorrect || v.Reason != ReasonReferenceError {
		t.Errorf("Build() = %+v", v)
	}
}

func TestBuild_ReplacesNotMerges(t *testing.T) {
	ref := sqlRef(rows(map[string]any{"id": 1}))
	first := Build(ok(rows(map[string]any{"id": 1, "extra": 2})), ref)
	second := Build(ok(rows(map[string]any{"id": 1})), ref)
	if first.Warning == "" {
		t.Fatal("first verdict should carry a warning")
	}
	want := Verdict{IsCorrect: true, Reason: ReasonCorrect, UserCount: 1, ExpectedCount: 1, Message: "Correct!"}
	if diff := cmp.Diff(want, second, cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Diff"
	}, cmp.Ignore())); diff != "" {
		t.Errorf("second verdict mismatch (-want +got):\n%s", diff)
	}
}
