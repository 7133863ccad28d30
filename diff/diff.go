// Package diff compares two row sets without regard to row order, tolerating
// extra columns on the learner's side.
//
// A reference row is missing when no learner row matches it on every column
// the reference row carries; columns the learner row has in addition are
// ignored (subset-match). A learner row is extra when no reference row matches
// it under the same rule. Matching is a pairwise O(n·m) scan, which is fine for
// exercise-sized result sets of a few thousand rows.
//
// Rows are put into a deterministic order before scanning so reports are
// reproducible. The order plays no part in matching.
package diff

import (
	"cmp"
	"slices"

	"github.com/jonwraymond/exercisegrade/result"
)

// Report is the outcome of comparing a learner row set with a reference set.
type Report struct {
	// MissingRows are reference rows no learner row matched.
	MissingRows []result.NormalizedRow `json:"missingRows"`

	// ExtraRows are learner rows that matched no reference row.
	ExtraRows []result.NormalizedRow `json:"extraRows"`

	// ExtraColumns lists, sorted, the columns of the first learner row that are
	// absent from the first reference row.
	ExtraColumns []string `json:"extraColumns"`

	// HasExtraColumns reports len(ExtraColumns) > 0.
	HasExtraColumns bool `json:"hasExtraColumns"`
}

// Empty reports whether no rows are missing or extra.
func (r Report) Empty() bool {
	return len(r.MissingRows) == 0 && len(r.ExtraRows) == 0
}

// Diff compares userRows against expectedRows.
func Diff(userRows, expectedRows []result.Row) Report {
	report := Report{
		MissingRows:  []result.NormalizedRow{},
		ExtraRows:    []result.NormalizedRow{},
		ExtraColumns: []string{},
	}

	// Only the first row of each side is inspected; heterogeneous shapes from
	// outer joins are not reconciled here.
	if len(userRows) > 0 && len(expectedRows) > 0 {
		for _, col := range userRows[0].Columns() {
			if _, ok := expectedRows[0][col]; !ok {
				report.ExtraColumns = append(report.ExtraColumns, col)
			}
		}
		report.HasExtraColumns = len(report.ExtraColumns) > 0
	}

	user := canonicalOrder(result.NormalizeRows(userRows))
	expected := canonicalOrder(result.NormalizeRows(expectedRows))

	for _, want := range expected {
		if !matchedBy(want, user) {
			report.MissingRows = append(report.MissingRows, want)
		}
	}
	for _, got := range user {
		if !matchesAny(got, expected) {
			report.ExtraRows = append(report.ExtraRows, got)
		}
	}
	return report
}

// matchedBy reports whether some candidate carries every column of ref.
func matchedBy(ref result.NormalizedRow, candidates []result.NormalizedRow) bool {
	for _, c := range candidates {
		if subsetMatch(ref, c) {
			return true
		}
	}
	return false
}

// matchesAny reports whether row carries every column of some reference row.
func matchesAny(row result.NormalizedRow, refs []result.NormalizedRow) bool {
	for _, ref := range refs {
		if subsetMatch(ref, row) {
			return true
		}
	}
	return false
}

// subsetMatch reports whether candidate agrees with ref on every column of ref.
func subsetMatch(ref, candidate result.NormalizedRow) bool {
	for col, want := range ref {
		got, ok := candidate[col]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// canonicalOrder sorts rows by their values over the sorted union of columns.
// An absent column sorts before any present value, including the empty marker.
func canonicalOrder(rows []result.NormalizedRow) []result.NormalizedRow {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	slices.Sort(columns)

	slices.SortStableFunc(rows, func(a, b result.NormalizedRow) int {
		for _, col := range columns {
			av, aok := a[col]
			bv, bok := b[col]
			if aok != bok {
				if !aok {
					return -1
				}
				return 1
			}
			if c := cmp.Compare(av, bv); c != 0 {
				return c
			}
		}
		return 0
	})
	return rows
}
