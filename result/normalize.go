package result

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EmptyMarker is the canonical form of Null and of empty or blank text.
const EmptyMarker = ""

// NormalizedRow maps column names to canonical text. It is never mutated after
// NormalizeRow returns it.
type NormalizedRow map[string]string

// Columns returns the row's keys in lexicographic order.
func (r NormalizedRow) Columns() []string {
	return sortedKeys(r)
}

// A cases.Caser keeps state between calls and must not be shared.
var lowerPool = sync.Pool{
	New: func() any {
		c := cases.Lower(language.Und)
		return &c
	},
}

// Normalize returns the canonical form of v.
func Normalize(v Value) string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "1"
		}
		return "0"
	case KindNumber:
		return normalizeNumber(v)
	case KindText:
		return normalizeText(v.s)
	default:
		return EmptyMarker
	}
}

func normalizeNumber(v Value) string {
	if v.exact {
		return strconv.FormatInt(v.i, 10)
	}
	f := v.f
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strings.ToLower(strconv.FormatFloat(f, 'f', -1, 64))
	}
	if f == math.Trunc(f) {
		if f == 0 {
			return "0"
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return EmptyMarker
	}
	c := lowerPool.Get().(*cases.Caser)
	defer lowerPool.Put(c)
	c.Reset()
	return c.String(s)
}

// NormalizeRow normalizes every key of row.
func NormalizeRow(row Row) NormalizedRow {
	out := make(NormalizedRow, len(row))
	for k, v := range row {
		out[k] = Normalize(v)
	}
	return out
}

// NormalizeRows normalizes each row independently.
func NormalizeRows(rows []Row) []NormalizedRow {
	out := make([]NormalizedRow, len(rows))
	for i, row := range rows {
		out[i] = NormalizeRow(row)
	}
	return out
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
