// Package result defines the row model produced by exercise executions and the
// canonicalization used to compare rows coming from two independent runs.
//
// # Values
//
// A [Row] maps column names to a [Value], a closed variant of four kinds:
//
//   - Null: SQL NULL, a missing value, or anything that cannot be represented
//   - Bool: true or false
//   - Number: an exact integer or a floating point number
//   - Text: any string
//
// Rows of the same result set may have different key sets (outer joins can
// omit columns), so nothing in this package assumes a fixed shape.
//
// # Canonical Form
//
// [Normalize] turns a Value into a comparison-ready string:
//
//   - Null and empty text map to [EmptyMarker]
//   - Bool maps to "1" or "0"
//   - Integers are rendered verbatim; other numbers are fixed to 2 decimals
//   - Text is trimmed and lower-cased
//
// Booleans and numbers intentionally collide ("1" for both true and 1) so that
// engines which store booleans as integers grade the same as engines that do not.
//
// The rounding of non-integers is lossy on purpose: two equivalent queries that
// compute averages in a different order may disagree in the last bits.
//
// Normalization is total and deterministic. It never panics, and functions in
// this package are safe for concurrent use.
package result
