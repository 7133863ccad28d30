package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindText
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single cell of a Row. The zero Value is Null.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	exact bool
	s     string
}

// Null returns the Null value.
func Null() Value { return Value{} }

// Bool returns a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a Number value holding an exact integer.
func Int(i int64) Value { return Value{kind: KindNumber, i: i, f: float64(i), exact: true} }

// Float returns a Number value.
func Float(f float64) Value { return Value{kind: KindNumber, f: f} }

// Text returns a Text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsFloat returns the number held by v and whether v is a Number.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindNumber }

// AsText returns the string held by v and whether v is Text.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// String renders v for display. It is not the canonical form; see Normalize.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		if v.exact {
			return strconv.FormatInt(v.i, 10)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	default:
		return "NULL"
	}
}

// FromAny converts a driver or decoded JSON value into a Value. Unknown types
// degrade to their fmt representation as Text; FromAny never panics.
func FromAny(x any) (v Value) {
	defer func() {
		if r := recover(); r != nil {
			v = Text(fmt.Sprintf("%v", r))
		}
	}()

	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Float(float64(t))
		}
		return Int(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t))
		}
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		if f, err := t.Float64(); err == nil {
			return Float(f)
		}
		return Text(t.String())
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case time.Time:
		return Text(t.UTC().Format(time.RFC3339Nano))
	case fmt.Stringer:
		return Text(t.String())
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null()
		}
		return FromAny(rv.Elem().Interface())
	}
	return Text(fmt.Sprintf("%v", x))
}

// MarshalJSON encodes v as the matching JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if v.exact {
			return []byte(strconv.FormatInt(v.i, 10)), nil
		}
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(strconv.FormatFloat(v.f, 'g', -1, 64))
		}
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Arrays and objects are kept as Text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	switch x.(type) {
	case map[string]any, []any:
		*v = Text(string(bytes.TrimSpace(data)))
	default:
		*v = FromAny(x)
	}
	return nil
}

// Row maps column names to values.
type Row map[string]Value

// RowFromMap converts a loosely typed map, such as decoded JSON, into a Row.
func RowFromMap(m map[string]any) Row {
	if m == nil {
		return nil
	}
	row := make(Row, len(m))
	for k, x := range m {
		row[k] = FromAny(x)
	}
	return row
}

// Columns returns the row's keys in lexicographic order.
func (r Row) Columns() []string {
	return sortedKeys(r)
}
