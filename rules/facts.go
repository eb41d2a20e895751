package rules

import (
	"encoding/json"
	"math"
	"reflect"
)

// Facts is the per-job snapshot the evaluator reads. Callers build a fresh
// one for every evaluation; the engine never retains or mutates it.
type Facts map[string]any

// Fact is the result of looking up a field: either Present(value) or Absent.
type Fact struct {
	value   any
	present bool
}

// PresentFact wraps a value found in the snapshot.
func PresentFact(v any) Fact { return Fact{value: v, present: true} }

// AbsentFact is the result of looking up a missing field.
func AbsentFact() Fact { return Fact{} }

// Present reports whether the field was found with a non-nil value.
func (f Fact) Present() bool { return f.present }

// Value returns the wrapped value, or nil when absent.
func (f Fact) Value() any { return f.value }

// Lookup returns the fact stored under field. A nil value is treated as absent.
func (fs Facts) Lookup(field string) Fact {
	v, ok := fs[field]
	if !ok || v == nil {
		return AbsentFact()
	}
	return PresentFact(v)
}

// isTruthy applies standard truthiness: false, zero, NaN, empty and nil are false.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	}

	if f, ok := toFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return isTruthy(rv.Elem().Interface())
	}
	return true
}

// valuesEqual compares by value. Numbers of different Go types compare
// numerically so a JSON-decoded 3.0 equals a configured int 3.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
