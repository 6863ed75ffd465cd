package mapper

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/roach88/qdsl/internal/queryir"
)

// normalize converts a driver value to the canonical Go type of the
// column's static type: string, int64, float64 or bool. Drivers differ in
// what they return (MySQL text results are []byte, Postgres numeric
// averages are strings, SQLite booleans are integers).
func normalize(v any, t queryir.ValueType, col int) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch t {
	case queryir.TypeString:
		switch val := v.(type) {
		case string:
			return val, nil
		case int64, int32, int, float64, bool:
			return fmt.Sprint(val), nil
		}
	case queryir.TypeInteger:
		switch val := v.(type) {
		case int64:
			return val, nil
		case int:
			return int64(val), nil
		case int32:
			return int64(val), nil
		case float64:
			if val == math.Trunc(val) && val >= math.MinInt64 && val < math.MaxInt64 {
				return int64(val), nil
			}
		case string:
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				return n, nil
			}
		}
	case queryir.TypeFloat:
		switch val := v.(type) {
		case float64:
			return val, nil
		case float32:
			return float64(val), nil
		case int64:
			return float64(val), nil
		case int:
			return float64(val), nil
		case string:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f, nil
			}
		}
	case queryir.TypeBoolean:
		switch val := v.(type) {
		case bool:
			return val, nil
		case int64:
			return val != 0, nil
		case string:
			if b, err := strconv.ParseBool(val); err == nil {
				return b, nil
			}
		}
	default:
		return v, nil
	}
	return nil, queryir.NewProjectionMismatch(queryir.CodeIncompatibleType, col,
		"database value %v (%T) is not a %s", v, v, t)
}

// assignTo converts v to type t for a constructor parameter or struct
// field. NULL becomes the zero value, so nullable columns should bind to
// pointer types. Numbers convert within their family and integers widen
// to floats; nothing else converts.
func assignTo(v any, t reflect.Type, col int) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Pointer {
		inner, err := assignTo(v, t.Elem(), col)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if convertible(rv, t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, queryir.NewProjectionMismatch(queryir.CodeIncompatibleType, col,
		"cannot use %v (%T) as %s", v, v, t)
}

func convertible(v reflect.Value, t reflect.Type) bool {
	target := reflect.New(t).Elem()
	switch {
	case isInt(v.Kind()) && isInt(t.Kind()):
		return !target.OverflowInt(v.Int())
	case isInt(v.Kind()) && isUint(t.Kind()):
		return v.Int() >= 0 && !target.OverflowUint(uint64(v.Int()))
	case isInt(v.Kind()) && isFloat(t.Kind()):
		return true
	case isFloat(v.Kind()) && isFloat(t.Kind()):
		return !target.OverflowFloat(v.Float())
	case v.Kind() == reflect.String && t.Kind() == reflect.String:
		return true
	case v.Kind() == reflect.Bool && t.Kind() == reflect.Bool:
		return true
	}
	return false
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
