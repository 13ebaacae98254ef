package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// FromGo converts decoded YAML, JSON or script values into a Value.
// Maps must have string keys. Float values with no fractional part stay
// Float; canonical output prints them the same as Int.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return checkFloat(float64(val))
	case float64:
		return checkFloat(val)
	case json.Number:
		return numberValue(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v (%T)", k, k)
			}
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", ks, err)
			}
			obj[ks] = e
		}
		return obj, nil
	}

	// typed slices such as []float64 or []string
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		arr := make(Array, rv.Len())
		for i := range arr {
			e, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unsupported type: %T", v)
}

func checkFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return Float(f), nil
}

// ToGo converts a Value into plain Go values: nil, string, bool, int64,
// float64, []any and map[string]any.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToGo(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToGo(e)
		}
		return out
	}
	return nil
}

// ObjectFrom converts a struct (or map) into an Object by way of its JSON
// encoding, so json tags and omitempty decide the keys.
func ObjectFrom(v any) (Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return UnmarshalObject(data)
}

// Decode fills dst (a pointer) from obj by way of JSON.
func Decode(obj Object, dst any) error {
	data, err := obj.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Floats converts an Array of numbers into a []float64.
func Floats(v Value) ([]float64, error) {
	arr, ok := v.(Array)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]float64, len(arr))
	for i, e := range arr {
		switch n := e.(type) {
		case Int:
			out[i] = float64(n)
		case Float:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("[%d]: expected number, got %T", i, e)
		}
	}
	return out, nil
}

// Ints converts an Array of integral numbers into a []int64.
func Ints(v Value) ([]int64, error) {
	arr, ok := v.(Array)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]int64, len(arr))
	for i, e := range arr {
		switch n := e.(type) {
		case Int:
			out[i] = int64(n)
		case Float:
			if n != Float(math.Trunc(float64(n))) {
				return nil, fmt.Errorf("[%d]: expected integer, got %v", i, float64(n))
			}
			out[i] = int64(n)
		default:
			return nil, fmt.Errorf("[%d]: expected integer, got %T", i, e)
		}
	}
	return out, nil
}
