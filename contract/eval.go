package contract

import (
	"fmt"
	"reflect"

	"github.com/rfielding/dbc/protocol"
)

// compareValues applies a comparison to two concrete values. Numeric
// operands compare numerically across int widths; strings compare
// lexically; everything else supports equality only.
func compareValues(op CmpOp, l, r any) (bool, error) {
	switch op {
	case OpEq:
		return valuesEqual(l, r), nil
	case OpNe:
		return !valuesEqual(l, r), nil
	}

	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch op {
		case OpLt:
			return lf < rf, nil
		case OpLe:
			return lf <= rf, nil
		case OpGt:
			return lf > rf, nil
		case OpGe:
			return lf >= rf, nil
		}
	}

	ls, lok := toString(l)
	rs, rok := toString(r)
	if lok && rok {
		switch op {
		case OpLt:
			return ls < rs, nil
		case OpLe:
			return ls <= rs, nil
		case OpGt:
			return ls > rs, nil
		case OpGe:
			return ls >= rs, nil
		}
	}

	return false, fmt.Errorf("cannot order %T against %T", l, r)
}

func valuesEqual(l, r any) bool {
	if isNil(l) || isNil(r) {
		return isNil(l) && isNil(r)
	}
	if lf, ok := toFloat(l); ok {
		if rf, ok := toFloat(r); ok {
			return lf == rf
		}
		return false
	}
	if ls, ok := toString(l); ok {
		if rs, ok := toString(r); ok {
			return ls == rs
		}
		return false
	}
	if lb, ok := l.(bool); ok {
		rb, ok := r.(bool)
		return ok && lb == rb
	}
	return reflect.DeepEqual(l, r)
}

// isNil covers both the untyped nil interface and typed nil pointers,
// maps and slices, so "this.Data != nil" means what a caller expects.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
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
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case protocol.Value:
		return string(s), true
	}
	return "", false
}
