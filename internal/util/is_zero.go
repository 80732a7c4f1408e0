package util

import "reflect"

func IsZero(i interface{}) bool {
	if i == nil {
		return true
	}
	return IsZeroVal(reflect.ValueOf(i))
}

// IsZeroVal works for non comparable values too, unlike comparison with reflect.Zero.
func IsZeroVal(v reflect.Value) bool {
	return v.IsZero()
}
