package config

import (
	"reflect"

	"github.com/skipor/nemcache/internal/util"
)

// Merge overwrites def values with non zero override values. Nested structs are merged field by field.
func Merge(def, override *Config) {
	merge(reflect.ValueOf(def).Elem(), reflect.ValueOf(override).Elem())
}

func merge(def, override reflect.Value) {
	for i, end := 0, def.NumField(); i < end; i++ {
		overrideVal := override.Field(i)
		if overrideVal.Kind() == reflect.Struct {
			merge(def.Field(i), overrideVal)
			continue
		}
		if !util.IsZeroVal(overrideVal) {
			def.Field(i).Set(overrideVal)
		}
	}
}
