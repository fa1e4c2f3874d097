package registry

import (
	"reflect"
	"strings"
)

// FieldValue is the default resolver: it reads name from the parent value.
// Maps are indexed by key; structs are matched by json tag, then by field name
// ignoring case.
func FieldValue(source any, name string) any {
	rv := reflect.ValueOf(Unwrap(source))
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	case reflect.Struct:
		return structField(rv, name)
	default:
		return nil
	}
}

func structField(rv reflect.Value, name string) any {
	rt := rv.Type()
	fallback := -1
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == name {
				return rv.Field(i).Interface()
			}
			if tagName != "" {
				continue
			}
		}
		if fallback < 0 && strings.EqualFold(sf.Name, name) {
			fallback = i
		}
	}
	if fallback >= 0 {
		return rv.Field(fallback).Interface()
	}
	return nil
}
