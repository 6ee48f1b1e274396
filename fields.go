package relmap

import (
	"reflect"
	"strings"
)

// Struct adapts a pointer to a Go struct to the Fields interface, so that
// ItemChanges and AtomicChange can write through to user-defined types.
//
// Fields are matched by the `relmap:"name"` tag first and then by a
// case-insensitive comparison with the Go field name. Unknown names are
// ignored on write and reported as absent on read.
func Struct(ptr any) Fields {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		panic("relmap: Struct expects a pointer to a struct")
	}
	return structFields{v: rv.Elem()}
}

type structFields struct {
	v reflect.Value
}

func (s structFields) lookup(name string) (reflect.Value, bool) {
	t := s.v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("relmap"); ok {
			if tag, _, _ = strings.Cut(tag, ","); tag == name {
				return s.v.Field(i), true
			}
			continue
		}
		if strings.EqualFold(f.Name, name) || strings.EqualFold(f.Name, strings.ReplaceAll(name, "_", "")) {
			return s.v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Field implements Fields.
func (s structFields) Field(name string) (any, bool) {
	f, ok := s.lookup(name)
	if !ok {
		return nil, false
	}
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil, true
		}
		return f.Elem().Interface(), true
	}
	return f.Interface(), true
}

// SetField implements Fields. Values are converted to the field type when
// the conversion is defined, e.g. int64 to int.
func (s structFields) SetField(name string, v any) {
	f, ok := s.lookup(name)
	if !ok || !f.CanSet() {
		return
	}
	if v == nil {
		f.SetZero()
		return
	}
	rv := reflect.ValueOf(v)
	target := f.Type()
	if f.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	if !rv.Type().ConvertibleTo(target) {
		return
	}
	rv = rv.Convert(target)
	if f.Kind() == reflect.Pointer {
		p := reflect.New(target)
		p.Elem().Set(rv)
		f.Set(p)
		return
	}
	f.Set(rv)
}

// UnsetField implements Fields by resetting the field to its zero value.
func (s structFields) UnsetField(name string) {
	if f, ok := s.lookup(name); ok && f.CanSet() {
		f.SetZero()
	}
}
