// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownProperty is returned when a path names a property its type does
// not have.
var ErrUnknownProperty = errors.New("unknown property")

// ResolvePath follows path through the static types starting at t and
// returns the type of the last property. Resolution stops early, with
// complete set to false, at a property whose type is an interface since only
// the runtime value can tell what it holds.
func ResolvePath(t reflect.Type, path []string) (last reflect.Type, complete bool, err error) {
	last = t
	for _, segment := range path {
		st := last
		for st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		if st.Kind() == reflect.Interface {
			return last, false, nil
		}
		if st.Kind() != reflect.Struct {
			return last, false, errors.Wrapf(ErrUnknownProperty, "%s has no property %q", last, segment)
		}
		info, err := GetTypeInfo(st)
		if err != nil {
			return last, false, err
		}
		p, ok := info.Property(segment)
		if !ok {
			return last, false, errors.Wrapf(ErrUnknownProperty, "%s has no property %q", st, segment)
		}
		last = p.Type
	}
	return last, true, nil
}

// Locate follows path from v using the runtime type of each value met on
// the way. It returns the value found and the type to use for it, which is
// the static type of the deepest property that could be resolved.
//
// When a nil is met before the end of the path the returned value is
// invalid and the type is resolved statically as far as possible.
func Locate(v reflect.Value, t reflect.Type, path []string) (reflect.Value, reflect.Type, error) {
	for i, segment := range path {
		rv := indirect(v)
		if !rv.IsValid() {
			last, _, _ := ResolvePath(t, path[i:])
			return reflect.Value{}, last, nil
		}
		if rv.Kind() != reflect.Struct {
			return reflect.Value{}, t, errors.Wrapf(ErrUnknownProperty, "%s has no property %q", rv.Type(), segment)
		}
		info, err := GetTypeInfo(rv.Type())
		if err != nil {
			return reflect.Value{}, t, err
		}
		p, ok := info.Property(segment)
		if !ok {
			return reflect.Value{}, t, errors.Wrapf(ErrUnknownProperty, "%s has no property %q", rv.Type(), segment)
		}
		v = p.Get(rv)
		t = p.Type
	}
	return v, t, nil
}

// SplitPath splits a dotted placeholder name into trimmed segments.
func SplitPath(name string) []string {
	segments := strings.Split(name, ".")
	for i, s := range segments {
		segments[i] = strings.TrimSpace(s)
	}
	return segments
}

// indirect follows pointers and interfaces. It returns an invalid value when
// it meets a nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
