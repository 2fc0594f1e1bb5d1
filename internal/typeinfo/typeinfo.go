// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Property is a readable member of a struct type. It is either an exported
// field, possibly promoted from an embedded struct, or a method taking no
// arguments and returning a single value.
type Property struct {
	// Name is the Go name of the field or method.
	Name string

	// Tag is the column name given in the "db" tag, if any.
	Tag string

	// Column is the column the property is read from and written to. It is
	// the tag when there is one and the Go name otherwise.
	Column string

	Type reflect.Type

	// OmitEmpty is true when "omitempty" is
	// a property of the field's "db" tag.
	OmitEmpty bool

	// index is the field index sequence for FieldByIndex. It is nil for
	// methods.
	index []int
	// method is the index of the method in the method set of the pointer
	// type.
	method int
}

// IsField reports whether the property is a struct field and so can be set.
func (p *Property) IsField() bool {
	return p.index != nil
}

// Get reads the property from v, which must hold the struct type the
// property belongs to.
func (p *Property) Get(v reflect.Value) reflect.Value {
	if p.IsField() {
		return v.FieldByIndex(p.index)
	}
	if !v.CanAddr() {
		cp := reflect.New(v.Type()).Elem()
		cp.Set(v)
		v = cp
	}
	return v.Addr().Method(p.method).Call(nil)[0]
}

// Set assigns x to the property of the addressable struct value v.
func (p *Property) Set(v reflect.Value, x reflect.Value) error {
	if !p.IsField() {
		return errors.Errorf("cannot set method property %q", p.Name)
	}
	f := v.FieldByIndex(p.index)
	if !f.CanSet() {
		return errors.Errorf("internal error: cannot set field %s of struct %s", p.Name, v.Type().Name())
	}
	f.Set(x)
	return nil
}

// Info lists the properties of a struct type. Fields of embedded structs
// follow the fields of the outer struct; methods come last.
type Info struct {
	Type  reflect.Type
	Props []*Property
}

// Fields returns the properties backed by struct fields.
func (info *Info) Fields() []*Property {
	var fields []*Property
	for _, p := range info.Props {
		if p.IsField() {
			fields = append(fields, p)
		}
	}
	return fields
}

// Property finds the property called name. A property whose tag is exactly
// name wins, otherwise the Go name and the column are compared ignoring case.
func (info *Info) Property(name string) (*Property, bool) {
	for _, p := range info.Props {
		if p.Tag != "" && p.Tag == name {
			return p, true
		}
	}
	for _, p := range info.Props {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Column, name) {
			return p, true
		}
	}
	return nil, false
}

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo returns the Info of a struct type or of a pointer to one,
// generating and caching as required.
func GetTypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return nil, errors.New("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces the property list of a struct type.
func generate(t reflect.Type) (*Info, error) {
	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("can only reflect struct type, got %s", t)
	}

	info := &Info{Type: t}
	seen := map[string]bool{}
	if err := addFields(info, t, nil, seen); err != nil {
		return nil, err
	}

	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		// The receiver is the only input.
		if m.Type.NumIn() != 1 || m.Type.NumOut() != 1 {
			continue
		}
		if seen[strings.ToLower(m.Name)] {
			continue
		}
		info.Props = append(info.Props, &Property{
			Name:   m.Name,
			Column: m.Name,
			Type:   m.Type.Out(0),
			method: i,
		})
	}
	return info, nil
}

// addFields appends the exported fields of t, then the fields of its
// embedded structs. Fields already seen at a shallower depth shadow deeper
// ones.
func addFields(info *Info, t reflect.Type, prefix []int, seen map[string]bool) error {
	var embedded []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			embedded = append(embedded, f)
			continue
		}
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		p := &Property{
			Name:   f.Name,
			Column: f.Name,
			Type:   f.Type,
			index:  append(append([]int{}, prefix...), i),
		}
		if tag != "" {
			name, omitEmpty, err := parseTag(tag)
			if err != nil {
				return errors.Wrapf(err, "cannot parse tag for field %s.%s", t.Name(), f.Name)
			}
			p.Tag = name
			p.Column = name
			p.OmitEmpty = omitEmpty
		}
		key := strings.ToLower(p.Column)
		if seen[key] {
			continue
		}
		seen[key] = true
		seen[strings.ToLower(p.Name)] = true
		info.Props = append(info.Props, p)
	}
	for _, f := range embedded {
		if err := addFields(info, f.Type, append(append([]int{}, prefix...), f.Index...), seen); err != nil {
			return err
		}
	}
	return nil
}

// This expression should be aligned with the characters the parser accepts
// in a placeholder name segment.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its
// name and whether it contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", false, errors.New("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", false, errors.Errorf("unexpected tag value %q", options[1])
		}
		omitEmpty = true
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, errors.New("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, errors.Errorf("invalid column name in 'db' tag: %q", name)
	}

	return name, omitEmpty, nil
}
