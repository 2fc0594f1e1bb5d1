// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package marshal converts between Go values and the values exchanged with a
database/sql driver. A Marshaler handles one semantic type (a reflect.Type)
in both directions: it decodes a column of a fetched row and encodes a value
into a positional statement argument.

Marshalers are found through a Registry. The registry knows the built-in
scalar types, the composite forms (enums, arrays and collections) and any
codec declared by a type through the Provider interface. Types with no
marshaler are exchanged opaquely through the generic object codec.
*/
package marshal

import (
	"errors"
	"reflect"
)

// ErrMarshal is wrapped by errors raised while converting values.
var ErrMarshal = errors.New("cannot marshal value")

// Row gives positional access to the raw driver values of one fetched row.
type Row interface {
	NumColumns() int
	Column(index int) any
}

// Statement collects positional driver arguments.
type Statement interface {
	SetArg(index int, value any)
}

// Marshaler is a codec for a single semantic type. Indices are zero based.
//
// Decode returns a value of type t read from column index of row. Encode
// writes v, which has type t, to argument index of stmt. An invalid v or a
// nil pointer stands for NULL.
type Marshaler interface {
	Decode(t reflect.Type, row Row, index int) (reflect.Value, error)
	Encode(t reflect.Type, stmt Statement, index int, v reflect.Value) error
}

// Provider is implemented by types that declare their own codec. The
// declaration is discovered once, when the type is first registered.
type Provider interface {
	SQLMarshaler() Marshaler
}

// Enum is implemented by types with a closed set of members. Columns are
// decoded by comparing their text with the text of each member.
type Enum interface {
	EnumMembers() []any
}

// Char is a single character. It is stored as text.
type Char rune

func (c Char) String() string {
	return string(c)
}

// Values is a positional list of driver values. It implements both Row and
// Statement.
type Values []any

func (vs Values) NumColumns() int {
	return len(vs)
}

func (vs Values) Column(index int) any {
	if index < 0 || index >= len(vs) {
		return nil
	}
	return vs[index]
}

func (vs *Values) SetArg(index int, value any) {
	for len(*vs) <= index {
		*vs = append(*vs, nil)
	}
	(*vs)[index] = value
}

var (
	providerType = reflect.TypeOf((*Provider)(nil)).Elem()
	enumType     = reflect.TypeOf((*Enum)(nil)).Elem()
)

// isNull reports whether v stands for SQL NULL.
func isNull(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// indirect follows pointers and interfaces until it reaches a concrete value
// or a nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
