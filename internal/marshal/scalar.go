// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package marshal

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// scalar is the codec of a built-in single valued type. Values of named types
// sharing the kind of canon are converted to and from canon.
type scalar struct {
	canon reflect.Type
	// decode converts a non-nil driver value into a value of type canon.
	decode func(src any) (any, error)
	// encode converts a value of type canon into a driver argument.
	encode func(v any) any
	// null is the typed null bound in place of a nil value.
	null any
}

func (m *scalar) Decode(t reflect.Type, row Row, index int) (reflect.Value, error) {
	src := row.Column(index)
	if src == nil {
		return reflect.Zero(t), nil
	}
	v, err := m.decode(src)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: column %d into %s: %s", ErrMarshal, index, t, err)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return rv, nil
	}
	if !rv.Type().ConvertibleTo(t) {
		return reflect.Value{}, fmt.Errorf("%w: column %d: %s is not convertible to %s", ErrMarshal, index, rv.Type(), t)
	}
	return rv.Convert(t), nil
}

func (m *scalar) Encode(t reflect.Type, stmt Statement, index int, v reflect.Value) error {
	v = indirect(v)
	if isNull(v) {
		stmt.SetArg(index, m.null)
		return nil
	}
	if v.Type() != m.canon {
		if !v.Type().ConvertibleTo(m.canon) {
			return fmt.Errorf("%w: argument %d: %s is not convertible to %s", ErrMarshal, index, v.Type(), m.canon)
		}
		v = v.Convert(m.canon)
	}
	stmt.SetArg(index, m.encode(v.Interface()))
	return nil
}

func passthrough(v any) any {
	return v
}

// basic builds the codec of a type the driver exchanges natively. Decoding
// relies on the conversions of sql.Null[T], which reject out of range values.
func basic[T any]() *scalar {
	return &scalar{
		canon: reflect.TypeOf((*T)(nil)).Elem(),
		decode: func(src any) (any, error) {
			var n sql.Null[T]
			if err := n.Scan(src); err != nil {
				return nil, err
			}
			return n.V, nil
		},
		encode: passthrough,
		null:   sql.Null[T]{},
	}
}

// byteScalar stores a byte in a 16-bit column.
var byteScalar = &scalar{
	canon: reflect.TypeOf(uint8(0)),
	decode: func(src any) (any, error) {
		var n sql.NullInt16
		if err := n.Scan(src); err != nil {
			return nil, err
		}
		return uint8(n.Int16), nil
	},
	encode: func(v any) any { return int16(v.(uint8)) },
	null:   sql.NullInt16{},
}

var charScalar = &scalar{
	canon: reflect.TypeOf(Char(0)),
	decode: func(src any) (any, error) {
		var n sql.NullString
		if err := n.Scan(src); err != nil {
			return nil, err
		}
		r, _ := utf8.DecodeRuneInString(n.String)
		if r == utf8.RuneError {
			return Char(0), nil
		}
		return Char(r), nil
	},
	encode: func(v any) any { return string(rune(v.(Char))) },
	null:   sql.NullString{},
}

var decimalScalar = &scalar{
	canon: reflect.TypeOf(decimal.Decimal{}),
	decode: func(src any) (any, error) {
		var d decimal.NullDecimal
		if err := d.Scan(src); err != nil {
			return nil, err
		}
		return d.Decimal, nil
	},
	encode: passthrough,
	null:   decimal.NullDecimal{},
}

var timeScalar = &scalar{
	canon: reflect.TypeOf(time.Time{}),
	decode: func(src any) (any, error) {
		switch src := src.(type) {
		case time.Time:
			return src, nil
		case string:
			return parseTimestamp(src)
		case []byte:
			return parseTimestamp(string(src))
		}
		return nil, fmt.Errorf("unsupported timestamp source %T", src)
	},
	encode: passthrough,
	null:   sql.NullTime{},
}

var dateScalar = &scalar{
	canon: reflect.TypeOf(civil.Date{}),
	decode: func(src any) (any, error) {
		switch src := src.(type) {
		case time.Time:
			return civil.DateOf(src), nil
		case string:
			return parseDate(src)
		case []byte:
			return parseDate(string(src))
		}
		return nil, fmt.Errorf("unsupported date source %T", src)
	},
	encode: func(v any) any { return v.(civil.Date).String() },
	null:   sql.NullString{},
}

var clockScalar = &scalar{
	canon: reflect.TypeOf(civil.Time{}),
	decode: func(src any) (any, error) {
		switch src := src.(type) {
		case time.Time:
			return civil.TimeOf(src), nil
		case string:
			return civil.ParseTime(strings.TrimSpace(src))
		case []byte:
			return civil.ParseTime(strings.TrimSpace(string(src)))
		}
		return nil, fmt.Errorf("unsupported time source %T", src)
	},
	encode: func(v any) any { return v.(civil.Time).String() },
	null:   sql.NullString{},
}

// timestampLayouts are tried in order when a timestamp arrives as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", s)
}

// parseDate accepts a bare date or the date part of a timestamp.
func parseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	return civil.ParseDate(s)
}

// builtinScalars are matched by exact type.
func builtinScalars() map[reflect.Type]Marshaler {
	ms := []*scalar{
		basic[string](),
		basic[int](),
		basic[int8](),
		basic[int16](),
		basic[int32](),
		basic[int64](),
		basic[float32](),
		basic[float64](),
		basic[bool](),
		basic[[]byte](),
		byteScalar,
		charScalar,
		decimalScalar,
		timeScalar,
		dateScalar,
		clockScalar,
	}
	scalars := make(map[reflect.Type]Marshaler, len(ms))
	for _, m := range ms {
		scalars[m.canon] = m
	}
	return scalars
}

// kindScalars serve named types declared over a basic kind.
func kindScalars(scalars map[reflect.Type]Marshaler) map[reflect.Kind]Marshaler {
	kinds := map[reflect.Kind]Marshaler{}
	for t, m := range scalars {
		if t.PkgPath() == "" && t.Kind() != reflect.Slice {
			kinds[t.Kind()] = m
		}
	}
	return kinds
}
