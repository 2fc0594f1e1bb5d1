// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package marshal

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"
)

// nullable wraps the codec of T to serve *T.
type nullable struct {
	elem Marshaler
}

func (m nullable) Decode(t reflect.Type, row Row, index int) (reflect.Value, error) {
	if row.Column(index) == nil {
		return reflect.Zero(t), nil
	}
	v, err := m.elem.Decode(t.Elem(), row, index)
	if err != nil {
		return reflect.Value{}, err
	}
	p := reflect.New(t.Elem())
	p.Elem().Set(v)
	return p, nil
}

func (m nullable) Encode(t reflect.Type, stmt Statement, index int, v reflect.Value) error {
	if isNull(v) {
		return m.elem.Encode(t.Elem(), stmt, index, reflect.Value{})
	}
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return m.elem.Encode(t.Elem(), stmt, index, v)
}

// enumCodec serves types implementing Enum.
type enumCodec struct{}

func (enumCodec) Decode(t reflect.Type, row Row, index int) (reflect.Value, error) {
	src := row.Column(index)
	if src == nil {
		return reflect.Zero(t), nil
	}
	var text sql.NullString
	if err := text.Scan(src); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: column %d into %s: %s", ErrMarshal, index, t, err)
	}
	for _, member := range enumMembers(t) {
		if matchesMember(member, text.String) {
			mv := reflect.ValueOf(member)
			if mv.Type() != t {
				if !mv.Type().ConvertibleTo(t) {
					break
				}
				mv = mv.Convert(t)
			}
			return mv, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: column %d: no member of %s matches %q", ErrMarshal, index, t, text.String)
}

func (enumCodec) Encode(t reflect.Type, stmt Statement, index int, v reflect.Value) error {
	v = indirect(v)
	if isNull(v) {
		stmt.SetArg(index, nil)
		return nil
	}
	stmt.SetArg(index, v.Interface())
	return nil
}

func enumMembers(t reflect.Type) []any {
	if t.Implements(enumType) {
		return reflect.Zero(t).Interface().(Enum).EnumMembers()
	}
	return reflect.New(t).Interface().(Enum).EnumMembers()
}

// matchesMember compares the text of a column with a member. Integer members
// also match their numeric text since drivers store them as numbers.
func matchesMember(member any, text string) bool {
	if fmt.Sprint(member) == text {
		return true
	}
	mv := reflect.ValueOf(member)
	switch mv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(mv.Int(), 10) == text
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(mv.Uint(), 10) == text
	}
	return false
}

// Array is the driver argument bound for arrays and collections. It renders
// a backend array literal and carries the backend name of its element type.
type Array struct {
	ElemType string
	Elems    []any
}

// Value implements driver.Valuer.
func (a Array) Value() (driver.Value, error) {
	return pq.GenericArray{A: a.Elems}.Value()
}

var (
	charType  = reflect.TypeOf(Char(0))
	dateType  = reflect.TypeOf(civil.Date{})
	clockType = reflect.TypeOf(civil.Time{})
	timeType  = reflect.TypeOf(time.Time{})
)

// ArrayTypeName returns the backend name of an array element type.
func ArrayTypeName(t reflect.Type) (string, bool) {
	switch t {
	case charType:
		return "char", true
	case dateType:
		return "date", true
	case clockType:
		return "time", true
	case timeType:
		return "timestamp", true
	}
	switch t.Kind() {
	case reflect.Int32:
		return "int", true
	case reflect.Int, reflect.Int64:
		return "bigint", true
	case reflect.Float64:
		return "float8", true
	case reflect.Float32:
		return "float", true
	case reflect.Int16, reflect.Int8, reflect.Uint8:
		return "smallint", true
	case reflect.Bool:
		return "boolean", true
	case reflect.String:
		return "varchar", true
	}
	return "", false
}

// collectionCodec serves slices, fixed size arrays and sets. Elements go
// through the codec of the element type.
type collectionCodec struct {
	reg *Registry
}

// elemType returns the element type of a collection type.
func elemType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Map {
		return t.Key()
	}
	return t.Elem()
}

func (m collectionCodec) Decode(t reflect.Type, row Row, index int) (reflect.Value, error) {
	src := row.Column(index)
	if src == nil {
		return reflect.Zero(t), nil
	}
	var texts []sql.NullString
	if err := (pq.GenericArray{A: &texts}).Scan(src); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: column %d into %s: %s", ErrMarshal, index, t, err)
	}
	et := elemType(t)
	em := m.reg.Lookup(et)
	elems := make([]reflect.Value, len(texts))
	for i, text := range texts {
		var raw Values
		if text.Valid {
			raw = Values{text.String}
		} else {
			raw = Values{nil}
		}
		ev, err := em.Decode(et, raw, 0)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		elems[i] = ev
	}

	switch t.Kind() {
	case reflect.Slice:
		s := reflect.MakeSlice(t, len(elems), len(elems))
		for i, ev := range elems {
			s.Index(i).Set(ev)
		}
		return s, nil
	case reflect.Array:
		a := reflect.New(t).Elem()
		for i := 0; i < len(elems) && i < t.Len(); i++ {
			a.Index(i).Set(elems[i])
		}
		return a, nil
	default:
		set := reflect.MakeMapWithSize(t, len(elems))
		member := setMember(t)
		for _, ev := range elems {
			set.SetMapIndex(ev, member)
		}
		return set, nil
	}
}

func (m collectionCodec) Encode(t reflect.Type, stmt Statement, index int, v reflect.Value) error {
	v = indirect(v)
	if isNull(v) {
		stmt.SetArg(index, nil)
		return nil
	}
	et := elemType(t)
	base := et
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	name, ok := ArrayTypeName(base)
	if !ok {
		return fmt.Errorf("%w: argument %d: no array element type for %s", ErrMarshal, index, et)
	}
	em := m.reg.Lookup(et)

	var elems []reflect.Value
	if v.Kind() == reflect.Map {
		elems = v.MapKeys()
		sort.Slice(elems, func(i, j int) bool {
			return fmt.Sprint(elems[i].Interface()) < fmt.Sprint(elems[j].Interface())
		})
	} else {
		elems = make([]reflect.Value, v.Len())
		for i := range elems {
			elems[i] = v.Index(i)
		}
	}

	arr := Array{ElemType: name, Elems: make([]any, len(elems))}
	for i, ev := range elems {
		var out Values
		if err := em.Encode(et, &out, 0, ev); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		elem := out.Column(0)
		// Timestamps are quoted as text so the literal survives whitespace.
		if ts, ok := elem.(time.Time); ok {
			elem = ts.Format(time.RFC3339Nano)
		}
		arr.Elems[i] = elem
	}
	stmt.SetArg(index, arr)
	return nil
}

// setMember returns the value stored against each key of a set.
func setMember(t reflect.Type) reflect.Value {
	if t.Elem().Kind() == reflect.Bool {
		return reflect.ValueOf(true).Convert(t.Elem())
	}
	return reflect.Zero(t.Elem())
}

// isSet reports whether t is a map used as a set.
func isSet(t reflect.Type) bool {
	if t.Kind() != reflect.Map {
		return false
	}
	e := t.Elem()
	return e.Kind() == reflect.Bool || (e.Kind() == reflect.Struct && e.NumField() == 0)
}
