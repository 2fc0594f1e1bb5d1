// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/sqlbind/internal/marshal"
	"github.com/canonical/sqlbind/internal/typeinfo"
)

// ErrRowMapping is wrapped by errors raised while mapping a row to a value.
var ErrRowMapping = errors.New("cannot map row")

// Columns holds the column names of a result set and an index to look them
// up ignoring case. The first of several equal names wins.
type Columns struct {
	Names []string
	index map[string]int
}

func NewColumns(names []string) *Columns {
	cs := &Columns{Names: names, index: make(map[string]int, len(names))}
	for i, name := range names {
		key := strings.ToLower(name)
		if _, ok := cs.index[key]; !ok {
			cs.index[key] = i
		}
	}
	return cs
}

// Lookup returns the position of the named column.
func (cs *Columns) Lookup(name string) (int, bool) {
	i, ok := cs.index[strings.ToLower(name)]
	return i, ok
}

// Row is one fetched row. It implements marshal.Row.
type Row struct {
	Columns *Columns
	Values  []any
}

func (r *Row) NumColumns() int {
	return len(r.Values)
}

func (r *Row) Column(index int) any {
	if index < 0 || index >= len(r.Values) {
		return nil
	}
	return r.Values[index]
}

// Materialize builds a value of type t from row. Types with a codec are
// decoded from the single column of the row. Other types are constructed
// following their plan: constructor arguments first, then properties.
// Columns the plan does not mention are ignored and properties without a
// column keep the value given by the constructor.
//
// The types involved must have been registered with reg.
func Materialize(reg *marshal.Registry, plans *typeinfo.Plans, t reflect.Type, row *Row) (reflect.Value, error) {
	if m := reg.Find(t); m != nil {
		if row.NumColumns() != 1 {
			return reflect.Value{}, fmt.Errorf("%w: %s is a single value but the row has %d columns", ErrRowMapping, t, row.NumColumns())
		}
		v, err := m.Decode(t, row, 0)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: column %q: %w", ErrRowMapping, row.Columns.Names[0], err)
		}
		return v, nil
	}

	if t.Kind() == reflect.Pointer {
		v, err := Materialize(reg, plans, t.Elem(), row)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, nil
	}

	plan, err := plans.Get(t)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %w", ErrRowMapping, err)
	}

	args := make([]reflect.Value, len(plan.Args))
	for i, a := range plan.Args {
		idx, ok := row.Columns.Lookup(a.Column)
		if !ok {
			args[i] = reflect.Zero(a.Type)
			continue
		}
		args[i], err = reg.Lookup(a.Type).Decode(a.Type, row, idx)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: column %q: %w", ErrRowMapping, a.Column, err)
		}
	}
	v, err := plan.New(args)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %w", ErrRowMapping, err)
	}

	for _, p := range plan.Props {
		idx, ok := row.Columns.Lookup(p.Column)
		if !ok {
			continue
		}
		pv, err := reg.Lookup(p.Type).Decode(p.Type, row, idx)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: column %q: %w", ErrRowMapping, p.Column, err)
		}
		if err := p.Set(v, pv); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %w", ErrRowMapping, err)
		}
	}
	return v, nil
}
