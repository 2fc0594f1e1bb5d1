// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"

	"github.com/canonical/sqlbind/internal/marshal"
	"github.com/canonical/sqlbind/internal/typeinfo"
)

// PrimedQuery contains the SQL and the positional driver arguments of one
// execution.
type PrimedQuery struct {
	SQL    string
	Params []any
}

// BindInputs takes the argument values of a call, in declaration order, and
// returns the PrimedQuery ready for use with the database.
func (tbq *TypeBoundQuery) BindInputs(args []reflect.Value) (pq *PrimedQuery, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("invalid input parameter: %w", err)
		}
	}()

	if len(args) != len(tbq.argTypes) {
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", ErrBinding, len(tbq.argTypes), len(args))
	}

	params := make(marshal.Values, 0, len(tbq.params))
	for i, p := range tbq.params {
		v, t := args[p.arg], tbq.argTypes[p.arg]
		if len(p.path) > 0 {
			v, t, err = typeinfo.Locate(v, t, p.path)
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %q: %w", ErrBinding, p.name, err)
			}
		}
		v, t = concrete(v, t)
		if err := tbq.reg.Lookup(t).Encode(t, &params, i, v); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.name, err)
		}
	}
	return &PrimedQuery{SQL: tbq.query.SQL, Params: params}, nil
}

// concrete replaces an interface type with the dynamic type of the value it
// holds. A nil interface becomes an invalid value, which encodes NULL.
func concrete(v reflect.Value, t reflect.Type) (reflect.Value, reflect.Type) {
	if t.Kind() != reflect.Interface {
		return v, t
	}
	if v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, t
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return v, t
	}
	return v, v.Type()
}
