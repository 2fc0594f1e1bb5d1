// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/sqlbind/internal/marshal"
	"github.com/canonical/sqlbind/internal/parse"
	"github.com/canonical/sqlbind/internal/typeinfo"
)

// ErrBinding is wrapped by errors raised while binding placeholders to
// arguments.
var ErrBinding = errors.New("cannot bind parameter")

// boundParam is a placeholder bound to a declared argument.
type boundParam struct {
	// name is the placeholder name as written in the query.
	name string
	// arg is the index of the declared argument.
	arg int
	// path is the property path following the argument name.
	path []string
	// static is the deepest type of the path resolvable from the declared
	// type of the argument.
	static reflect.Type
}

// TypeBoundQuery is a compiled query whose placeholders are bound to the
// declared arguments of an operation.
type TypeBoundQuery struct {
	query    *parse.CompiledQuery
	argNames []string
	argTypes []reflect.Type
	params   []boundParam
	reg      *marshal.Registry
}

// Query returns the compiled query.
func (tbq *TypeBoundQuery) Query() *parse.CompiledQuery {
	return tbq.query
}

// ParamTypes returns, for each placeholder, the type of the value it binds
// as far as it is known before a call.
func (tbq *TypeBoundQuery) ParamTypes() []reflect.Type {
	ts := make([]reflect.Type, len(tbq.params))
	for i, p := range tbq.params {
		ts[i] = p.static
	}
	return ts
}

// BindTypes binds every placeholder of cq to one of the declared arguments.
// argNames and argTypes describe the arguments in declaration order. The
// argument types are registered with reg.
func BindTypes(cq *parse.CompiledQuery, argNames []string, argTypes []reflect.Type, reg *marshal.Registry) (tbq *TypeBoundQuery, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrBinding, err)
		}
	}()

	if len(argNames) != len(argTypes) {
		return nil, fmt.Errorf("internal error: %d argument names for %d argument types", len(argNames), len(argTypes))
	}
	for i, name := range argNames {
		for _, other := range argNames[:i] {
			if name == other {
				return nil, fmt.Errorf("argument name %q declared more than once", name)
			}
		}
	}
	for _, t := range argTypes {
		reg.Register(t)
	}

	tbq = &TypeBoundQuery{
		query:    cq,
		argNames: argNames,
		argTypes: argTypes,
		reg:      reg,
	}
	for _, p := range cq.Params {
		segments := typeinfo.SplitPath(p.Name)
		arg := -1
		for i, name := range argNames {
			if name == segments[0] {
				arg = i
				break
			}
		}
		if arg == -1 {
			return nil, argumentMissingError(p.Name, argNames)
		}

		bp := boundParam{
			name:   p.Name,
			arg:    arg,
			path:   segments[1:],
			static: argTypes[arg],
		}
		if len(bp.path) > 0 {
			last, _, err := typeinfo.ResolvePath(argTypes[arg], bp.path)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
			}
			bp.static = last
			reg.Register(last)
		}
		tbq.params = append(tbq.params, bp)
	}
	return tbq, nil
}

// argumentMissingError lists the declared arguments a placeholder could
// have referred to.
func argumentMissingError(param string, argNames []string) error {
	if len(argNames) == 0 {
		return fmt.Errorf("parameter %q does not match any argument (have none)", param)
	}
	// "%s" is used instead of %q to correctly print double quotes within the joined string.
	return fmt.Errorf(`parameter %q does not match any argument (have "%s")`, param, strings.Join(argNames, `", "`))
}
