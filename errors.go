// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlbind

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/canonical/sqlbind/internal/expr"
	"github.com/canonical/sqlbind/internal/marshal"
	"github.com/canonical/sqlbind/internal/parse"
)

var (
	// ErrCompile is returned for query templates that cannot be compiled.
	ErrCompile = parse.ErrCompile
	// ErrBinding is returned when a placeholder does not resolve against the
	// arguments of an operation.
	ErrBinding = expr.ErrBinding
	// ErrMarshal is returned when a value cannot be converted to or from its
	// database representation.
	ErrMarshal = marshal.ErrMarshal
	// ErrRowMapping is returned when a row cannot be turned into the result
	// type.
	ErrRowMapping = expr.ErrRowMapping
	// ErrQuery is wrapped by every error returned from an operation call.
	ErrQuery = errors.New("cannot run query")
	// ErrTransaction is returned for invalid transaction control.
	ErrTransaction = errors.New("transaction error")
	// ErrLock is returned when an advisory lock cannot be taken or released.
	ErrLock = errors.New("lock error")
	// ErrForwardOnly is returned when a forward only iterator is restarted.
	ErrForwardOnly = errors.New("iterator is forward only")
	// ErrNoRows is an alias for sql.ErrNoRows.
	ErrNoRows = sql.ErrNoRows
)

// QueryError is returned by operation calls. It names the operation and
// wraps the cause, so that errors.Is(err, ErrQuery) holds for every failed
// call along with the test for the cause.
type QueryError struct {
	// Op is the name of the operation.
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrQuery, e.Op, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQuery, e.Err}
}

func queryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) && qe.Op == op {
		return err
	}
	return &QueryError{Op: op, Err: err}
}
