// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlbind

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/canonical/sqlbind/internal/expr"
	"github.com/canonical/sqlbind/internal/parse"
)

var errIterClosed = errors.New("iterator is closed")

type cursorState int

const (
	fresh cursorState = iota
	inProgress
	exhausted
	closed
)

// cursor walks the rows of a query and materializes each of them as a value
// of type t. It is the untyped core of Iter and of the eager result shapes.
type cursor struct {
	// h tracks the cursor until it has released its rows and statement.
	h      *Handle
	reg    *Registry
	logger zerolog.Logger
	t      reflect.Type

	rows *sql.Rows
	cols *expr.Columns
	// stmt is closed with the cursor when owned is set.
	stmt  *sql.Stmt
	owned bool

	scroll             bool
	autoCloseResult    bool
	autoCloseStatement bool

	state cursorState
	// rowsDone is set once rows has reported its end.
	rowsDone bool
	// seen holds the values decoded so far by scroll insensitive cursors.
	seen []reflect.Value
	// pos is the index in seen of the next value to replay.
	pos int
	cur reflect.Value
	err error
}

func newCursor(h *Handle, t reflect.Type, cq *parse.CompiledQuery, rows *sql.Rows, stmt *sql.Stmt, owned bool) (*cursor, error) {
	names, err := rows.Columns()
	if err != nil {
		closeLogged(h.logger, rows, "cannot close rows")
		return nil, err
	}
	c := &cursor{
		h:                  h,
		reg:                h.db.reg,
		logger:             h.logger,
		t:                  t,
		rows:               rows,
		cols:               expr.NewColumns(names),
		stmt:               stmt,
		owned:              owned,
		scroll:             cq.Scroll == parse.ScrollInsensitive,
		autoCloseResult:    cq.AutoCloseResult,
		autoCloseStatement: cq.AutoCloseStatement,
	}
	h.cursors[c] = struct{}{}
	return c, nil
}

func (c *cursor) next() bool {
	if c.state == closed || c.err != nil {
		return false
	}
	c.state = inProgress
	if c.pos < len(c.seen) {
		c.cur = c.seen[c.pos]
		c.pos++
		return true
	}
	if c.rowsDone {
		c.state = exhausted
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.rowsDone = true
		c.state = exhausted
		c.finish()
		return false
	}
	v, err := c.decode()
	if err != nil {
		c.err = err
		return false
	}
	if c.scroll {
		c.seen = append(c.seen, v)
		c.pos++
	}
	c.cur = v
	return true
}

// decode materializes the current row. A panicking codec or constructor is
// reported as an error.
func (c *cursor) decode() (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	values := make([]any, len(c.cols.Names))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return reflect.Value{}, err
	}
	return expr.Materialize(c.reg.marshal, c.reg.plans, c.t, &expr.Row{Columns: c.cols, Values: values})
}

// finish releases what the auto-close settings say should go once the rows
// are exhausted. It runs once.
func (c *cursor) finish() {
	if c.autoCloseResult {
		if err := c.rows.Close(); err != nil && c.err == nil {
			c.err = err
		}
	}
	if c.autoCloseStatement && c.owned {
		closeLogged(c.logger, c.stmt, "cannot close statement")
		c.owned = false
	}
	if !c.owned {
		delete(c.h.cursors, c)
	}
}

func (c *cursor) reset() error {
	switch {
	case c.state == closed:
		return errIterClosed
	case !c.scroll && c.state != fresh:
		return ErrForwardOnly
	}
	c.pos = 0
	c.cur = reflect.Value{}
	if c.state == exhausted {
		c.state = fresh
	}
	return nil
}

func (c *cursor) close() error {
	if c.state == closed {
		return c.err
	}
	c.state = closed
	c.seen = nil
	c.cur = reflect.Value{}
	delete(c.h.cursors, c)
	err := c.rows.Close()
	if c.owned {
		closeLogged(c.logger, c.stmt, "cannot close statement")
		c.owned = false
	}
	if c.err != nil {
		return c.err
	}
	return err
}

// Iter iterates over the results of a query, one value per row. Rows are
// fetched and decoded as the iteration advances. An Iter must be closed
// unless it is read to the end. Closing its Handle closes it too.
//
// An Iter follows the scroll mode of its query: forward only iterators
// cannot be restarted, scroll insensitive ones keep the decoded values so
// that Reset replays them.
type Iter[T any] struct {
	c   *cursor
	op  string
	err error
}

// iterator is implemented by every *Iter[T]. It lets operations returning an
// Iter fill one in through reflection.
type iterator interface {
	bind(c *cursor, op string)
	elemType() reflect.Type
}

func (it *Iter[T]) bind(c *cursor, op string) {
	it.c, it.op = c, op
}

func (*Iter[T]) elemType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Next advances to the next value. It returns false at the end of the
// results or on error, see Err.
func (it *Iter[T]) Next() bool {
	if it.err != nil || it.c == nil {
		return false
	}
	if it.c.next() {
		return true
	}
	if it.c.err != nil {
		it.err = queryError(it.op, it.c.err)
	}
	return false
}

// Value returns the value produced by the last call to Next.
func (it *Iter[T]) Value() T {
	var v T
	if it.c != nil && it.c.cur.IsValid() {
		reflect.ValueOf(&v).Elem().Set(it.c.cur)
	}
	return v
}

// Err returns the error that stopped the iteration, if any.
func (it *Iter[T]) Err() error {
	return it.err
}

// Close releases the rows and statement of the iterator. It returns the
// error that stopped the iteration, if any. Closing twice is harmless.
func (it *Iter[T]) Close() error {
	if it.c == nil {
		return it.err
	}
	if err := it.c.close(); err != nil && it.err == nil {
		it.err = queryError(it.op, err)
	}
	return it.err
}

// Reset moves a scroll insensitive iterator back before its first value.
// Forward only iterators can only be reset before they start.
func (it *Iter[T]) Reset() error {
	if it.c == nil {
		return it.err
	}
	return it.c.reset()
}

// All returns a sequence over the remaining values. An error ends the
// sequence with a zero value and the error. The iterator is closed when the
// sequence ends or the loop breaks.
func (it *Iter[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect reads the remaining values into a slice and closes the iterator.
func (it *Iter[T]) Collect() ([]T, error) {
	var vs []T
	for it.Next() {
		vs = append(vs, it.Value())
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return vs, nil
}
