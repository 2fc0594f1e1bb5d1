// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlbind

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/canonical/sqlbind/internal/expr"
	"github.com/canonical/sqlbind/internal/parse"
)

var (
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	iteratorType = reflect.TypeOf((*iterator)(nil)).Elem()
	bytesType    = reflect.TypeOf([]byte(nil))
)

// shape is the way the results of an operation are handed to its caller.
type shape int

const (
	// shapeNone discards the results.
	shapeNone shape = iota
	// shapeCount returns the number of affected rows.
	shapeCount
	// shapeSingle returns the first row, or the zero value.
	shapeSingle
	shapeList
	shapeSet
	// shapeArray returns up to as many rows as the array holds.
	shapeArray
	// shapeIter returns an Iter reading the rows lazily.
	shapeIter
)

// operation is a func field of a struct bound to a query template.
type operation struct {
	// name identifies the operation in errors and logs.
	name   string
	index  []int
	fn     reflect.Type
	hasCtx bool
	query  *expr.TypeBoundQuery
	shape  shape
	// result is the first result type of fn, if it has two.
	result reflect.Type
	// elem is the type each row is materialized as.
	elem reflect.Type
}

// buildOperations registers the operations declared by the func fields of
// struct type t. A field declares an operation when it has a `sql` tag. The
// `args` tag names the parameters of the function following an optional
// leading context.Context and the `opts` tag holds a comma separated list
// among scroll, count and keepstmt.
//
// Any error aborts the registration of the whole type.
func (r *Registry) buildOperations(t reflect.Type) ([]*operation, error) {
	var ops []*operation
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		template, ok := f.Tag.Lookup("sql")
		if !ok {
			continue
		}
		op, err := r.newOperation(t, f, template)
		if err != nil {
			return nil, fmt.Errorf("cannot register operation %s.%s: %w", t.Name(), f.Name, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (r *Registry) newOperation(t reflect.Type, f reflect.StructField, template string) (*operation, error) {
	if !f.IsExported() {
		return nil, fmt.Errorf("field is not exported")
	}
	ft := f.Type
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("need func field, got %s", ft)
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic functions are not supported")
	}

	opts, err := parseOpts(f.Tag.Get("opts"))
	if err != nil {
		return nil, err
	}
	cq, err := parse.Compile(template, opts)
	if err != nil {
		return nil, err
	}

	op := &operation{
		name:  t.Name() + "." + f.Name,
		index: f.Index,
		fn:    ft,
	}

	var argTypes []reflect.Type
	for i := 0; i < ft.NumIn(); i++ {
		if i == 0 && ft.In(0) == contextType {
			op.hasCtx = true
			continue
		}
		argTypes = append(argTypes, ft.In(i))
	}
	argNames := splitList(f.Tag.Get("args"))
	if len(argNames) != len(argTypes) {
		return nil, fmt.Errorf("args tag names %d arguments but the function takes %d", len(argNames), len(argTypes))
	}

	if err := op.setShape(cq); err != nil {
		return nil, err
	}
	if op.query, err = expr.BindTypes(cq, argNames, argTypes, r.marshal); err != nil {
		return nil, err
	}
	if op.elem != nil {
		r.marshal.Register(op.elem)
	}
	return op, nil
}

// setShape works out the result shape from the signature of the function.
func (op *operation) setShape(cq *parse.CompiledQuery) error {
	ft := op.fn
	switch {
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
		if cq.ReturnUpdateCount {
			return fmt.Errorf("count option needs an (int, error) or (int64, error) result")
		}
		op.shape = shapeNone
		return nil
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return fmt.Errorf("need function returning error or (T, error), got %s", ft)
	}

	rt := ft.Out(0)
	op.result = rt
	if cq.ReturnUpdateCount {
		if rt.Kind() != reflect.Int && rt.Kind() != reflect.Int64 {
			return fmt.Errorf("count option needs an (int, error) or (int64, error) result, got %s", rt)
		}
		op.shape = shapeCount
		return nil
	}

	switch {
	case rt.Implements(iteratorType):
		op.shape = shapeIter
		op.elem = reflect.Zero(rt).Interface().(iterator).elemType()
	case reflect.PointerTo(rt).Implements(iteratorType):
		return fmt.Errorf("need *Iter[T] for an iterator result, got %s", rt)
	case rt.Kind() == reflect.Slice && rt != bytesType:
		op.shape = shapeList
		op.elem = rt.Elem()
	case rt.Kind() == reflect.Map:
		if v := rt.Elem(); !(v.Kind() == reflect.Struct && v.NumField() == 0) && v.Kind() != reflect.Bool {
			return fmt.Errorf("need map[T]struct{} or map[T]bool for a set result, got %s", rt)
		}
		// Pointer keys would compare by address and never merge equal rows.
		if rt.Key().Kind() == reflect.Pointer {
			return fmt.Errorf("need a non-pointer key for a set result, got %s", rt)
		}
		op.shape = shapeSet
		op.elem = rt.Key()
	case rt.Kind() == reflect.Array:
		op.shape = shapeArray
		op.elem = rt.Elem()
	default:
		op.shape = shapeSingle
		op.elem = rt
	}
	return nil
}

func parseOpts(tag string) (parse.Options, error) {
	var opts parse.Options
	for _, opt := range splitList(tag) {
		switch opt {
		case "scroll":
			opts.Scroll = parse.ScrollInsensitive
		case "count":
			opts.ReturnUpdateCount = true
		case "keepstmt":
			opts.KeepStatement = true
		default:
			return opts, fmt.Errorf("unknown option %q in opts tag", opt)
		}
	}
	return opts, nil
}

// splitList splits a comma separated tag value into trimmed, non-empty items.
func splitList(tag string) []string {
	var items []string
	for _, item := range strings.Split(tag, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Attach fills the operation fields of the struct dao points to with
// functions running their query on h. The operations of a struct type are
// registered on first use; if any of them is invalid, no field is filled.
func (h *Handle) Attach(dao any) error {
	v := reflect.ValueOf(dao)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("need non-nil pointer to struct, got %T", dao)
	}
	v = v.Elem()
	reg := h.db.reg
	ops, err := reg.ops.get(v.Type(), reg.buildOperations)
	if err != nil {
		return err
	}
	for _, op := range ops {
		v.FieldByIndex(op.index).Set(reflect.MakeFunc(op.fn, h.caller(op)))
	}
	return nil
}

func (h *Handle) caller(op *operation) func([]reflect.Value) []reflect.Value {
	return func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if op.hasCtx {
			if c, ok := in[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			in = in[1:]
		}
		v, err := h.call(ctx, op, in)
		return op.results(v, err)
	}
}

// results builds the return values of an operation function.
func (op *operation) results(v reflect.Value, err error) []reflect.Value {
	errv := reflect.Zero(errorType)
	if err != nil {
		errv = reflect.ValueOf(&err).Elem()
	}
	if op.shape == shapeNone {
		return []reflect.Value{errv}
	}
	if err != nil || !v.IsValid() {
		v = reflect.Zero(op.result)
	}
	return []reflect.Value{v, errv}
}

// call runs op with the given arguments. Every failure, panics included, is
// reported as a *QueryError.
func (h *Handle) call(ctx context.Context, op *operation, args []reflect.Value) (v reflect.Value, err error) {
	start := time.Now()
	var (
		stmt  *sql.Stmt
		owned bool
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			if owned {
				closeLogged(h.logger, stmt, "cannot close statement")
			}
		}
		err = queryError(op.name, err)
		e := h.logger.Debug()
		if err != nil {
			e = e.Err(err)
		}
		logDuration(e, start).Str("op", op.name).Msg("operation called")
	}()

	pq, err := op.query.BindInputs(args)
	if err != nil {
		return reflect.Value{}, err
	}
	if err := h.ensureTx(ctx); err != nil {
		return reflect.Value{}, err
	}
	cq := op.query.Query()
	stmt, owned, err = h.prepare(ctx, pq.SQL, !cq.AutoCloseStatement)
	if err != nil {
		return reflect.Value{}, err
	}

	if op.shape == shapeNone || op.shape == shapeCount {
		res, err := stmt.ExecContext(ctx, pq.Params...)
		if owned {
			closeLogged(h.logger, stmt, "cannot close statement")
		}
		if err != nil || op.shape == shapeNone {
			return reflect.Value{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(op.result), nil
	}

	rows, err := stmt.QueryContext(ctx, pq.Params...)
	if err != nil {
		if owned {
			closeLogged(h.logger, stmt, "cannot close statement")
		}
		return reflect.Value{}, err
	}
	c, err := newCursor(h, op.elem, cq, rows, stmt, owned)
	if err != nil {
		if owned {
			closeLogged(h.logger, stmt, "cannot close statement")
		}
		return reflect.Value{}, err
	}
	if op.shape == shapeIter {
		it := reflect.New(op.result.Elem())
		it.Interface().(iterator).bind(c, op.name)
		return it, nil
	}

	defer func() {
		if cerr := c.close(); err == nil {
			err = cerr
		}
	}()
	return op.collect(c)
}

// collect reads the rows of c into a value of the result type.
func (op *operation) collect(c *cursor) (reflect.Value, error) {
	switch op.shape {
	case shapeSingle:
		if !c.next() {
			return reflect.Zero(op.result), c.err
		}
		return c.cur, nil
	case shapeList:
		list := reflect.MakeSlice(op.result, 0, 0)
		for c.next() {
			list = reflect.Append(list, c.cur)
		}
		return list, c.err
	case shapeSet:
		set := reflect.MakeMap(op.result)
		member := reflect.Zero(op.result.Elem())
		if op.result.Elem().Kind() == reflect.Bool {
			member = reflect.ValueOf(true).Convert(op.result.Elem())
		}
		for c.next() {
			set.SetMapIndex(c.cur, member)
		}
		return set, c.err
	case shapeArray:
		arr := reflect.New(op.result).Elem()
		for i := 0; i < arr.Len() && c.next(); i++ {
			arr.Index(i).Set(c.cur)
		}
		return arr, c.err
	}
	return reflect.Value{}, fmt.Errorf("internal error: unexpected result shape %d", op.shape)
}
