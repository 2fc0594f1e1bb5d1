package sqlbind

import (
	"context"
	"reflect"

	"github.com/canonical/sqlbind/internal/parse"
)

// adhocQuery holds the settings of queries run with Query: forward only,
// closing rows and statement at the end.
var adhocQuery = &parse.CompiledQuery{AutoCloseResult: true, AutoCloseStatement: true}

// Query runs a query with positional "?" arguments in the current
// transaction of h and returns an iterator materializing each row as a T.
// Arguments are encoded with the codec of their type.
func Query[T any](ctx context.Context, h *Handle, query string, args ...any) (it *Iter[T], err error) {
	const op = "Query"
	defer func() {
		err = queryError(op, err)
	}()
	if ctx == nil {
		ctx = context.Background()
	}

	t := reflect.TypeFor[T]()
	h.db.reg.marshal.Register(t)
	params, err := h.encodeArgs(args)
	if err != nil {
		return nil, err
	}
	if err := h.ensureTx(ctx); err != nil {
		return nil, err
	}
	stmt, owned, err := h.prepare(ctx, query, false)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, params...)
	if err != nil {
		closeLogged(h.logger, stmt, "cannot close statement")
		return nil, err
	}
	c, err := newCursor(h, t, adhocQuery, rows, stmt, owned)
	if err != nil {
		closeLogged(h.logger, stmt, "cannot close statement")
		return nil, err
	}
	return &Iter[T]{c: c, op: op}, nil
}
