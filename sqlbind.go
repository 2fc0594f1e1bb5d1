// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlbind

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/canonical/sqlbind/internal/marshal"
	"github.com/canonical/sqlbind/internal/typeinfo"
)

type (
	// Marshaler converts between a Go type and its database representation.
	Marshaler = marshal.Marshaler
	// Row is the view of a fetched row handed to a Marshaler.
	Row = marshal.Row
	// Statement is the view of a statement's arguments handed to a Marshaler.
	Statement = marshal.Statement
	// Provider is implemented by types that bring their own Marshaler.
	Provider = marshal.Provider
	// Enum is implemented by types with a closed set of members.
	Enum = marshal.Enum
	// Char is a single character stored as text.
	Char = marshal.Char
	// Array is the driver value of an encoded collection.
	Array = marshal.Array
)

// Registry holds the codecs, construction plans and operation tables shared
// by the handles of one or more databases. It is safe for concurrent use.
type Registry struct {
	marshal *marshal.Registry
	plans   *typeinfo.Plans
	ops     *opCache
}

func NewRegistry() *Registry {
	return &Registry{
		marshal: marshal.NewRegistry(),
		plans:   typeinfo.NewPlans(),
		ops:     newOpCache(),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry used by databases created without
// WithRegistry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// SetMarshaler associates m with the type of sample. It overrides any codec
// the type would otherwise get.
func (r *Registry) SetMarshaler(sample any, m Marshaler) {
	r.marshal.Set(reflect.TypeOf(sample), m)
}

// Register discovers the codecs of the type of sample, of its fields and of
// its elements. Types used by operations are registered automatically.
func (r *Registry) Register(sample any) {
	r.marshal.Register(reflect.TypeOf(sample))
}

// Designate makes fn the constructor used to build its result type from a
// row. columns names the column feeding each parameter of fn. It must be
// called before the type is first materialized.
func (r *Registry) Designate(fn any, columns ...string) error {
	return r.plans.Designate(fn, columns...)
}

// DB wraps a sql.DB and hands out session handles.
type DB struct {
	sqldb   *sql.DB
	dialect Dialect
	reg     *Registry
	logger  zerolog.Logger
}

type options struct {
	logger     zerolog.Logger
	registry   *Registry
	dialect    Dialect
	hasDialect bool
}

// Option configures a DB.
type Option func(*options)

// WithLogger sets the logger of the DB and its handles.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry makes the DB share r instead of the default registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithDialect overrides the dialect found from the driver.
func WithDialect(d Dialect) Option {
	return func(o *options) {
		o.dialect = d
		o.hasDialect = true
	}
}

// NewDB creates a new DB from a sql.DB. Unless WithDialect is given, the
// dialect is the one registered for the driver of sqldb, defaulting to
// SQLite.
func NewDB(sqldb *sql.DB, opts ...Option) *DB {
	if sqldb == nil {
		return nil
	}
	o := options{logger: zerolog.Nop(), registry: defaultRegistry}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.hasDialect {
		var ok bool
		if o.dialect, ok = dialectOf(sqldb.Driver()); !ok {
			o.dialect = SQLite
		}
	}
	logger := o.logger.With().Str("component", "sqlbind").Str("dialect", o.dialect.Name).Logger()
	return &DB{sqldb: sqldb, dialect: o.dialect, reg: o.registry, logger: logger}
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) Registry() *Registry {
	return db.reg
}

// Handle takes a connection from the pool and returns a session handle on
// it. The handle must be closed to give the connection back.
func (db *DB) Handle(ctx context.Context) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := db.sqldb.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return newHandle(db, conn), nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.sqldb.Close()
}
