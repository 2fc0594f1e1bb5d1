/*
Package sqlbind binds SQL queries to Go functions.

A data access object is a struct whose func fields carry a query in a `sql`
tag. Attaching the struct to a Handle fills each of those fields with a
function that runs the query in the current transaction of the handle and
returns its rows in the shape of the function's result type.

# Declaring operations

Given the tagged struct "Person":

	type Person struct {
		Name string `db:"name"`
		ID   int    `db:"id"`
		Team string `db:"team"`
	}

operations are declared as:

	type PersonDAO struct {
		Add    func(ctx context.Context, p Person) error             `sql:"INSERT INTO person (name, id, team) VALUES (:p.name, :p.id, :p.team)" args:"p"`
		ByTeam func(ctx context.Context, team string) ([]Person, error) `sql:"SELECT * FROM person WHERE team = :team" args:"team"`
	}

The `args` tag names the parameters of the function, after an optional
leading context.Context. A placeholder is a colon followed by an argument
name and, for struct arguments, a dotted path through `db` tags or field
names. A nil pointer along the path binds NULL. A double colon is left
alone, so casts such as "x::text" keep working.

The `opts` tag is a comma separated list of:

  - scroll: iterators keep the rows they have read and can be Reset.
  - count: the function returns the number of affected rows.
  - keepstmt: the statement stays prepared on the handle until it closes.

# Results

The function must return error or (T, error). T selects how rows are
returned:

  - no result: the statement is executed and its rows discarded.
  - int or int64 with the count option: the number of affected rows.
  - []T: every row.
  - map[T]struct{} or map[T]bool: the set of rows. T cannot be a pointer.
  - [N]T: the first N rows.
  - *Iter[T]: the rows are read lazily as the iterator advances.
  - anything else: the first row, or the zero value when there is none.

A row becomes a T through the codec registered for T. Scalars, enums,
decimals, civil dates and times, arrays and collections have built-in
codecs. A struct is filled by matching column names with its `db` tags and
field names, or built by a constructor designated with Registry.Designate.

# Transactions

A Handle owns one connection. The first statement run on it starts a
transaction which lasts until Commit or Rollback, so that operations called
in a row see each other's changes. Savepoints and, on dialects that have
them, session level advisory locks are available on the handle.

Every error returned by an operation is a *QueryError naming the operation.
*/
package sqlbind
