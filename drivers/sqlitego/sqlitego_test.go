package sqlitego_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlbind"
	"github.com/canonical/sqlbind/drivers/sqlitego"
)

type Task struct {
	ID    int64  `db:"id"`
	Title string `db:"title"`
	Done  bool   `db:"done"`
}

type TaskDAO struct {
	Add     func(ctx context.Context, t Task) error               `sql:"insert into tasks (id, title, done) values (:t.id, :t.title, :t.done)" args:"t"`
	Finish  func(ctx context.Context, id int64) (int64, error)    `sql:"update tasks set done = 1 where id = :id" args:"id" opts:"count"`
	Pending func(ctx context.Context) ([]Task, error)             `sql:"select id, title, done from tasks where not done order by id"`
	First   func(ctx context.Context) ([1]Task, error)            `sql:"select id, title, done from tasks order by id"`
}

func TestDialect(t *testing.T) {
	d, ok := sqlbind.DialectFor(sqlitego.DriverName)
	require.True(t, ok)
	assert.Equal(t, sqlbind.SQLite, d)

	db, err := sqlitego.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, sqlbind.SQLite, db.Dialect())
}

func TestTasks(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitego.Open(":memory:", sqlbind.WithRegistry(sqlbind.NewRegistry()))
	require.NoError(t, err)
	defer db.Close()
	h, err := db.Handle(ctx)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Exec(ctx, "create table tasks (id integer primary key, title text, done boolean)")
	require.NoError(t, err)
	var dao TaskDAO
	require.NoError(t, h.Attach(&dao))
	require.NoError(t, dao.Add(ctx, Task{ID: 1, Title: "write"}))
	require.NoError(t, dao.Add(ctx, Task{ID: 2, Title: "review"}))
	require.NoError(t, h.Commit(ctx))

	sp, err := h.Savepoint(ctx)
	require.NoError(t, err)
	n, err := dao.Finish(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	pending, err := dao.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Task{{ID: 2, Title: "review"}}, pending)

	require.NoError(t, h.RollbackToSavepoint(ctx, sp))
	pending, err = dao.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	first, err := dao.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, [1]Task{{ID: 1, Title: "write"}}, first)
}
