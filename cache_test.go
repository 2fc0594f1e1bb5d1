// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlbind

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	. "gopkg.in/check.v1"
)

// The suite is run by the hook of the external test package.
type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) TearDownTest(c *C) {
	// Check every test finishes cleanly.
	s.checkDriverStmtsAllClosed(c)
}

type cachedDAO struct {
	Get func() (int64, error) `sql:"select 1"`
}

func (s *CacheSuite) TestOperationsBuiltOnce(c *C) {
	oc := newOpCache()
	t := reflect.TypeOf(cachedDAO{})
	var builds atomic.Int32
	build := func(t reflect.Type) ([]*operation, error) {
		builds.Add(1)
		return []*operation{{name: t.Name() + ".Get"}}, nil
	}

	var wg sync.WaitGroup
	results := make([][]*operation, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ops, err := oc.get(t, build)
			c.Check(err, IsNil)
			results[i] = ops
		}()
	}
	wg.Wait()

	c.Check(builds.Load(), Equals, int32(1))
	for _, ops := range results {
		c.Assert(ops, HasLen, 1)
		c.Check(ops[0], Equals, results[0][0])
	}
}

func (s *CacheSuite) TestFailedBuildCached(c *C) {
	oc := newOpCache()
	t := reflect.TypeOf(cachedDAO{})
	builds := 0
	build := func(reflect.Type) ([]*operation, error) {
		builds++
		return []*operation{{}}, errors.New("bad field")
	}

	for i := 0; i < 2; i++ {
		ops, err := oc.get(t, build)
		c.Check(err, ErrorMatches, "bad field")
		// Operations of a failed build are never handed out.
		c.Check(ops, IsNil)
	}
	c.Check(builds, Equals, 1)
}

func (s *CacheSuite) TestRegistryCachesOperations(c *C) {
	reg := NewRegistry()
	t := reflect.TypeOf(cachedDAO{})
	first, err := reg.ops.get(t, reg.buildOperations)
	c.Assert(err, IsNil)
	second, err := reg.ops.get(t, func(reflect.Type) ([]*operation, error) {
		c.Fatalf("operations built twice")
		return nil, nil
	})
	c.Assert(err, IsNil)
	c.Check(second, DeepEquals, first)
	c.Check(first[0].name, Equals, "cachedDAO.Get")
	c.Check(first[0].shape, Equals, shapeSingle)
}

func (s *CacheSuite) TestKeptStatementReuse(c *C) {
	ctx := context.Background()
	sqldb, err := sql.Open(TrackedDriverName, TrackedDSN(c.TestName()))
	c.Assert(err, IsNil)
	defer sqldb.Close()
	conn, err := sqldb.Conn(ctx)
	c.Assert(err, IsNil)
	defer conn.Close()

	sc := newStmtCache()
	stmt, err := sc.prepare(ctx, conn, "SELECT 'test'")
	c.Assert(err, IsNil)
	again, err := sc.prepare(ctx, conn, "SELECT 'test'")
	c.Assert(err, IsNil)
	c.Check(again, Equals, stmt)
	_, err = sc.prepare(ctx, conn, "SELECT 'other'")
	c.Assert(err, IsNil)

	// Running a kept statement does not prepare it again.
	var v string
	c.Assert(stmt.QueryRowContext(ctx).Scan(&v), IsNil)
	c.Check(v, Equals, "test")
	s.checkDriverStmtsOpened(c, 2)

	sc.closeAll(zerolog.Nop())
	c.Check(sc.stmts, HasLen, 0)
}

func (s *CacheSuite) TestKeptStatementPrepareError(c *C) {
	ctx := context.Background()
	sqldb, err := sql.Open(TrackedDriverName, TrackedDSN(c.TestName()))
	c.Assert(err, IsNil)
	defer sqldb.Close()
	conn, err := sqldb.Conn(ctx)
	c.Assert(err, IsNil)
	defer conn.Close()

	sc := newStmtCache()
	_, err = sc.prepare(ctx, conn, "SELECT * FROM nowhere")
	c.Check(err, ErrorMatches, "no such table: nowhere")
	c.Check(sc.stmts, HasLen, 0)
	s.checkDriverStmtsOpened(c, 0)
}

func (s *CacheSuite) checkDriverStmtsAllClosed(c *C) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(len(openedStmts[c.TestName()]), Equals, len(closedStmts[c.TestName()]))
}

func (s *CacheSuite) checkDriverStmtsOpened(c *C, n int) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(openedStmts[c.TestName()], HasLen, n)
}
