// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.
package sqlbind

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which
// monitors the creation and closing of prepared statements. We can later use
// that information to check for statement leaks.

// openedStmts and closedStmts store the queries of the statements
// created/closed, indexed by test name.
var openedStmts = map[string][]string{}
var closedStmts = map[string][]string{}
var stmtRegistryMutex sync.RWMutex

type trackingDriver struct {
	driver.Driver
}

type trackingConn struct {
	testName string
	*sqlite3.SQLiteConn
}

type trackingStmt struct {
	testName string
	query    string
	*sqlite3.SQLiteStmt
}

func (s *trackingStmt) Close() error {
	stmtRegistryMutex.Lock()
	closedStmts[s.testName] = append(closedStmts[s.testName], s.query)
	stmtRegistryMutex.Unlock()
	return s.SQLiteStmt.Close()
}

func (c *trackingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	stmtRegistryMutex.Lock()
	openedStmts[c.testName] = append(openedStmts[c.testName], query)
	stmtRegistryMutex.Unlock()
	return &trackingStmt{SQLiteStmt: sm, testName: c.testName, query: query}, nil
}

func (c *trackingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

const TestNameTag = "testName"

// Open expects the DSN to contain the test name using the testNameTag
// attribute.
func (d *trackingDriver) Open(name string) (driver.Conn, error) {
	var testName string
	if _, parameters, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(parameters, "&") {
			if v, ok := strings.CutPrefix(p, TestNameTag+"="); ok {
				testName = v
			}
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}

	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	sc, ok := baseConn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	return &trackingConn{SQLiteConn: sc, testName: testName}, nil
}

func init() {
	sql.Register(TrackedDriverName, &trackingDriver{
		&sqlite3.SQLiteDriver{},
	})
}
