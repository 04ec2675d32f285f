// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb registers an in-memory database/sql driver for tests:
// queries return a preloaded row set and statements record their
// arguments.
package fakedb // import "github.com/b787abel/booster/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

var state struct {
	mu    sync.Mutex
	rows  Rows
	execs [][]driver.Value
}

// Run preloads the row set returned by every query issued from f and
// collects the arguments of every exec'd statement.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.rows = rows
	state.execs = nil

	return f(ctx)
}

// Execs returns the recorded statement arguments of the last Run.
func Execs() [][]driver.Value {
	return state.execs
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{}, nil
}

func (c *Conn) Close() error { return nil }

func (c *Conn) Begin() (driver.Tx, error) {
	panic("not implemented")
}

type Stmt struct{}

func (stmt *Stmt) Close() error { return nil }

// NumInput returns -1: the driver does not know its placeholder count
// and argument checking is left to the caller.
func (stmt *Stmt) NumInput() int { return -1 }

func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	state.execs = append(state.execs, append([]driver.Value(nil), args...))
	return result{id: int64(len(state.execs))}, nil
}

func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return &state.rows, nil
}

type result struct {
	id int64
}

func (r result) LastInsertId() (int64, error) { return r.id, nil }
func (r result) RowsAffected() (int64, error) { return 1, nil }

// Rows is a preloaded result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string { return rows.Names }

func (rows *Rows) Close() error { return nil }

func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Result = (result{})
	_ driver.Rows   = (*Rows)(nil)
)
