// Package testutil provides a stub database for postgres store tests so the
// snapshot protocol can be exercised without a running server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

var stubCounter atomic.Int64

// StubConn records statements issued by the postgres store and keeps bucket
// payloads in memory. Failure toggles let tests drive each error branch.
type StubConn struct {
	Execs      []string
	Buckets    map[string][]byte
	FailPing   bool
	FailExec   bool
	FailQuery  bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", stubCounter.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. It understands the store's two
// statements: the state-table DDL and the snapshot upsert.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(upper, "INSERT INTO STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected upsert args: %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket arg type %T", args[0].Value)
		}
		payload, err := payloadBytes(args[1].Value)
		if err != nil {
			return nil, err
		}
		c.Buckets[bucket] = payload
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext for the snapshot select.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	if !strings.Contains(strings.ToUpper(query), "FROM STATE") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	rows := make([][]driver.Value, 0, len(c.Buckets))
	for bucket, payload := range c.Buckets {
		rows = append(rows, []driver.Value{bucket, append([]byte(nil), payload...)})
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: rows, err: c.RowsErr}, nil
}

func payloadBytes(v driver.Value) ([]byte, error) {
	switch data := v.(type) {
	case []byte:
		return append([]byte(nil), data...), nil
	case string:
		return []byte(data), nil
	default:
		return nil, fmt.Errorf("payload arg type %T", v)
	}
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
