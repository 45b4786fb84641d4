// Package mysql implements the MySQL side of the typed connection (C5)
// and the Group Replication sentinel (C6), grounded on
// include/mysql_connection.hpp and include/mysql_sentinel.hpp, using
// github.com/go-sql-driver/mysql as the wire driver.
package mysql

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/1261385937/sql-plus-plus/errs"
	"github.com/1261385937/sql-plus-plus/internal/bind"
	"github.com/1261385937/sql-plus-plus/internal/metrics"
	"github.com/1261385937/sql-plus-plus/model"
)

var driverInstance = mysqldriver.MySQLDriver{}

var liveConns atomic.Int64

// Connection wraps one MySQL wire connection, binding parameters and
// decoding results directly against database/sql/driver, mirroring the
// prepare/bind/execute/fetch sequence of mysql_connection.hpp's
// connection class.
type Connection struct {
	mu           sync.Mutex
	ip           string
	traceID      string
	conn         driver.Conn
	healthy      atomic.Bool
	lastInsertID int64
}

// Dial connects to a MySQL node with a 3 second connect timeout by
// default, the Go equivalent of MYSQL_OPT_CONNECT_TIMEOUT=3 in the
// original connect(); opt.ConnectTimeout overrides it when set.
func Dial(opt model.ConnectionOptions) (*Connection, error) {
	timeout := opt.ConnectTimeout
	if timeout <= 0 {
		timeout = connectTimeout
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/?timeout=%s&parseTime=true",
		opt.User, opt.Password, opt.IP, opt.Port, timeout)
	c, err := driverInstance.Open(dsn)
	if err != nil {
		return nil, errs.NewConnectionError("dialing mysql node "+opt.IP, err)
	}
	liveConns.Add(1)
	metrics.ConnectionsLive.WithLabelValues("mysql").Set(float64(liveConns.Load()))
	conn := &Connection{ip: opt.IP, traceID: uuid.NewString(), conn: c}
	conn.healthy.Store(true)
	return conn, nil
}

// IP returns the node's address, used by the pool to route ReturnBack.
func (c *Connection) IP() string { return c.ip }

// TraceID returns a per-connection identifier assigned at Dial, included
// in the error Ping returns on failure so it can be correlated back to
// one pooled connection across its lifetime.
func (c *Connection) TraceID() string { return c.traceID }

// IsHealthy reports whether every driver call on this connection so far has
// succeeded; once a call fails it stays false for the connection's lifetime.
func (c *Connection) IsHealthy() bool { return c.healthy.Load() }

// Close releases the underlying wire connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	liveConns.Add(-1)
	metrics.ConnectionsLive.WithLabelValues("mysql").Set(float64(liveConns.Load()))
	return c.conn.Close()
}

// Ping verifies the connection is alive, mirroring connection::ping().
func (c *Connection) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pinger, ok := c.conn.(driver.Pinger)
	if !ok {
		return nil
	}
	if err := pinger.Ping(context.Background()); err != nil {
		c.healthy.Store(false)
		return errs.NewConnectionError("ping "+c.ip+" ["+c.traceID+"]", err)
	}
	return nil
}

// Execute runs a statement that returns no rows, mirroring connection::execute()
// and the begin/commit/rollback helpers built on top of it. The
// auto-increment id the driver reports for the statement (zero when it
// generated none, as for the transaction verbs) is cached for a following
// LastInsertID call, mirroring how mysql_stmt_insert_id reads
// back from the connection's own statement handle rather than taking the
// statement as an argument.
func (c *Connection) Execute(sqlText string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stmt, err := c.conn.Prepare(sqlText)
	if err != nil {
		c.healthy.Store(false)
		return errs.NewExecutionError("preparing statement", err)
	}
	defer stmt.Close()

	values, err := bind.BindParams(stmt.NumInput(), args)
	if err != nil {
		return err
	}
	res, err := stmt.Exec(values)
	if err != nil {
		c.healthy.Store(false)
		return errs.NewExecutionError("executing statement", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		c.lastInsertID = id
	}
	return nil
}

// LastInsertID returns the auto-increment id produced by the most recent
// Execute call on this connection, mirroring get_last_insert_id via
// mysql_stmt_insert_id.
func (c *Connection) LastInsertID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInsertID
}

// BeginTx, Commit and Rollback are thin wrappers over
// Execute, mirroring the original's transaction helpers.
func (c *Connection) BeginTx() error  { return c.Execute("START TRANSACTION") }
func (c *Connection) Commit() error   { return c.Execute("COMMIT") }
func (c *Connection) Rollback() error { return c.Execute("ROLLBACK") }

// Query runs sqlText with args and decodes every row into R, the three
// before_execute/after_execute overloads collapsed by Go generics into one
// function: scalar, tuple-like and reflected-record destinations are all
// Go structs or Go scalars, dispatched on inside bind.FetchAll.
func Query[R any](c *Connection, sqlText string, args ...any) ([]R, error) {
	start := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues(c.ip).Observe(time.Since(start).Seconds()) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	stmt, err := c.conn.Prepare(sqlText)
	if err != nil {
		c.healthy.Store(false)
		return nil, errs.NewExecutionError("preparing statement", err)
	}
	defer stmt.Close()

	values, err := bind.BindParams(stmt.NumInput(), args)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(values)
	if err != nil {
		c.healthy.Store(false)
		return nil, errs.NewExecutionError("executing query", err)
	}
	out, err := bind.FetchAll[R](rows)
	if _, ok := err.(*errs.ExecutionError); ok {
		c.healthy.Store(false)
	}
	return out, err
}

var _ model.Conn = (*Connection)(nil)

// connectTimeout mirrors the original's MYSQL_OPT_CONNECT_TIMEOUT=3 constant.
const connectTimeout = 3 * time.Second
