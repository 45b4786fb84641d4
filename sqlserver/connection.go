// Package sqlserver implements the SQL Server side of the typed
// connection (C5), grounded on include/sqlserver_connection.hpp's ODBC
// binding contract, using github.com/microsoft/go-mssqldb as the wire
// driver. SQL Server has no Group Replication analogue and this spec
// does not support a SQL Server cluster topology, so there is no
// sqlserver.Sentinel or sqlserver cluster pool.
package sqlserver

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/google/uuid"

	"github.com/1261385937/sql-plus-plus/errs"
	"github.com/1261385937/sql-plus-plus/internal/bind"
	"github.com/1261385937/sql-plus-plus/internal/metrics"
	"github.com/1261385937/sql-plus-plus/model"
)

var liveConns atomic.Int64

// Connection wraps one SQL Server wire connection. Every Execute/Query
// call prepares, runs and immediately discards its driver.Stmt — the Go
// realization of the original's SQLFreeStmt(SQL_CLOSE) quirk noted in the
// spec: statements are never cached across calls on this connection.
type Connection struct {
	mu      sync.Mutex
	ip      string
	traceID string
	conn    driver.Conn
	healthy atomic.Bool
}

// connectTimeout is the default dial timeout, overridden by
// opt.ConnectTimeout when set.
const connectTimeout = 3 * time.Second

// Dial connects to a SQL Server node with a 3 second dial timeout by default.
func Dial(opt model.ConnectionOptions) (*Connection, error) {
	timeout := opt.ConnectTimeout
	if timeout <= 0 {
		timeout = connectTimeout
	}
	dsn := fmt.Sprintf("sqlserver://%s:%s@%s:%s?dial+timeout=%d",
		opt.User, opt.Password, opt.IP, opt.Port, int(timeout.Seconds()))
	connector, err := mssql.NewConnector(dsn)
	if err != nil {
		return nil, errs.NewConnectionError("building connector for "+opt.IP, err)
	}
	c, err := connector.Connect(context.Background())
	if err != nil {
		return nil, errs.NewConnectionError("dialing sqlserver node "+opt.IP, err)
	}
	liveConns.Add(1)
	metrics.ConnectionsLive.WithLabelValues("sqlserver").Set(float64(liveConns.Load()))
	conn := &Connection{ip: opt.IP, traceID: uuid.NewString(), conn: c}
	conn.healthy.Store(true)
	return conn, nil
}

// IP returns the node's address.
func (c *Connection) IP() string { return c.ip }

// TraceID returns a per-connection identifier assigned at Dial, included
// in wrapped errors so failures can be correlated back to one pooled
// connection across its lifetime.
func (c *Connection) TraceID() string { return c.traceID }

// IsHealthy reports whether every driver call on this connection so far has
// succeeded; once a call fails it stays false for the connection's lifetime.
func (c *Connection) IsHealthy() bool { return c.healthy.Load() }

// Close releases the underlying wire connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	liveConns.Add(-1)
	metrics.ConnectionsLive.WithLabelValues("sqlserver").Set(float64(liveConns.Load()))
	return c.conn.Close()
}

func (c *Connection) prepare(sqlText string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(sqlText)
	if err != nil {
		c.healthy.Store(false)
		return nil, errs.NewExecutionError("preparing statement ["+c.traceID+"]", err)
	}
	return stmt, nil
}

// Execute runs a statement that returns no rows.
func (c *Connection) Execute(sqlText string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stmt, err := c.prepare(sqlText)
	if err != nil {
		return err
	}
	defer stmt.Close()

	values, err := bind.BindParams(stmt.NumInput(), args)
	if err != nil {
		return err
	}
	if _, err := stmt.Exec(values); err != nil {
		c.healthy.Store(false)
		return errs.NewExecutionError("executing statement", err)
	}
	return nil
}

// BeginTx, Commit and Rollback use the literal T-SQL verbs the original
// emits (sqlserver_connection.hpp), not their BEGIN/COMMIT/ROLLBACK
// TRANSACTION long forms.
func (c *Connection) BeginTx() error  { return c.Execute("begin tran") }
func (c *Connection) Commit() error   { return c.Execute("commit tran") }
func (c *Connection) Rollback() error { return c.Execute("rollback tran") }

// Query runs sqlText with args and decodes every row into R.
func Query[R any](c *Connection, sqlText string, args ...any) ([]R, error) {
	start := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues(c.ip).Observe(time.Since(start).Seconds()) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	stmt, err := c.prepare(sqlText)
	if err != nil {
		return nil, err
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
