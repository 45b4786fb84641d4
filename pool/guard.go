// Package pool implements the connection pool (C7): a single-endpoint FIFO
// pool and a MySQL cluster pool with round-robin master/slave selection,
// grounded on the teacher's internal/pool/pool.go bookkeeping style and on
// mysql_connection_pool.hpp's per-IP queue/reconciliation design.
package pool

import (
	"sync"

	"github.com/1261385937/sql-plus-plus/internal/metrics"
	"github.com/1261385937/sql-plus-plus/model"
)

// Guard is the borrow guard (C10): it wraps a checked-out connection and
// returns it to its owning pool exactly once. Go has no destructor to
// enforce single-fire release the way the original's connection_guard
// gets from RAII, so Release is idempotent via sync.Once — the one place
// this port adds a safety net the C++ original does not need.
type Guard struct {
	once     sync.Once
	conn     model.Conn
	release  func(model.Conn)
	endpoint string
}

func newGuard(endpoint string, conn model.Conn, release func(model.Conn)) *Guard {
	metrics.ConnectionsActive.WithLabelValues(endpoint).Inc()
	return &Guard{conn: conn, release: release, endpoint: endpoint}
}

// Conn exposes the borrowed connection, the Go analogue of
// connection_guard::operator->.
func (g *Guard) Conn() model.Conn { return g.conn }

// Release returns the connection to the pool. Safe to call more than once
// or not at all by deferred callers that also Discard.
func (g *Guard) Release() {
	g.once.Do(func() {
		metrics.ConnectionsActive.WithLabelValues(g.endpoint).Dec()
		if g.release != nil {
			g.release(g.conn)
		}
	})
}

// Discard closes the connection instead of returning it to the pool, for
// callers that know the connection is no longer usable.
func (g *Guard) Discard() {
	g.once.Do(func() {
		metrics.ConnectionsActive.WithLabelValues(g.endpoint).Dec()
		g.conn.Close()
	})
}
