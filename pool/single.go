package pool

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/1261385937/sql-plus-plus/errs"
	"github.com/1261385937/sql-plus-plus/internal/metrics"
	"github.com/1261385937/sql-plus-plus/model"
)

// Dialer builds a new connection for a given endpoint, implemented by
// mysql.Dial and sqlserver.Dial.
type Dialer func(model.ConnectionOptions) (model.Conn, error)

// SinglePool is the single-node mode pool: one plain FIFO queue behind one
// mutex, grounded on mysql_connection_pool.hpp's single-mode general_pool_
// and on the teacher's idle-slice bookkeeping, now bounded by Options the
// way the teacher's BucketPool is bounded by its Bucket config.
type SinglePool struct {
	mu       sync.Mutex
	opts     model.ConnectionOptions
	endpoint string
	dial     Dialer
	poolOpts Options

	idle    []entry
	total   int
	waiters []chan model.Conn
	closed  bool

	stopMaintenance chan struct{}
	maintenanceWG   sync.WaitGroup
}

// NewSinglePool builds a pool dialing opts via dial as needed. The
// constructor dials nothing; when poolOpts calls for one, the background
// maintenance loop started here tops the idle queue up to poolOpts.MinIdle
// on each 30 second tick
// (the teacher's NewBucketPool starts its maintenanceLoop unconditionally
// in its constructor the same way).
func NewSinglePool(endpoint string, opts model.ConnectionOptions, dial Dialer, poolOpts Options) *SinglePool {
	p := &SinglePool{endpoint: endpoint, opts: opts, dial: dial, poolOpts: poolOpts}
	if poolOpts.maintains() {
		p.stopMaintenance = make(chan struct{})
		p.maintenanceWG.Add(1)
		go p.maintenanceLoop()
	}
	return p
}

// Acquire returns a pooled connection, reusing an idle one if healthy,
// dialing a fresh one if under MaxConnections, or waiting in a queue up to
// QueueTimeout otherwise — the Go realization of BucketPool.Acquire's
// idle/create/wait-queue ladder. I/O never happens while the lock is held.
// role is accepted only so SinglePool satisfies the same interface as
// ClusterPool; single-node mode only supports model.RoleGeneral.
func (p *SinglePool) Acquire(ctx context.Context, role model.Role) (*Guard, error) {
	if role != model.RoleGeneral {
		return nil, errs.NewPoolError("single-node pool only supports RoleGeneral", nil)
	}
	start := time.Now()
	defer func() { metrics.QueueWaitDuration.WithLabelValues(p.endpoint).Observe(time.Since(start).Seconds()) }()

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, errs.NewPoolError("pool is closed", nil)
		}

		if len(p.idle) > 0 {
			c := p.idle[0].conn
			p.idle = p.idle[1:]
			metrics.ConnectionsIdle.WithLabelValues(p.endpoint).Set(float64(len(p.idle)))
			p.mu.Unlock()

			if !c.IsHealthy() {
				c.Close()
				p.mu.Lock()
				p.total--
				continue
			}
			metrics.ConnectionsTotal.WithLabelValues(p.endpoint, "acquired").Inc()
			return newGuard(p.endpoint, c, p.ReturnBack), nil
		}

		if p.poolOpts.MaxConnections <= 0 || p.total < p.poolOpts.MaxConnections {
			p.total++
			p.mu.Unlock()

			c, err := p.dial(p.opts)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				metrics.ConnectionErrors.WithLabelValues(p.endpoint, "dial").Inc()
				return nil, errs.NewPoolError("dialing new connection for "+p.endpoint, err)
			}
			metrics.ConnectionsTotal.WithLabelValues(p.endpoint, "created").Inc()
			return newGuard(p.endpoint, c, p.ReturnBack), nil
		}

		// Pool is at MaxConnections — enter the wait queue.
		waiterCh := make(chan model.Conn, 1)
		p.waiters = append(p.waiters, waiterCh)
		metrics.QueueLength.WithLabelValues(p.endpoint).Set(float64(len(p.waiters)))
		p.mu.Unlock()

		timer := time.NewTimer(p.poolOpts.queueTimeout())
		select {
		case c, ok := <-waiterCh:
			timer.Stop()
			if !ok || c == nil {
				return nil, errs.NewPoolError("pool closed while waiting for a connection from "+p.endpoint, nil)
			}
			metrics.ConnectionsTotal.WithLabelValues(p.endpoint, "acquired").Inc()
			return newGuard(p.endpoint, c, p.ReturnBack), nil
		case <-timer.C:
			p.removeWaiter(waiterCh)
			metrics.ConnectionErrors.WithLabelValues(p.endpoint, "queue_timeout").Inc()
			return nil, errs.NewPoolError("timed out waiting for a connection from "+p.endpoint, nil)
		case <-ctx.Done():
			timer.Stop()
			p.removeWaiter(waiterCh)
			return nil, ctx.Err()
		}
	}
}

func (p *SinglePool) removeWaiter(ch chan model.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			metrics.QueueLength.WithLabelValues(p.endpoint).Set(float64(len(p.waiters)))
			return
		}
	}
}

// ReturnBack hands a healthy connection directly to a queued waiter if one
// is present, otherwise enqueues it for reuse; an unhealthy or post-close
// connection is closed and released from the MaxConnections count instead,
// mirroring mysql_connection_pool.hpp's single-mode return_back.
func (p *SinglePool) ReturnBack(c model.Conn) {
	p.mu.Lock()
	if p.closed || !c.IsHealthy() {
		p.total--
		p.mu.Unlock()
		c.Close()
		return
	}
	if n := len(p.waiters); n > 0 {
		waiterCh := p.waiters[0]
		p.waiters = p.waiters[1:]
		metrics.QueueLength.WithLabelValues(p.endpoint).Set(float64(len(p.waiters)))
		p.mu.Unlock()
		waiterCh <- c
		return
	}
	p.idle = append(p.idle, entry{conn: c, since: time.Now()})
	metrics.ConnectionsIdle.WithLabelValues(p.endpoint).Set(float64(len(p.idle)))
	p.mu.Unlock()
}

// Close stops the maintenance loop, closes every idle connection, wakes
// every waiter with failure, and rejects future Acquire calls.
func (p *SinglePool) Close() error {
	if p.stopMaintenance != nil {
		close(p.stopMaintenance)
		p.maintenanceWG.Wait()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, w := range p.waiters {
		close(w)
	}
	p.waiters = nil
	var first error
	for _, e := range p.idle {
		if err := e.conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.idle = nil
	return first
}

// Stats reports the pool's current idle population, for observability.
func (p *SinglePool) Stats() (idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// maintenanceLoop runs periodic eviction and min-idle replenishment,
// grounded directly on the teacher's internal/pool/pool.go maintenanceLoop.
func (p *SinglePool) maintenanceLoop() {
	defer p.maintenanceWG.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopMaintenance:
			return
		case <-ticker.C:
			p.evictStale()
			p.ensureMinIdle()
		}
	}
}

// evictStale removes idle connections that have exceeded MaxIdleTime,
// the Go realization of the teacher's evictStale.
func (p *SinglePool) evictStale() {
	if p.poolOpts.MaxIdleTime <= 0 {
		return
	}
	p.mu.Lock()
	now := time.Now()
	kept := p.idle[:0]
	var evicted []model.Conn
	for _, e := range p.idle {
		if now.Sub(e.since) > p.poolOpts.MaxIdleTime {
			evicted = append(evicted, e.conn)
			p.total--
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
	metrics.ConnectionsIdle.WithLabelValues(p.endpoint).Set(float64(len(p.idle)))
	p.mu.Unlock()

	for _, c := range evicted {
		c.Close()
	}
	if len(evicted) > 0 {
		log.Printf("[pool %s] evicted %d idle connection(s) past max idle time", p.endpoint, len(evicted))
	}
}

// ensureMinIdle tops the idle queue back up to MinIdle, capped by whatever
// headroom remains under MaxConnections, the Go realization of the
// teacher's ensureMinIdle.
func (p *SinglePool) ensureMinIdle() {
	if p.poolOpts.MinIdle <= 0 {
		return
	}
	p.mu.Lock()
	deficit := p.poolOpts.MinIdle - len(p.idle)
	if p.poolOpts.MaxConnections > 0 {
		if headroom := p.poolOpts.MaxConnections - p.total; deficit > headroom {
			deficit = headroom
		}
	}
	closed := p.closed
	p.mu.Unlock()
	if closed || deficit <= 0 {
		return
	}

	created := 0
	for i := 0; i < deficit; i++ {
		c, err := p.dial(p.opts)
		if err != nil {
			log.Printf("[pool %s] failed to create min-idle connection: %v", p.endpoint, err)
			break
		}
		p.mu.Lock()
		p.idle = append(p.idle, entry{conn: c, since: time.Now()})
		p.total++
		metrics.ConnectionsIdle.WithLabelValues(p.endpoint).Set(float64(len(p.idle)))
		p.mu.Unlock()
		created++
	}
	if created > 0 {
		log.Printf("[pool %s] replenished %d idle connection(s)", p.endpoint, created)
	}
}
