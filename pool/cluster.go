package pool

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1261385937/sql-plus-plus/errs"
	"github.com/1261385937/sql-plus-plus/internal/metrics"
	"github.com/1261385937/sql-plus-plus/model"
)

// topologyWatcher is satisfied by *mysql.Sentinel. Kept as an interface
// here (rather than importing mysql directly) so the pool package has no
// dependency on a specific driver package.
type topologyWatcher interface {
	WaitForChange(ctx context.Context) ([]model.NodeInfo, error)
	OnlineNodes() []model.NodeInfo
}

// ClusterPool is the MySQL Group Replication cluster mode pool: two
// per-IP queue maps (master/slave) with independent round-robin fetch
// counters, reconciled whenever the sentinel observes a topology change.
// Grounded on mysql_connection_pool.hpp's connection_pool<cluster>, on
// to6ka-go-tarantool's round_robin.go fetch-counter-modulo strategy, and
// on the teacher's BucketPool for Options-bounded sizing/maintenance —
// applied per node IP here since a cluster pool has many endpoints, not one.
type ClusterPool struct {
	endpoint string
	dial     Dialer
	opts     model.ConnectionOptions // carries User/Password/ConnectTimeout only; IP/Port come from topology
	sentinel topologyWatcher
	poolOpts Options

	masterMu      sync.Mutex
	masterPool    map[string][]entry
	masterTotal   map[string]int
	masterWaiters map[string][]chan model.Conn
	masters       []model.NodeInfo
	masterFetch   atomic.Uint64

	slaveMu      sync.Mutex
	slavePool    map[string][]entry
	slaveTotal   map[string]int
	slaveWaiters map[string][]chan model.Conn
	slaves       []model.NodeInfo
	slaveFetch   atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopMaintenance chan struct{}
	maintenanceWG   sync.WaitGroup
}

// NewClusterPool builds a cluster pool seeded from the sentinel's current
// view of the topology.
func NewClusterPool(endpoint string, opts model.ConnectionOptions, dial Dialer, sentinel topologyWatcher, poolOpts Options) *ClusterPool {
	p := &ClusterPool{
		endpoint:      endpoint,
		dial:          dial,
		opts:          opts,
		sentinel:      sentinel,
		poolOpts:      poolOpts,
		masterPool:    make(map[string][]entry),
		masterTotal:   make(map[string]int),
		masterWaiters: make(map[string][]chan model.Conn),
		slavePool:     make(map[string][]entry),
		slaveTotal:    make(map[string]int),
		slaveWaiters:  make(map[string][]chan model.Conn),
	}
	p.applyTopology(sentinel.OnlineNodes())
	return p
}

// Start launches the reconciliation goroutine that rebuilds the pool's
// per-IP queues whenever the sentinel observes a topology change, plus the
// maintenance loop when poolOpts calls for one.
func (p *ClusterPool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.reconcileLoop(ctx)

	if p.poolOpts.maintains() {
		p.stopMaintenance = make(chan struct{})
		p.maintenanceWG.Add(1)
		go p.maintenanceLoop()
	}
}

// Stop ends the reconciliation and maintenance goroutines.
func (p *ClusterPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if p.stopMaintenance != nil {
		close(p.stopMaintenance)
		p.maintenanceWG.Wait()
	}
}

func (p *ClusterPool) reconcileLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		nodes, err := p.sentinel.WaitForChange(ctx)
		if err != nil {
			return
		}
		p.applyTopology(nodes)
	}
}

// applyTopology rebuilds the master/slave queue maps from a fresh
// topology snapshot, migrating surviving per-IP queues and per-IP totals,
// looking each IP up in its own role's old maps first and then in the
// other role's (a role flip) — the Go
// realization of update_cluster_connections. Locks are always taken
// master-then-slave, the single fixed order that keeps this the pool's
// only two-lock section deadlock-free without a third-party multi-lock
// primitive.
func (p *ClusterPool) applyTopology(nodes []model.NodeInfo) {
	var primary, secondary []model.NodeInfo
	for _, n := range nodes {
		if n.Role == "PRIMARY" {
			primary = append(primary, n)
		} else {
			secondary = append(secondary, n)
		}
	}

	p.masterMu.Lock()
	p.slaveMu.Lock()
	defer p.slaveMu.Unlock()
	defer p.masterMu.Unlock()

	newMaster := migrateQueues(p.masterPool, p.slavePool, primary)
	newSlave := migrateQueues(p.slavePool, p.masterPool, secondary)
	newMasterTotal := migrateTotals(p.masterTotal, p.slaveTotal, primary)
	newSlaveTotal := migrateTotals(p.slaveTotal, p.masterTotal, secondary)

	closeReallyDropped(p.masterPool, p.slavePool, newMaster, newSlave)

	p.masterPool, p.masters = newMaster, primary
	p.slavePool, p.slaves = newSlave, secondary
	p.masterTotal, p.slaveTotal = newMasterTotal, newSlaveTotal
}

func migrateQueues(own, other map[string][]entry, nodes []model.NodeInfo) map[string][]entry {
	fresh := make(map[string][]entry, len(nodes))
	for _, n := range nodes {
		if q, ok := own[n.IP]; ok {
			fresh[n.IP] = q
			continue
		}
		if q, ok := other[n.IP]; ok {
			fresh[n.IP] = q
			continue
		}
		fresh[n.IP] = nil
	}
	return fresh
}

func migrateTotals(own, other map[string]int, nodes []model.NodeInfo) map[string]int {
	fresh := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if t, ok := own[n.IP]; ok {
			fresh[n.IP] = t
			continue
		}
		if t, ok := other[n.IP]; ok {
			fresh[n.IP] = t
			continue
		}
		fresh[n.IP] = 0
	}
	return fresh
}

// closeReallyDropped closes connections for nodes that vanished from the
// topology entirely. A node that merely flipped role (master<->slave) has
// its queue carried into the other new map by migrateQueues, so checking
// only one side here would close queues mid-migration; both new maps must
// be consulted before a queue is considered abandoned.
func closeReallyDropped(oldMaster, oldSlave, newMaster, newSlave map[string][]entry) {
	seen := make(map[string]bool, len(oldMaster)+len(oldSlave))
	closeIfDropped := func(old map[string][]entry) {
		for ip, q := range old {
			if seen[ip] {
				continue
			}
			seen[ip] = true
			if _, kept := newMaster[ip]; kept {
				continue
			}
			if _, kept := newSlave[ip]; kept {
				continue
			}
			for _, e := range q {
				e.conn.Close()
			}
		}
	}
	closeIfDropped(oldMaster)
	closeIfDropped(oldSlave)
}

// Acquire selects a connection for the given role by round robin over the
// current member list, reusing an idle connection for the selected node,
// dialing a fresh one if that node is under MaxConnections, or waiting in
// a per-node queue up to QueueTimeout otherwise.
func (p *ClusterPool) Acquire(ctx context.Context, role model.Role) (*Guard, error) {
	switch role {
	case model.RoleMaster:
		return p.acquireFrom(ctx, &p.masterMu, p.masterPool, p.masterTotal, p.masterWaiters, p.masters, &p.masterFetch)
	case model.RoleSlave:
		return p.acquireFrom(ctx, &p.slaveMu, p.slavePool, p.slaveTotal, p.slaveWaiters, p.slaves, &p.slaveFetch)
	default:
		return nil, errs.NewPoolError("cluster pool requires RoleMaster or RoleSlave", nil)
	}
}

func (p *ClusterPool) acquireFrom(
	ctx context.Context,
	mu *sync.Mutex,
	queues map[string][]entry,
	totals map[string]int,
	waiters map[string][]chan model.Conn,
	members []model.NodeInfo,
	fetch *atomic.Uint64,
) (*Guard, error) {
	start := time.Now()
	defer func() { metrics.QueueWaitDuration.WithLabelValues(p.endpoint).Observe(time.Since(start).Seconds()) }()

	mu.Lock()
	if len(members) == 0 {
		mu.Unlock()
		return nil, errs.NewPoolError("cluster has zero members for requested role", nil)
	}
	idx := fetch.Add(1) % uint64(len(members))
	node := members[idx]

	for {
		var c model.Conn
		if q := queues[node.IP]; len(q) > 0 {
			c = q[0].conn
			queues[node.IP] = q[1:]
		}
		if c != nil {
			mu.Unlock()
			if !c.IsHealthy() {
				c.Close()
				mu.Lock()
				totals[node.IP]--
				continue
			}
			metrics.ConnectionsTotal.WithLabelValues(p.endpoint, "acquired").Inc()
			return newGuard(p.endpoint, c, p.ReturnBack), nil
		}

		if p.poolOpts.MaxConnections <= 0 || totals[node.IP] < p.poolOpts.MaxConnections {
			totals[node.IP]++
			mu.Unlock()

			opts := model.ConnectionOptions{
				IP: node.IP, Port: node.Port,
				User: p.opts.User, Password: p.opts.Password,
				ConnectTimeout: p.opts.ConnectTimeout,
			}
			c, err := p.dial(opts)
			if err != nil {
				mu.Lock()
				totals[node.IP]--
				mu.Unlock()
				metrics.ConnectionErrors.WithLabelValues(p.endpoint, "dial").Inc()
				return nil, errs.NewPoolError("dialing "+node.IP, err)
			}
			metrics.ConnectionsTotal.WithLabelValues(p.endpoint, "created").Inc()
			return newGuard(p.endpoint, c, p.ReturnBack), nil
		}

		waiterCh := make(chan model.Conn, 1)
		waiters[node.IP] = append(waiters[node.IP], waiterCh)
		metrics.QueueLength.WithLabelValues(p.endpoint).Set(float64(len(waiters[node.IP])))
		mu.Unlock()

		timer := time.NewTimer(p.poolOpts.queueTimeout())
		select {
		case c, ok := <-waiterCh:
			timer.Stop()
			if !ok || c == nil {
				return nil, errs.NewPoolError("pool closed while waiting for a connection to "+node.IP, nil)
			}
			metrics.ConnectionsTotal.WithLabelValues(p.endpoint, "acquired").Inc()
			return newGuard(p.endpoint, c, p.ReturnBack), nil
		case <-timer.C:
			p.removeWaiter(mu, waiters, node.IP, waiterCh)
			metrics.ConnectionErrors.WithLabelValues(p.endpoint, "queue_timeout").Inc()
			return nil, errs.NewPoolError("timed out waiting for a connection to "+node.IP, nil)
		case <-ctx.Done():
			timer.Stop()
			p.removeWaiter(mu, waiters, node.IP, waiterCh)
			return nil, ctx.Err()
		}
	}
}

func (p *ClusterPool) removeWaiter(mu *sync.Mutex, waiters map[string][]chan model.Conn, ip string, ch chan model.Conn) {
	mu.Lock()
	defer mu.Unlock()
	ws := waiters[ip]
	for i, w := range ws {
		if w == ch {
			waiters[ip] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

// ReturnBack routes a connection back to whichever role queue its IP
// currently belongs to, checking slaves first then masters, matching
// mysql_connection_pool.hpp's return_back. A queued waiter for that IP is
// served directly instead of requeuing to idle. A connection whose node
// has left the topology entirely is closed instead of requeued.
func (p *ClusterPool) ReturnBack(c model.Conn) {
	ip := c.IP()
	if !c.IsHealthy() {
		p.closeAndDecrement(ip, c)
		return
	}

	p.slaveMu.Lock()
	if _, ok := p.slavePool[ip]; ok {
		if ws := p.slaveWaiters[ip]; len(ws) > 0 {
			ch := ws[0]
			p.slaveWaiters[ip] = ws[1:]
			p.slaveMu.Unlock()
			ch <- c
			return
		}
		p.slavePool[ip] = append(p.slavePool[ip], entry{conn: c, since: time.Now()})
		p.slaveMu.Unlock()
		return
	}
	p.slaveMu.Unlock()

	p.masterMu.Lock()
	if _, ok := p.masterPool[ip]; ok {
		if ws := p.masterWaiters[ip]; len(ws) > 0 {
			ch := ws[0]
			p.masterWaiters[ip] = ws[1:]
			p.masterMu.Unlock()
			ch <- c
			return
		}
		p.masterPool[ip] = append(p.masterPool[ip], entry{conn: c, since: time.Now()})
		p.masterMu.Unlock()
		return
	}
	p.masterMu.Unlock()

	c.Close()
}

func (p *ClusterPool) closeAndDecrement(ip string, c model.Conn) {
	c.Close()
	p.slaveMu.Lock()
	if _, ok := p.slaveTotal[ip]; ok {
		p.slaveTotal[ip]--
		p.slaveMu.Unlock()
		return
	}
	p.slaveMu.Unlock()

	p.masterMu.Lock()
	if _, ok := p.masterTotal[ip]; ok {
		p.masterTotal[ip]--
	}
	p.masterMu.Unlock()
}

// maintenanceLoop runs periodic per-node eviction and min-idle
// replenishment for both roles, grounded on the teacher's maintenanceLoop.
func (p *ClusterPool) maintenanceLoop() {
	defer p.maintenanceWG.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopMaintenance:
			return
		case <-ticker.C:
			p.evictStale(&p.masterMu, p.masterPool, p.masterTotal)
			p.evictStale(&p.slaveMu, p.slavePool, p.slaveTotal)
			p.ensureMinIdle(&p.masterMu, p.masterPool, p.masterTotal, p.masters)
			p.ensureMinIdle(&p.slaveMu, p.slavePool, p.slaveTotal, p.slaves)
		}
	}
}

func (p *ClusterPool) evictStale(mu *sync.Mutex, queues map[string][]entry, totals map[string]int) {
	if p.poolOpts.MaxIdleTime <= 0 {
		return
	}
	mu.Lock()
	now := time.Now()
	var evicted []model.Conn
	for ip, q := range queues {
		kept := q[:0]
		for _, e := range q {
			if now.Sub(e.since) > p.poolOpts.MaxIdleTime {
				evicted = append(evicted, e.conn)
				totals[ip]--
				continue
			}
			kept = append(kept, e)
		}
		queues[ip] = kept
	}
	mu.Unlock()

	for _, c := range evicted {
		c.Close()
	}
	if len(evicted) > 0 {
		log.Printf("[pool %s] evicted %d idle connection(s) past max idle time", p.endpoint, len(evicted))
	}
}

func (p *ClusterPool) ensureMinIdle(mu *sync.Mutex, queues map[string][]entry, totals map[string]int, members []model.NodeInfo) {
	if p.poolOpts.MinIdle <= 0 {
		return
	}
	type deficit struct {
		ip, port string
		n        int
	}
	var work []deficit
	mu.Lock()
	for _, n := range members {
		d := p.poolOpts.MinIdle - len(queues[n.IP])
		if p.poolOpts.MaxConnections > 0 {
			if headroom := p.poolOpts.MaxConnections - totals[n.IP]; d > headroom {
				d = headroom
			}
		}
		if d > 0 {
			work = append(work, deficit{ip: n.IP, port: n.Port, n: d})
		}
	}
	mu.Unlock()

	for _, w := range work {
		created := 0
		for i := 0; i < w.n; i++ {
			opts := model.ConnectionOptions{
				IP: w.ip, Port: w.port,
				User: p.opts.User, Password: p.opts.Password,
				ConnectTimeout: p.opts.ConnectTimeout,
			}
			c, err := p.dial(opts)
			if err != nil {
				log.Printf("[pool %s] failed to create min-idle connection for %s: %v", p.endpoint, w.ip, err)
				break
			}
			mu.Lock()
			queues[w.ip] = append(queues[w.ip], entry{conn: c, since: time.Now()})
			totals[w.ip]++
			mu.Unlock()
			created++
		}
		if created > 0 {
			log.Printf("[pool %s] replenished %d idle connection(s) for %s", p.endpoint, created, w.ip)
		}
	}
}

// Close shuts down the reconciliation/maintenance loops, wakes every
// waiter with failure, and closes every queued connection.
func (p *ClusterPool) Close() error {
	p.Stop()

	p.masterMu.Lock()
	for _, ws := range p.masterWaiters {
		for _, w := range ws {
			close(w)
		}
	}
	p.masterWaiters = nil
	for _, q := range p.masterPool {
		for _, e := range q {
			e.conn.Close()
		}
	}
	p.masterMu.Unlock()

	p.slaveMu.Lock()
	for _, ws := range p.slaveWaiters {
		for _, w := range ws {
			close(w)
		}
	}
	p.slaveWaiters = nil
	for _, q := range p.slavePool {
		for _, e := range q {
			e.conn.Close()
		}
	}
	p.slaveMu.Unlock()
	return nil
}
