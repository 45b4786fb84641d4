package pool

import (
	"log"
	"time"

	"github.com/1261385937/sql-plus-plus/internal/metrics"
	"github.com/1261385937/sql-plus-plus/model"
)

// pinger is implemented by mysql.Connection (ping is a MySQL-only verb per
// the spec); sqlserver.Connection does not implement it, so a SQL Server
// pool's HealthCheck relies on IsHealthy() alone.
type pinger interface {
	Ping() error
}

// HealthCheck pings every idle connection and evicts any that fail,
// grounded directly on the teacher's internal/pool/health.go: copy the
// idle list under lock, probe outside the lock, then rebuild the idle
// list to exclude failures.
func (p *SinglePool) HealthCheck() {
	p.mu.Lock()
	snapshot := make([]model.Conn, len(p.idle))
	for i, e := range p.idle {
		snapshot[i] = e.conn
	}
	p.mu.Unlock()

	bad := make(map[model.Conn]bool, len(snapshot))
	for _, c := range snapshot {
		if !probe(c) {
			bad[c] = true
		}
	}
	if len(bad) == 0 {
		return
	}

	p.mu.Lock()
	kept := p.idle[:0]
	for _, e := range p.idle {
		if bad[e.conn] {
			p.total--
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
	metrics.ConnectionsIdle.WithLabelValues(p.endpoint).Set(float64(len(p.idle)))
	p.mu.Unlock()

	for c := range bad {
		c.Close()
	}
	log.Printf("[pool %s] health check removed %d connection(s)", p.endpoint, len(bad))
	metrics.ConnectionErrors.WithLabelValues(p.endpoint, "health_check").Add(float64(len(bad)))
}

func probe(c model.Conn) bool {
	if !c.IsHealthy() {
		return false
	}
	if pg, ok := c.(pinger); ok {
		return pg.Ping() == nil
	}
	return true
}

// RunHealthChecks runs HealthCheck on a fixed interval until stop is closed.
func (p *SinglePool) RunHealthChecks(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.HealthCheck()
		}
	}
}
