package mysql

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/1261385937/sql-plus-plus/internal/metrics"
	"github.com/1261385937/sql-plus-plus/model"
)

// retryDelay is the original's fixed 3 second sleep between monitor passes.
const retryDelay = 3 * time.Second

// memberRow mirrors one row of performance_schema.replication_group_members
// as fetched by the sentinel's bit-exact queries.
type memberRow struct {
	Host string
	Port string
	Role string
}

func membersQuery(role string) string {
	q := "select member_host, member_port, member_role" +
		" from performance_schema.replication_group_members" +
		" where member_state = 'ONLINE'"
	if role != "" {
		q += " and member_role = '" + role + "'"
	}
	return q
}

// Sentinel monitors MySQL Group Replication membership by polling a seed
// node's performance_schema, the Go realization of mysql_sentinel.hpp.
// Seed nodes are only ever added, never removed, so a sentinel that once
// observed a node keeps trying to reach it even if it temporarily drops
// out of the ONLINE set.
type Sentinel struct {
	cluster string
	user    string
	passwd  string

	mu          sync.RWMutex
	seedNodes   []model.NodeInfo
	onlineNodes []model.NodeInfo

	monitorMu sync.Mutex
	monitor   *Connection

	changed chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSentinel builds a sentinel seeded with the given initial nodes.
// cluster is a label used only for metrics/log lines.
func NewSentinel(cluster string, seeds []model.NodeInfo, user, passwd string) *Sentinel {
	sorted := append([]model.NodeInfo(nil), seeds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return &Sentinel{
		cluster:   cluster,
		user:      user,
		passwd:    passwd,
		seedNodes: sorted,
		changed:   make(chan struct{}, 1),
	}
}

// Start launches the monitor goroutine. Stop must be called to release it.
func (s *Sentinel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.monitorLoop(ctx)
}

// Stop signals the monitor goroutine to exit and waits for it to return.
func (s *Sentinel) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.monitorMu.Lock()
	if s.monitor != nil {
		s.monitor.Close()
		s.monitor = nil
	}
	s.monitorMu.Unlock()
}

// OnlineNodes returns the current snapshot of ONLINE members.
func (s *Sentinel) OnlineNodes() []model.NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.NodeInfo(nil), s.onlineNodes...)
}

// WaitForChange blocks until the sentinel observes a topology change (or ctx
// is cancelled) and returns the current snapshot. Like the original's
// wait_for_cluster_change, the wait has no retained predicate: a spurious
// wake simply returns the current state, which callers must treat as
// idempotent — reconciliation always rebuilds from "what is true now", not
// from a diff against what it expected to change.
func (s *Sentinel) WaitForChange(ctx context.Context) ([]model.NodeInfo, error) {
	select {
	case <-s.changed:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.OnlineNodes(), nil
}

// notify wakes a blocked WaitForChange call after a topology change. The
// send never blocks: notifications that arrive before anyone waits
// coalesce into one pending wakeup.
func (s *Sentinel) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Sentinel) monitorLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func (s *Sentinel) pollOnce(ctx context.Context) {
	s.mu.RLock()
	seeds := append([]model.NodeInfo(nil), s.seedNodes...)
	s.mu.RUnlock()

	for _, seed := range seeds {
		rows, err := s.queryFromSeed(seed, "")
		if err != nil || len(rows) == 0 {
			s.monitorMu.Lock()
			if s.monitor != nil {
				s.monitor.Close()
				s.monitor = nil
			}
			s.monitorMu.Unlock()
			if err != nil {
				log.Printf("[sentinel %s] seed %s unreachable: %v", s.cluster, seed.IP, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		nodes := make([]model.NodeInfo, len(rows))
		for i, r := range rows {
			nodes[i] = model.NodeInfo{IP: r.Host, Port: r.Port, Role: r.Role}
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Less(nodes[j]) })

		s.mu.Lock()
		changed := !sameNodes(nodes, s.onlineNodes)
		if changed {
			s.onlineNodes = nodes
			s.seedNodes = unionNodes(s.seedNodes, nodes)
		}
		s.mu.Unlock()

		metrics.SentinelOnlineMembers.WithLabelValues(s.cluster).Set(float64(len(nodes)))
		if changed {
			metrics.SentinelTopologyChanges.WithLabelValues(s.cluster).Inc()
			s.notify()
		}
		return
	}
}

func (s *Sentinel) queryFromSeed(seed model.NodeInfo, roleFilter string) ([]memberRow, error) {
	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()

	if s.monitor == nil {
		conn, err := Dial(model.ConnectionOptions{IP: seed.IP, Port: seed.Port, User: s.user, Password: s.passwd})
		if err != nil {
			return nil, err
		}
		s.monitor = conn
	}
	rows, err := Query[memberRow](s.monitor, membersQuery(roleFilter))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func sameNodes(a, b []model.NodeInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unionNodes merges b into a (sorted, deduplicated by IP), matching the
// original's std::set_union over sorted seed/online vectors — seeds are
// never forgotten even if a node later drops out of the ONLINE set.
func unionNodes(a, b []model.NodeInfo) []model.NodeInfo {
	seen := make(map[string]bool, len(a))
	out := append([]model.NodeInfo(nil), a...)
	for _, n := range a {
		seen[n.IP] = true
	}
	for _, n := range b {
		if !seen[n.IP] {
			out = append(out, n)
			seen[n.IP] = true
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
