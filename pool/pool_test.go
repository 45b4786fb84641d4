package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1261385937/sql-plus-plus/model"
)

type fakeConn struct {
	ip      string
	healthy atomic.Bool
	closed  atomic.Bool
}

func newFakeConn(ip string) *fakeConn {
	c := &fakeConn{ip: ip}
	c.healthy.Store(true)
	return c
}

func (f *fakeConn) Execute(string, ...any) error { return nil }
func (f *fakeConn) BeginTx() error               { return nil }
func (f *fakeConn) Commit() error                { return nil }
func (f *fakeConn) Rollback() error              { return nil }
func (f *fakeConn) IsHealthy() bool              { return f.healthy.Load() }
func (f *fakeConn) Close() error                 { f.closed.Store(true); return nil }
func (f *fakeConn) IP() string                   { return f.ip }

var _ model.Conn = (*fakeConn)(nil)

func TestSinglePoolReusesReturnedConnection(t *testing.T) {
	var dialCount atomic.Int32
	dial := func(model.ConnectionOptions) (model.Conn, error) {
		dialCount.Add(1)
		return newFakeConn("10.0.0.1"), nil
	}
	p := NewSinglePool("t", model.ConnectionOptions{IP: "10.0.0.1"}, dial, Options{})

	g1, err := p.Acquire(context.Background(), model.RoleGeneral)
	require.NoError(t, err)
	g1.Release()

	g2, err := p.Acquire(context.Background(), model.RoleGeneral)
	require.NoError(t, err)
	assert.Same(t, g1.Conn(), g2.Conn())
	assert.EqualValues(t, 1, dialCount.Load())
}

func TestSinglePoolRejectsNonGeneralRole(t *testing.T) {
	p := NewSinglePool("t", model.ConnectionOptions{}, func(model.ConnectionOptions) (model.Conn, error) {
		return newFakeConn("x"), nil
	}, Options{})
	_, err := p.Acquire(context.Background(), model.RoleMaster)
	assert.Error(t, err)
}

func TestClusterPoolRoundRobinsAcrossMasters(t *testing.T) {
	watcher := &fakeWatcher{
		nodes: []model.NodeInfo{
			{IP: "m1", Role: "PRIMARY"},
			{IP: "m2", Role: "PRIMARY"},
		},
	}
	seen := map[string]int{}
	dial := func(o model.ConnectionOptions) (model.Conn, error) {
		return newFakeConn(o.IP), nil
	}
	p := NewClusterPool("c", model.ConnectionOptions{}, dial, watcher, Options{})

	for i := 0; i < 10; i++ {
		g, err := p.Acquire(context.Background(), model.RoleMaster)
		require.NoError(t, err)
		seen[g.Conn().IP()]++
		p.ReturnBack(g.Conn())
	}
	assert.Equal(t, 5, seen["m1"])
	assert.Equal(t, 5, seen["m2"])
}

func TestClusterPoolZeroMembersIsPoolError(t *testing.T) {
	watcher := &fakeWatcher{}
	p := NewClusterPool("c", model.ConnectionOptions{}, func(model.ConnectionOptions) (model.Conn, error) {
		return nil, nil
	}, watcher, Options{})
	_, err := p.Acquire(context.Background(), model.RoleSlave)
	assert.Error(t, err)
}

func TestClusterPoolReconciliationMigratesQueue(t *testing.T) {
	watcher := &fakeWatcher{nodes: []model.NodeInfo{{IP: "m1", Role: "PRIMARY"}}}
	p := NewClusterPool("c", model.ConnectionOptions{}, func(o model.ConnectionOptions) (model.Conn, error) {
		return newFakeConn(o.IP), nil
	}, watcher, Options{})

	g, err := p.Acquire(context.Background(), model.RoleMaster)
	require.NoError(t, err)
	p.ReturnBack(g.Conn())

	// m1 flips to secondary.
	p.applyTopology([]model.NodeInfo{{IP: "m1", Role: "SECONDARY"}})

	g2, err := p.Acquire(context.Background(), model.RoleSlave)
	require.NoError(t, err)
	assert.Equal(t, "m1", g2.Conn().IP())
}

func TestClusterPoolReconciliationDoesNotCloseFlippedConnection(t *testing.T) {
	watcher := &fakeWatcher{nodes: []model.NodeInfo{{IP: "m1", Role: "PRIMARY"}}}
	p := NewClusterPool("c", model.ConnectionOptions{}, func(o model.ConnectionOptions) (model.Conn, error) {
		return newFakeConn(o.IP), nil
	}, watcher, Options{})

	g, err := p.Acquire(context.Background(), model.RoleMaster)
	require.NoError(t, err)
	conn := g.Conn().(*fakeConn)
	p.ReturnBack(conn)

	// m1 flips to secondary: the connection must migrate, not close.
	p.applyTopology([]model.NodeInfo{{IP: "m1", Role: "SECONDARY"}})
	assert.False(t, conn.closed.Load())

	g2, err := p.Acquire(context.Background(), model.RoleSlave)
	require.NoError(t, err)
	assert.Same(t, conn, g2.Conn())
}

func TestSinglePoolBoundsMaxConnections(t *testing.T) {
	var dialCount atomic.Int32
	dial := func(model.ConnectionOptions) (model.Conn, error) {
		dialCount.Add(1)
		return newFakeConn("10.0.0.1"), nil
	}
	p := NewSinglePool("t", model.ConnectionOptions{}, dial, Options{MaxConnections: 1, QueueTimeout: 20 * time.Millisecond})

	g1, err := p.Acquire(context.Background(), model.RoleGeneral)
	require.NoError(t, err)

	_, err = p.Acquire(context.Background(), model.RoleGeneral)
	assert.Error(t, err, "second acquire should time out waiting for the one-connection pool")
	assert.EqualValues(t, 1, dialCount.Load())

	g1.Release()
	g2, err := p.Acquire(context.Background(), model.RoleGeneral)
	require.NoError(t, err)
	assert.Same(t, g1.Conn(), g2.Conn())
	assert.EqualValues(t, 1, dialCount.Load())
}

func TestSinglePoolHandsOffToWaitingAcquire(t *testing.T) {
	dial := func(model.ConnectionOptions) (model.Conn, error) {
		return newFakeConn("10.0.0.1"), nil
	}
	p := NewSinglePool("t", model.ConnectionOptions{}, dial, Options{MaxConnections: 1, QueueTimeout: time.Second})

	g1, err := p.Acquire(context.Background(), model.RoleGeneral)
	require.NoError(t, err)

	type result struct {
		g   *Guard
		err error
	}
	done := make(chan result, 1)
	go func() {
		g, err := p.Acquire(context.Background(), model.RoleGeneral)
		done <- result{g, err}
	}()

	time.Sleep(10 * time.Millisecond)
	g1.Release()

	r := <-done
	require.NoError(t, r.err)
	assert.Same(t, g1.Conn(), r.g.Conn())
}

func TestClusterPoolBoundsMaxConnectionsPerNode(t *testing.T) {
	watcher := &fakeWatcher{nodes: []model.NodeInfo{{IP: "m1", Role: "PRIMARY"}}}
	var dialCount atomic.Int32
	dial := func(o model.ConnectionOptions) (model.Conn, error) {
		dialCount.Add(1)
		return newFakeConn(o.IP), nil
	}
	p := NewClusterPool("c", model.ConnectionOptions{}, dial, watcher,
		Options{MaxConnections: 1, QueueTimeout: 20 * time.Millisecond})

	g1, err := p.Acquire(context.Background(), model.RoleMaster)
	require.NoError(t, err)

	_, err = p.Acquire(context.Background(), model.RoleMaster)
	assert.Error(t, err, "m1 is at MaxConnections so the second acquire should time out")
	assert.EqualValues(t, 1, dialCount.Load())

	g1.Release()
}

type fakeWatcher struct {
	nodes []model.NodeInfo
}

func (f *fakeWatcher) WaitForChange(ctx context.Context) ([]model.NodeInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeWatcher) OnlineNodes() []model.NodeInfo { return f.nodes }
