// Package sqlpp is the façade (C8): it ties together a connection pool,
// and for MySQL cluster topologies a Sentinel, behind one small
// application-facing type. Grounded on include/db.hpp's db<Model, Pool>
// constructor dispatch, reshaped per DESIGN.md's Open Question #2 into
// run-time constructors (one per driver and topology) instead of one
// compile-time template.
package sqlpp

import (
	"context"
	"fmt"
	"time"

	"github.com/1261385937/sql-plus-plus/internal/config"
	"github.com/1261385937/sql-plus-plus/model"
	"github.com/1261385937/sql-plus-plus/mysql"
	"github.com/1261385937/sql-plus-plus/pool"
	"github.com/1261385937/sql-plus-plus/sqlserver"
)

type poolHandle interface {
	Acquire(ctx context.Context, role model.Role) (*pool.Guard, error)
	Close() error
}

// Database is the application-facing entry point: NewSingleMySQL,
// NewSingleSQLServer or NewMySQLCluster build one, then callers use Conn
// to borrow a connection for the duration of one unit of work.
type Database struct {
	p        poolHandle
	topology model.Topology
	sentinel *mysql.Sentinel
}

func mysqlDialer(o model.ConnectionOptions) (model.Conn, error) {
	c, err := mysql.Dial(o)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func sqlserverDialer(o model.ConnectionOptions) (model.Conn, error) {
	c, err := sqlserver.Dial(o)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewSingleMySQL builds a single-node MySQL database: one fixed endpoint,
// no sentinel, RoleGeneral only. poolOpts bounds and warms the pool; pass
// pool.Options{} for an unbounded, unwarmed pool.
func NewSingleMySQL(label string, opts model.ConnectionOptions, poolOpts pool.Options) *Database {
	return &Database{
		p:        pool.NewSinglePool(label, opts, mysqlDialer, poolOpts),
		topology: model.TopologySingle,
	}
}

// NewSingleSQLServer builds a single-node SQL Server database. SQL Server
// has no cluster topology in this spec.
func NewSingleSQLServer(label string, opts model.ConnectionOptions, poolOpts pool.Options) *Database {
	return &Database{
		p:        pool.NewSinglePool(label, opts, sqlserverDialer, poolOpts),
		topology: model.TopologySingle,
	}
}

// NewMySQLCluster builds a MySQL Group Replication cluster database: a
// Sentinel polls seeds for membership, and a ClusterPool tracks master
// and slave connections by round robin, reconciling whenever the
// sentinel reports a topology change. The returned Database owns both
// the sentinel and the pool's reconciliation goroutine; Close stops both.
func NewMySQLCluster(ctx context.Context, label string, seeds []model.NodeInfo, user, passwd string, poolOpts pool.Options) *Database {
	sentinel := mysql.NewSentinel(label, seeds, user, passwd)
	sentinel.Start(ctx)

	clusterPool := pool.NewClusterPool(
		label,
		model.ConnectionOptions{User: user, Password: passwd},
		mysqlDialer,
		sentinel,
		poolOpts,
	)
	clusterPool.Start(ctx)

	return &Database{
		p:        clusterPool,
		topology: model.TopologyCluster,
		sentinel: sentinel,
	}
}

// NewFromConfig builds a Database from a parsed config.Config, dispatching
// on its Driver/Topology fields to the matching constructor above. Pool
// tuning (max_connections, min_idle, max_idle_time, queue_timeout) is taken
// from config.Config.PoolOptions for every topology; its dial
// connect_timeout is applied to single-node databases only, and a cluster
// (its pool and its sentinel) dials with the drivers' 3 second default. It is the
// entry point cmd/ binaries use once a YAML file is loaded.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Database, error) {
	nodes := cfg.NodeInfos()
	maxConnections, minIdle, maxIdleTime, queueTimeout, connectTimeout := cfg.PoolOptions()
	poolOpts := pool.Options{
		MaxConnections: maxConnections,
		MinIdle:        minIdle,
		MaxIdleTime:    maxIdleTime,
		QueueTimeout:   queueTimeout,
	}

	switch {
	case cfg.Driver == "mysql" && cfg.TopologyKind() == model.TopologyCluster:
		return NewMySQLCluster(ctx, cfg.Cluster, nodes, cfg.User, cfg.Password, poolOpts), nil
	case cfg.Driver == "mysql":
		n := cfg.Nodes[0]
		return NewSingleMySQL(cfg.Cluster, model.ConnectionOptions{
			IP: n.IP, Port: n.Port, User: n.User, Password: n.Password, ConnectTimeout: connectTimeout,
		}, poolOpts), nil
	case cfg.Driver == "sqlserver":
		n := cfg.Nodes[0]
		return NewSingleSQLServer(cfg.Cluster, model.ConnectionOptions{
			IP: n.IP, Port: n.Port, User: n.User, Password: n.Password, ConnectTimeout: connectTimeout,
		}, poolOpts), nil
	default:
		return nil, fmt.Errorf("sqlpp: unsupported driver %q", cfg.Driver)
	}
}

// StartHealthChecks runs periodic idle-connection health probes for
// single-node databases, the Go realization of the teacher's health-check
// half of maintenanceLoop kept separate from eviction/prewarm (SinglePool's
// own maintenance loop). It is a no-op for cluster topologies, which
// already self-heal via the sentinel's reconciliation loop instead. The
// returned stop func ends the check loop; calling it more than once panics
// on a closed channel exactly like stopping any other background loop
// twice, so callers should defer it exactly once.
func (db *Database) StartHealthChecks(interval time.Duration) (stop func()) {
	sp, ok := db.p.(*pool.SinglePool)
	if !ok {
		return func() {}
	}
	stopCh := make(chan struct{})
	go sp.RunHealthChecks(interval, stopCh)
	return func() { close(stopCh) }
}

// Conn borrows a connection for the given role, the Go realization of
// Database::get_conn<Role>(). Single-node databases only accept
// model.RoleGeneral; cluster databases accept model.RoleMaster/RoleSlave.
func (db *Database) Conn(ctx context.Context, role model.Role) (*pool.Guard, error) {
	return db.p.Acquire(ctx, role)
}

// Topology reports whether this Database is single-node or cluster.
func (db *Database) Topology() model.Topology { return db.topology }

// Close releases the pool and, for cluster databases, stops the sentinel,
// in that order — matching the original's documented shutdown sequence of
// destroying the pool before the sentinel it depends on.
func (db *Database) Close() error {
	err := db.p.Close()
	if db.sentinel != nil {
		db.sentinel.Stop()
	}
	return err
}
