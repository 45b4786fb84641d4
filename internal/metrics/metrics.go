// Package metrics defines Prometheus metrics for the connection pool,
// connections, and the MySQL Group Replication sentinel. All collectors
// are registered upfront so callers never need to touch this file to
// start observing a new pool instance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks the number of active (checked-out) connections per endpoint.
	ConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlpp_connections_active",
		Help: "Number of active connections per endpoint",
	}, []string{"endpoint"})

	// ConnectionsIdle tracks the number of idle connections per endpoint.
	ConnectionsIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlpp_connections_idle",
		Help: "Number of idle connections in the pool per endpoint",
	}, []string{"endpoint"})

	// ConnectionsLive tracks the process-wide live connection count per driver,
	// the Go analogue of the C client's static conn_count_ counter.
	ConnectionsLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlpp_connections_live",
		Help: "Live connections per driver (mysql/sqlserver)",
	}, []string{"driver"})

	// ConnectionsTotal counts pool operations by status: "acquired" when an
	// existing connection is handed out and "created" when a new one is
	// dialed for a caller. Releases and discards are not counted.
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlpp_connections_total",
		Help: "Total connection pool operations",
	}, []string{"endpoint", "status"})

	// QueueLength tracks how many Acquire callers are currently blocked
	// waiting for a connection because the pool is at max_connections.
	QueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlpp_queue_length",
		Help: "Number of callers waiting for a connection per endpoint",
	}, []string{"endpoint"})

	// QueueWaitDuration tracks the time callers spend waiting for a connection.
	QueueWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sqlpp_queue_wait_seconds",
		Help:    "Time spent waiting in queue for a connection",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"endpoint"})

	// QueryDuration tracks query execution time.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sqlpp_query_duration_seconds",
		Help:    "Query execution duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	// ConnectionErrors counts connection errors by type.
	ConnectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlpp_connection_errors_total",
		Help: "Total connection errors",
	}, []string{"endpoint", "error_type"})

	// SentinelTopologyChanges counts cluster topology change events observed by the sentinel.
	SentinelTopologyChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlpp_sentinel_topology_changes_total",
		Help: "Total cluster topology changes observed by the sentinel",
	}, []string{"cluster"})

	// SentinelOnlineMembers tracks the current count of ONLINE Group Replication members.
	SentinelOnlineMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlpp_sentinel_online_members",
		Help: "Current count of ONLINE Group Replication members",
	}, []string{"cluster"})
)
