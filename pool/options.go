package pool

import (
	"time"

	"github.com/1261385937/sql-plus-plus/model"
)

// Options bounds a pool's connection population, the Go analogue of the
// teacher's pkg/bucket.Bucket tuning fields (MaxConnections, MinIdle,
// MaxIdleTime, QueueTimeout). A zero value disables the corresponding
// behavior entirely: MaxConnections <= 0 means unlimited, MinIdle <= 0
// means no warm-pool maintenance, MaxIdleTime <= 0 means idle connections
// are never evicted for age.
type Options struct {
	MaxConnections int
	MinIdle        int
	MaxIdleTime    time.Duration
	QueueTimeout   time.Duration
}

// queueTimeout returns the configured QueueTimeout or a 30 second default,
// matching the teacher's BucketPool.Acquire fallback when Bucket.QueueTimeout
// is zero.
func (o Options) queueTimeout() time.Duration {
	if o.QueueTimeout > 0 {
		return o.QueueTimeout
	}
	return 30 * time.Second
}

// maintains reports whether o calls for a background maintenance loop at all.
func (o Options) maintains() bool {
	return o.MinIdle > 0 || o.MaxIdleTime > 0
}

// entry is one idle connection together with the time it was returned to
// the pool, used to evict connections that have sat idle past MaxIdleTime.
type entry struct {
	conn  model.Conn
	since time.Time
}
