// Package model holds the data model shared across the mysql, sqlserver
// and pool packages: node/connection descriptors, the topology and role
// enums, the generic Optional type, and the Conn contract every driver
// connection satisfies.
package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/1261385937/sql-plus-plus/internal/bind"
)

// Topology selects between a single fixed endpoint and a MySQL Group
// Replication cluster discovered and tracked by a Sentinel.
type Topology int

const (
	TopologySingle Topology = iota
	TopologyCluster
)

// Role selects which population of a cluster pool a connection is drawn
// from. RoleGeneral is used by single-node pools where master/slave
// distinction does not apply.
type Role int

const (
	RoleGeneral Role = iota
	RoleMaster
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	default:
		return "general"
	}
}

// ConnectionOptions are the credentials and target used to dial a single
// connection. ConnectTimeout overrides the driver's default connect
// timeout when non-zero, the Go realization of the teacher's
// Bucket.ConnectionTimeout field.
type ConnectionOptions struct {
	IP             string
	Port           string
	User           string
	Password       string
	ConnectTimeout time.Duration
}

// NodeInfo describes one member of a cluster topology as reported by
// performance_schema.replication_group_members.
type NodeInfo struct {
	IP   string
	Port string
	Role string // "PRIMARY" or "SECONDARY"
}

// Equal compares two nodes by IP only, ignoring port, matching the
// original's node_info::operator==.
func (n NodeInfo) Equal(o NodeInfo) bool { return n.IP == o.IP }

// Less orders nodes by IP, matching the original's node_info::operator<.
func (n NodeInfo) Less(o NodeInfo) bool { return n.IP < o.IP }

// Conn is the contract both mysql.Connection and sqlserver.Connection
// satisfy, letting the pool and facade packages stay driver-agnostic.
type Conn interface {
	Execute(sqlText string, args ...any) error
	BeginTx() error
	Commit() error
	Rollback() error
	IsHealthy() bool
	Close() error
	IP() string
}

// ScopeGuard runs a cleanup function exactly once when released, the Go
// realization of the original's scope_guard<Fun> template. The connection,
// sentinel and pool code release their resources with defer/Close rather
// than through this type.
type ScopeGuard struct {
	fn   func()
	done bool
}

// NewScopeGuard builds a guard that will call fn on its first Release.
func NewScopeGuard(fn func()) *ScopeGuard {
	return &ScopeGuard{fn: fn}
}

// Release runs the guarded cleanup if it has not already run.
func (g *ScopeGuard) Release() {
	if g.done {
		return
	}
	g.done = true
	if g.fn != nil {
		g.fn()
	}
}

// Optional is the generic NULL-capable value, the Go analogue of
// std::optional<T> and of the database/sql NullString/NullInt64 family,
// generalized with type parameters instead of one concrete type per
// builtin. It implements driver.Valuer and bind.Scanner so the binder and
// decoder handle it exactly like any other special type. The held value is
// the V field, since the Value name belongs to the driver.Valuer method.
type Optional[T any] struct {
	V     T
	Valid bool
}

// Some builds a populated Optional.
func Some[T any](v T) Optional[T] { return Optional[T]{V: v, Valid: true} }

// Value implements driver.Valuer.
func (o Optional[T]) Value() (driver.Value, error) {
	if !o.Valid {
		return nil, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(o.V)
}

// Scan implements bind.Scanner.
func (o *Optional[T]) Scan(src any) error {
	if src == nil {
		var zero T
		o.V, o.Valid = zero, false
		return nil
	}
	if v, ok := src.(T); ok {
		o.V, o.Valid = v, true
		return nil
	}
	if err := assignConvertible(&o.V, src); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

func assignConvertible(dst any, src any) error {
	dv := driver.Value(src)
	switch d := dst.(type) {
	case *int64:
		v, err := bind.ConvertInt64(dv)
		*d = v
		return err
	case *int:
		v, err := bind.ConvertInt64(dv)
		*d = int(v)
		return err
	case *int32:
		v, err := bind.ConvertInt64(dv)
		*d = int32(v)
		return err
	case *uint64:
		v, err := bind.ConvertInt64(dv)
		*d = uint64(v)
		return err
	case *float64:
		v, err := bind.ConvertFloat64(dv)
		*d = v
		return err
	case *float32:
		v, err := bind.ConvertFloat64(dv)
		*d = float32(v)
		return err
	case *string:
		v, err := bind.ConvertString(dv)
		*d = v
		return err
	case *bool:
		v, ok := dv.(bool)
		if !ok {
			return fmt.Errorf("optional: cannot convert %T to bool", dv)
		}
		*d = v
		return nil
	case *[]byte:
		v, err := bind.ConvertBytes(dv)
		*d = v
		return err
	default:
		return fmt.Errorf("optional: unsupported destination type %T", dst)
	}
}
