// Package config loads the YAML-driven topology configuration, grounded
// on the teacher's internal/config/config.go defaults-application style.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1261385937/sql-plus-plus/model"
	"github.com/1261385937/sql-plus-plus/pkg/endpoint"
)

// Config is the top-level configuration for one Database instance: a
// driver ("mysql" or "sqlserver"), a topology ("single" or "cluster"),
// and the endpoint(s) to dial.
type Config struct {
	Driver   string              `yaml:"driver"`
	Topology string              `yaml:"topology"`
	Cluster  string              `yaml:"cluster"`
	User     string              `yaml:"user"`
	Password string              `yaml:"password"`
	Nodes    []endpoint.Endpoint `yaml:"nodes"`

	HealthCheckIntervalRaw string        `yaml:"health_check_interval"`
	HealthCheckInterval    time.Duration `yaml:"-"`
}

// Load reads and validates a topology configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) validate() error {
	if c.Driver != "mysql" && c.Driver != "sqlserver" {
		return fmt.Errorf("config: driver must be mysql or sqlserver, got %q", c.Driver)
	}
	if c.Topology != "single" && c.Topology != "cluster" {
		return fmt.Errorf("config: topology must be single or cluster, got %q", c.Topology)
	}
	if c.Topology == "cluster" && c.Driver != "mysql" {
		return fmt.Errorf("config: cluster topology is only supported for mysql")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("config: at least one node is required")
	}
	for i, n := range c.Nodes {
		if n.IP == "" || n.Port == "" {
			return fmt.Errorf("config: node %d missing ip/port", i)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if d, err := time.ParseDuration(c.HealthCheckIntervalRaw); err == nil {
		c.HealthCheckInterval = d
	} else {
		c.HealthCheckInterval = 15 * time.Second
	}
	for i := range c.Nodes {
		if c.Nodes[i].MaxConnections == 0 {
			c.Nodes[i].MaxConnections = 10
		}
		if c.Nodes[i].MinIdle == 0 {
			c.Nodes[i].MinIdle = 2
		}
		if c.Nodes[i].MaxIdleTime == "" {
			c.Nodes[i].MaxIdleTime = "5m"
		}
		if c.Nodes[i].ConnectionTimeout == "" {
			c.Nodes[i].ConnectionTimeout = "3s"
		}
		if c.Nodes[i].QueueTimeout == "" {
			c.Nodes[i].QueueTimeout = "30s"
		}
		if c.Nodes[i].User == "" {
			c.Nodes[i].User = c.User
		}
		if c.Nodes[i].Password == "" {
			c.Nodes[i].Password = c.Password
		}
	}
}

// PoolOptions parses node 0's pool-tuning fields into durations. Every node
// in one Database shares a single pool policy today (the sentinel discovers
// cluster members dynamically, so per-discovered-node overrides have no
// configuration source); node 0's values — defaulted the same as every
// other node by applyDefaults — stand in for the whole topology.
func (c *Config) PoolOptions() (maxConnections, minIdle int, maxIdleTime, queueTimeout, connectTimeout time.Duration) {
	n := c.Nodes[0]
	maxConnections = n.MaxConnections
	minIdle = n.MinIdle
	maxIdleTime, _ = time.ParseDuration(n.MaxIdleTime)
	queueTimeout, _ = time.ParseDuration(n.QueueTimeout)
	connectTimeout, _ = time.ParseDuration(n.ConnectionTimeout)
	return
}

// TopologyKind converts the parsed string into model.Topology.
func (c *Config) TopologyKind() model.Topology {
	if c.Topology == "cluster" {
		return model.TopologyCluster
	}
	return model.TopologySingle
}

// NodeInfos returns the configured nodes as model.NodeInfo seeds for the sentinel.
func (c *Config) NodeInfos() []model.NodeInfo {
	nodes := make([]model.NodeInfo, len(c.Nodes))
	for i, n := range c.Nodes {
		nodes[i] = model.NodeInfo{IP: n.IP, Port: n.Port}
	}
	return nodes
}
