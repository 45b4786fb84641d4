package sqlpp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1261385937/sql-plus-plus/internal/config"
	"github.com/1261385937/sql-plus-plus/model"
	"github.com/1261385937/sql-plus-plus/pool"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlpp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestNewSingleMySQLTopology(t *testing.T) {
	db := NewSingleMySQL("t", model.ConnectionOptions{IP: "127.0.0.1", Port: "3306"}, pool.Options{})
	assert.Equal(t, model.TopologySingle, db.Topology())
	assert.Nil(t, db.sentinel)
}

func TestNewSingleSQLServerTopology(t *testing.T) {
	db := NewSingleSQLServer("t", model.ConnectionOptions{IP: "127.0.0.1", Port: "1433"}, pool.Options{})
	assert.Equal(t, model.TopologySingle, db.Topology())
}

func TestDatabaseCloseWithoutSentinel(t *testing.T) {
	db := NewSingleMySQL("t", model.ConnectionOptions{IP: "127.0.0.1", Port: "3306"}, pool.Options{})
	require.NoError(t, db.Close())
}

func TestConfigLoadRejectsUnknownDriver(t *testing.T) {
	cfg, err := config.Load(writeTempConfig(t, `
driver: oracle
topology: single
nodes:
  - ip: 127.0.0.1
    port: "1521"
`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestNewFromConfigBuildsSingleMySQL(t *testing.T) {
	cfg, err := config.Load(writeTempConfig(t, `
driver: mysql
topology: single
cluster: t
user: app
password: secret
nodes:
  - ip: 127.0.0.1
    port: "3306"
`))
	require.NoError(t, err)

	db, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.TopologySingle, db.Topology())
	require.NoError(t, db.Close())
}

func TestNewFromConfigBuildsMySQLCluster(t *testing.T) {
	cfg, err := config.Load(writeTempConfig(t, `
driver: mysql
topology: cluster
cluster: orders
user: app
password: secret
nodes:
  - ip: 10.0.0.1
    port: "3306"
  - ip: 10.0.0.2
    port: "3306"
`))
	require.NoError(t, err)

	db, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.TopologyCluster, db.Topology())
	require.NoError(t, db.Close())
}
