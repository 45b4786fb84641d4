package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/1261385937/sql-plus-plus/model"
)

func TestMembersQueryWithoutRoleFilter(t *testing.T) {
	q := membersQuery("")
	assert.Equal(t, "select member_host, member_port, member_role"+
		" from performance_schema.replication_group_members"+
		" where member_state = 'ONLINE'", q)
}

func TestMembersQueryWithRoleFilter(t *testing.T) {
	q := membersQuery("PRIMARY")
	assert.Contains(t, q, "and member_role = 'PRIMARY'")
}

func TestSameNodesOrderSensitive(t *testing.T) {
	a := []model.NodeInfo{{IP: "a"}, {IP: "b"}}
	b := []model.NodeInfo{{IP: "a"}, {IP: "b"}}
	assert.True(t, sameNodes(a, b))

	c := []model.NodeInfo{{IP: "b"}, {IP: "a"}}
	assert.False(t, sameNodes(a, c))
}

func TestSameNodesLengthMismatch(t *testing.T) {
	a := []model.NodeInfo{{IP: "a"}}
	b := []model.NodeInfo{{IP: "a"}, {IP: "b"}}
	assert.False(t, sameNodes(a, b))
}

func TestUnionNodesNeverShrinks(t *testing.T) {
	seeds := []model.NodeInfo{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}}
	online := []model.NodeInfo{{IP: "10.0.0.2"}, {IP: "10.0.0.3"}}

	union := unionNodes(seeds, online)

	ips := make([]string, len(union))
	for i, n := range union {
		ips[i] = n.IP
	}
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, ips)
}

func TestUnionNodesSorted(t *testing.T) {
	union := unionNodes(
		[]model.NodeInfo{{IP: "10.0.0.3"}},
		[]model.NodeInfo{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}},
	)
	assert.Equal(t, []model.NodeInfo{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}, {IP: "10.0.0.3"}}, union)
}

func TestNewSentinelSortsSeeds(t *testing.T) {
	s := NewSentinel("c1", []model.NodeInfo{{IP: "10.0.0.2"}, {IP: "10.0.0.1"}}, "u", "p")
	assert.Equal(t, "10.0.0.1", s.seedNodes[0].IP)
	assert.Equal(t, "10.0.0.2", s.seedNodes[1].IP)
}
