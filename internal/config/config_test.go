package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"raftcore/internal/raft"
)

func Test_ReadConfig(t *testing.T) {
	c, err := ReadConfig("testdata/cluster.yaml")
	require.NoError(t, err)

	assert.Equal(t, "./data", c.Dir)
	assert.Equal(t, 150*time.Millisecond, c.ElectionTimeout.Min)
	assert.Equal(t, 300*time.Millisecond, c.ElectionTimeout.Max)
	assert.Equal(t, 50*time.Millisecond, c.HeartbeatInterval)
	require.Len(t, c.Peers, 3)
	assert.Equal(t, Peer{ID: 3, Address: "localhost:50053"}, c.Peers[1])

	counting, err := c.Counting()
	require.NoError(t, err)
	assert.Equal(t, raft.CountGranted, counting)

	lvl, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)
}

func Test_ReadConfig_Defaults(t *testing.T) {
	c, err := ReadConfig("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Zero(t, c.ElectionTimeout.Min)
	assert.Zero(t, c.HeartbeatInterval)
	counting, err := c.Counting()
	require.NoError(t, err)
	assert.Equal(t, raft.CountDelivered, counting)
	lvl, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)
}

func Test_ReadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ReadConfig("testdata/nope.yaml")
		assert.Error(t, err)
	})

	t.Run("duplicate peer", func(t *testing.T) {
		_, err := ReadConfig("testdata/duplicate.yaml")
		assert.ErrorIs(t, err, raft.ErrInvalidConfig)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := ReadConfig("testdata/bad_duration.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse")
	})
}

func TestCluster_Validate(t *testing.T) {
	valid := func() *Cluster {
		return &Cluster{Peers: []Peer{{ID: 1, Address: "a"}, {ID: 2, Address: "b"}}}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Cluster){
		"no peers":          func(c *Cluster) { c.Peers = nil },
		"zero id":           func(c *Cluster) { c.Peers[0].ID = 0 },
		"missing address":   func(c *Cluster) { c.Peers[1].Address = "" },
		"negative duration": func(c *Cluster) { c.HeartbeatInterval = -time.Second },
		"max below min":     func(c *Cluster) { c.ElectionTimeout = Range{Min: time.Second, Max: time.Millisecond} },
		"slow heartbeat":    func(c *Cluster) { c.ElectionTimeout.Min, c.HeartbeatInterval = time.Second, time.Minute },
		"unknown counting":  func(c *Cluster) { c.VoteCounting = "all" },
		"unknown log level": func(c *Cluster) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.ErrorIs(t, c.Validate(), raft.ErrInvalidConfig)
		})
	}
}

func TestCluster_Peer(t *testing.T) {
	c, err := ReadConfig("testdata/cluster.yaml")
	require.NoError(t, err)

	p, err := c.Peer(2)
	require.NoError(t, err)
	assert.Equal(t, "localhost:50052", p.Address)

	_, err = c.Peer(9)
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestCluster_Links(t *testing.T) {
	c, err := ReadConfig("testdata/cluster.yaml")
	require.NoError(t, err)

	assert.Equal(t, []raft.PeerID{3, 2}, c.Links(1))
	assert.Equal(t, []raft.PeerID{1, 3}, c.Links(2))
	// An id outside the file is linked to everyone
	assert.Equal(t, []raft.PeerID{1, 3, 2}, c.Links(9))
}
