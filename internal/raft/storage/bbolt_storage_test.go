package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"raftcore/internal/raft"
)

func createTempDB(t *testing.T) (*BboltStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, db)
	t.Cleanup(func() { db.Close() })

	return db, dbPath
}

func TestNewBboltStore(t *testing.T) {
	t.Run("creates new database successfully", func(t *testing.T) {
		db, dbPath := createTempDB(t)

		assert.NotNil(t, db.conn)

		// Verify file was created
		_, err := os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("fails with invalid path", func(t *testing.T) {
		db, err := NewBboltStore("/invalid/path/that/does/not/exist/test.db")
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestBboltStore_Append(t *testing.T) {
	db, _ := createTempDB(t)

	t.Run("empty log", func(t *testing.T) {
		entries, err := db.Entries()
		require.NoError(t, err)
		assert.Empty(t, entries)

		last, err := db.LastIndex()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), last)
	})

	t.Run("keeps append order", func(t *testing.T) {
		require.NoError(t, db.Append("[logterm: 1] cast vote for 0 at term 1"))
		require.NoError(t, db.Append("new leader 0 at term 1"))
		require.NoError(t, db.Append(""))

		entries, err := db.Entries()
		require.NoError(t, err)
		assert.Equal(t, []raft.LogEntry{
			"[logterm: 1] cast vote for 0 at term 1",
			"new leader 0 at term 1",
			"",
		}, entries)

		last, err := db.LastIndex()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), last)
	})

	t.Run("entries from an index", func(t *testing.T) {
		entries, err := db.EntriesFrom(2)
		require.NoError(t, err)
		assert.Equal(t, []raft.LogEntry{"new leader 0 at term 1", ""}, entries)

		entries, err = db.EntriesFrom(10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestBboltStore_Persistence(t *testing.T) {
	db, dbPath := createTempDB(t)
	require.NoError(t, db.Append("a"))
	require.NoError(t, db.Append("b"))
	require.NoError(t, db.Close())

	reopened, err := NewBboltStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Append("c"))
	entries, err := reopened.Entries()
	require.NoError(t, err)
	assert.Equal(t, []raft.LogEntry{"a", "b", "c"}, entries)
}

func TestBboltStore_CorruptRecord(t *testing.T) {
	db, _ := createTempDB(t)
	require.NoError(t, db.Append("a"))

	err := db.conn.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(logBucket).Put(uint64ToBytes(2), []byte{0xc1})
	})
	require.NoError(t, err)

	_, err = db.Entries()
	assert.ErrorContains(t, err, "index 2")
}

func TestBboltStore_BacksAPeer(t *testing.T) {
	db, _ := createTempDB(t)

	p, err := raft.NewWithConfig(1, &raft.Config{LogStore: db})
	require.NoError(t, err)

	require.NoError(t, p.OnRcvMessage(raft.NewRequestVotes(2, 1)))
	require.NoError(t, p.OnRcvMessage(raft.NewReplicateOrHeartbeat(2, "new leader 2 at term 1")))

	logs, err := p.Logs()
	require.NoError(t, err)
	assert.Equal(t, []raft.LogEntry{
		"[logterm: 1] cast vote for 2 at term 1",
		"new leader 2 at term 1",
	}, logs)
}

func TestUint64Conversion(t *testing.T) {
	for _, n := range []uint64{0, 1, 255, 256, 1 << 40, ^uint64(0)} {
		assert.Equal(t, n, bytesToUint64(uint64ToBytes(n)))
	}
	assert.Less(t, string(uint64ToBytes(255)), string(uint64ToBytes(256)))
}
