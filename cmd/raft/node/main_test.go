package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"raftcore/internal/raft"
	"raftcore/internal/raft/storage"
)

func TestLogRecovered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft-2.db")
	store, err := storage.NewBboltStore(path)
	require.NoError(t, err)
	defer store.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core).Sugar()

	require.NoError(t, logRecovered(logger, 2, path, store))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "Starting with an empty log")

	for _, e := range []raft.LogEntry{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Append(e))
	}
	require.NoError(t, logRecovered(logger, 2, path, store))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, `[SERVER-2] Recovered 5 log entries from `+path+`, newest ["c" "d" "e"]`, logs.All()[1].Message)
}
