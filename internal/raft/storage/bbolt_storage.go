package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"raftcore/internal/raft"
)

// Bucket names
var logBucket = []byte("logs")

// record is the msgpack value stored under each log key
type record struct {
	Index      uint64        `msgpack:"index"`
	Entry      raft.LogEntry `msgpack:"entry"`
	AppendedAt time.Time     `msgpack:"appended_at"`
}

// BboltStore is a raft.LogStore persisted in a bbolt database. Keys are big-endian sequence numbers, so a cursor
// walks the log in append order.
type BboltStore struct {
	conn *bbolt.DB
}

var _ raft.LogStore = (*BboltStore)(nil)

// NewBboltStore opens or creates the database at path
func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(logBucket); err != nil {
			return fmt.Errorf("failed to create log bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BboltStore{conn: db}, nil
}

// Append stores entry after the last one. The entry is durable once Append returns.
func (b *BboltStore) Append(entry raft.LogEntry) error {
	return b.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(logBucket)

		index, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate log index: %w", err)
		}

		data, err := msgpack.Marshal(&record{Index: index, Entry: entry, AppendedAt: time.Now()})
		if err != nil {
			return fmt.Errorf("failed to marshal log entry: %w", err)
		}
		return bucket.Put(uint64ToBytes(index), data)
	})
}

// Entries returns the whole log, oldest first
func (b *BboltStore) Entries() ([]raft.LogEntry, error) {
	return b.EntriesFrom(1)
}

// EntriesFrom returns every entry with an index of at least startIndex. Indexes start at 1.
func (b *BboltStore) EntriesFrom(startIndex uint64) ([]raft.LogEntry, error) {
	entries := make([]raft.LogEntry, 0)
	err := b.conn.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(logBucket).Cursor()

		for k, v := cursor.Seek(uint64ToBytes(startIndex)); k != nil; k, v = cursor.Next() {
			var rec record
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal log entry at index %d: %w", bytesToUint64(k), err)
			}
			entries = append(entries, rec.Entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LastIndex returns the index of the last log entry (0 if log is empty)
func (b *BboltStore) LastIndex() (uint64, error) {
	var lastIndex uint64
	err := b.conn.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(logBucket).Cursor().Last()
		if k != nil {
			lastIndex = bytesToUint64(k)
		}
		return nil
	})
	return lastIndex, err
}

// Close closes the storage connection
func (b *BboltStore) Close() error {
	return b.conn.Close()
}

// Helper functions for uint64 <-> []byte conversion
func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
