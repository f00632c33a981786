// Package storage persists all election and relayer state in a prefixed
// key-value store. The following prefixes are used:
//   - 'e/' for the election record
//   - 't/' for per-candidate tallies
//   - 'n/' for per-voter sequence numbers
//   - 'h/' for per-voter hasVoted flags
//   - 'b/' for settlement balances
//   - 'l/' for the append-only event log
//   - 'q/' for the pending vote intent queue
//   - 'j/' for relay job records
//   - 'c/' for internal counters
//
// The queue under 'q/' is a FIFO: entries are keyed by a monotonically
// increasing big-endian sequence number, so iterating yields them oldest
// first.
package storage

import (
	"errors"
	"sync"

	"github.com/ballotrelay/ballotrelay/storage/db"
	"github.com/ballotrelay/ballotrelay/storage/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	electionPrefix = []byte("e/")
	tallyPrefix    = []byte("t/")
	sequencePrefix = []byte("n/")
	votedPrefix    = []byte("h/")
	balancePrefix  = []byte("b/")
	eventPrefix    = []byte("l/")
	queuePrefix    = []byte("q/")
	jobPrefix      = []byte("j/")
	counterPrefix  = []byte("c/")
)

var (
	// Counter names under counterPrefix.
	eventCounterKey = []byte("events")
	queueCounterKey = []byte("queue")
)

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoMoreElements is returned by queue getters when the queue is
	// empty.
	ErrNoMoreElements = errors.New("no more elements")
	// ErrExists is returned when initializing an election that is
	// already stored.
	ErrExists = errors.New("already exists")
)

// Storage persists the election state, balances, the event log and the
// pending vote queue. Mutating methods take the global lock, so a single
// Storage can be shared between the ledger and the relayer.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance on top of the given database.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.db.Close()
}

// setArtifact encodes an artifact and stores it under prefix/key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// getArtifact decodes the artifact stored under prefix/key into out.
// Returns ErrNotFound if there is no such artifact.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return decodeArtifact(data, out)
}

// deleteArtifact removes the artifact stored under prefix/key.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}
