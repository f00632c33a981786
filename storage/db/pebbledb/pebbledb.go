// Package pebbledb implements the db.Database interface on cockroachdb's
// pebble key-value store.
package pebbledb

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/ballotrelay/ballotrelay/storage/db"
)

// PebbleDB implements db.Database.
type PebbleDB struct {
	pebble *pebble.DB
}

// New opens or creates a pebble database at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	pdb, err := pebble.Open(opts.Path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleDB{pebble: pdb}, nil
}

func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	return get(d.pebble, key)
}

func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterate(d.pebble, prefix, callback)
}

// WriteTx creates a write transaction backed by an indexed batch, so reads
// through the transaction observe its own uncommitted writes.
func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.pebble.NewIndexedBatch()}
}

func (d *PebbleDB) Close() error {
	return d.pebble.Close()
}

// WriteTx implements db.WriteTx on a pebble indexed batch.
type WriteTx struct {
	batch *pebble.Batch
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	return get(tx.batch, key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterate(tx.batch, prefix, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

func (tx *WriteTx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

func (tx *WriteTx) Commit() error {
	return tx.batch.Commit(pebble.Sync)
}

func (tx *WriteTx) Discard() {
	_ = tx.batch.Close()
}

func get(reader pebble.Reader, key []byte) ([]byte, error) {
	value, closer, err := reader.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	result := make([]byte, len(value))
	copy(result, value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return result, nil
}

func iterate(reader pebble.Reader, prefix []byte, callback func(key, value []byte) bool) error {
	iterOpts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		iterOpts.LowerBound = prefix
		iterOpts.UpperBound = prefixUpperBound(prefix)
	}
	iter, err := reader.NewIter(iterOpts)
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return iter.Close()
}

// prefixUpperBound returns the smallest key larger than all keys with the
// given prefix, or nil if no such bound exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
