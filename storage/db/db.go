// Package db defines the common key-value database interface used by the
// storage layer. Implementations live in subpackages.
package db

import "errors"

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// TypePebble identifies the pebble backed implementation.
const TypePebble = "pebble"

// Options contains the options passed to a database constructor.
type Options struct {
	Path string
}

// Reader is the read half of the database interface.
type Reader interface {
	// Get retrieves the value for the given key, or ErrKeyNotFound if
	// the key does not exist.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback with all key-value pairs whose key starts
	// with prefix, in lexicographic key order. The prefix is stripped
	// from the keys passed to the callback, and the callback slices are
	// only valid within the call. Iteration stops early if the callback
	// returns false.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a write transaction. It is not safe for concurrent use, and
// either Commit or Discard must be called once the transaction is done.
// Discard after Commit is a no-op, so it is safe to defer.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// Database is a complete key-value database.
type Database interface {
	Reader
	// WriteTx creates a new write transaction. Reads through the
	// transaction observe its own uncommitted writes.
	WriteTx() WriteTx
	// Close closes the database.
	Close() error
}
