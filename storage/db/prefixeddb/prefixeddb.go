// Package prefixeddb wraps database readers and transactions so that all
// keys are scoped under a fixed prefix.
package prefixeddb

import "github.com/ballotrelay/ballotrelay/storage/db"

// PrefixedReader wraps a db.Reader prepending a prefix to all keys.
type PrefixedReader struct {
	reader db.Reader
	prefix []byte
}

func NewPrefixedReader(reader db.Reader, prefix []byte) *PrefixedReader {
	return &PrefixedReader{reader: reader, prefix: prefix}
}

func (r *PrefixedReader) Get(key []byte) ([]byte, error) {
	return r.reader.Get(concat(r.prefix, key))
}

func (r *PrefixedReader) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return r.reader.Iterate(concat(r.prefix, prefix), callback)
}

// PrefixedWriteTx wraps a db.WriteTx prepending a prefix to all keys.
// Multiple PrefixedWriteTx can share the same underlying transaction to
// commit writes under different prefixes atomically.
type PrefixedWriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{tx: tx, prefix: prefix}
}

func (tx *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return tx.tx.Get(concat(tx.prefix, key))
}

func (tx *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return tx.tx.Iterate(concat(tx.prefix, prefix), callback)
}

func (tx *PrefixedWriteTx) Set(key, value []byte) error {
	return tx.tx.Set(concat(tx.prefix, key), value)
}

func (tx *PrefixedWriteTx) Delete(key []byte) error {
	return tx.tx.Delete(concat(tx.prefix, key))
}

func (tx *PrefixedWriteTx) Commit() error {
	return tx.tx.Commit()
}

func (tx *PrefixedWriteTx) Discard() {
	tx.tx.Discard()
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
