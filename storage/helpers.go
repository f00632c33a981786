package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ballotrelay/ballotrelay/storage/db"
	"github.com/ballotrelay/ballotrelay/storage/db/prefixeddb"
)

// Artifact encoding/decoding
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// nextSeq increments the counter stored under name and returns its
// previous value, all within wTx so the bump commits together with the
// caller's writes.
func nextSeq(wTx db.WriteTx, name []byte) (uint64, error) {
	ctr := prefixeddb.NewPrefixedWriteTx(wTx, counterPrefix)
	var seq uint64
	data, err := ctr.Get(name)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		seq = decodeUint64(data)
	}
	if err := ctr.Set(name, encodeUint64(seq+1)); err != nil {
		return 0, err
	}
	return seq, nil
}
