package storage

import (
	"errors"
	"fmt"

	"github.com/ballotrelay/ballotrelay/log"
	"github.com/ballotrelay/ballotrelay/storage/db"
	"github.com/ballotrelay/ballotrelay/storage/db/prefixeddb"
	"github.com/ballotrelay/ballotrelay/types"
)

// appendEvents assigns sequence numbers to the events and stores them
// within wTx, so they commit together with the state change they observe.
func (s *Storage) appendEvents(wTx db.WriteTx, events ...*types.Event) error {
	if len(events) == 0 {
		return nil
	}
	evTx := prefixeddb.NewPrefixedWriteTx(wTx, eventPrefix)
	for _, ev := range events {
		seq, err := nextSeq(wTx, eventCounterKey)
		if err != nil {
			return fmt.Errorf("event sequence: %w", err)
		}
		ev.Seq = seq
		data, err := encodeArtifact(ev)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := evTx.Set(encodeUint64(seq), data); err != nil {
			return err
		}
	}
	return nil
}

// Events returns up to max events starting at sequence number fromSeq, in
// log order. A max of zero or less means no limit.
func (s *Storage) Events(fromSeq uint64, max int) ([]*types.Event, error) {
	var events []*types.Event
	rd := prefixeddb.NewPrefixedReader(s.db, eventPrefix)
	if err := rd.Iterate(nil, func(k, v []byte) bool {
		if decodeUint64(k) < fromSeq {
			return true
		}
		ev := &types.Event{}
		if err := decodeArtifact(v, ev); err != nil {
			log.Warnw("failed to decode event", "seq", decodeUint64(k), "error", err.Error())
			return true
		}
		events = append(events, ev)
		return max <= 0 || len(events) < max
	}); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// EventCount returns the number of events in the log.
func (s *Storage) EventCount() (uint64, error) {
	data, err := prefixeddb.NewPrefixedReader(s.db, counterPrefix).Get(eventCounterKey)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(data), nil
}
