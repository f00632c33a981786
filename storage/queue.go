package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ballotrelay/ballotrelay/storage/db/prefixeddb"
	"github.com/ballotrelay/ballotrelay/types"
)

// PushIntent appends a pending vote intent to the durable FIFO queue and
// stores its job record, atomically.
func (s *Storage) PushIntent(item *types.QueuedIntent, job *types.RelayJob) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	val, err := encodeArtifact(item)
	if err != nil {
		return fmt.Errorf("encode queued intent: %w", err)
	}
	jobData, err := encodeArtifact(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	seq, err := nextSeq(wTx, queueCounterKey)
	if err != nil {
		return fmt.Errorf("queue sequence: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, queuePrefix).Set(encodeUint64(seq), val); err != nil {
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, jobPrefix).Set(job.ID[:], jobData); err != nil {
		return err
	}
	return wTx.Commit()
}

// NextIntent returns the oldest pending intent and its queue key. The
// entry stays queued until MarkIntentDone is called with the key, so an
// intent being processed at crash time is picked up again on restart.
// Returns ErrNoMoreElements when the queue is empty.
func (s *Storage) NextIntent() (*types.QueuedIntent, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var chosenKey, chosenVal []byte
	pr := prefixeddb.NewPrefixedReader(s.db, queuePrefix)
	if err := pr.Iterate(nil, func(k, v []byte) bool {
		chosenKey = append([]byte{}, k...)
		chosenVal = append([]byte{}, v...)
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate queue: %w", err)
	}
	if chosenVal == nil {
		return nil, nil, ErrNoMoreElements
	}
	item := &types.QueuedIntent{}
	if err := decodeArtifact(chosenVal, item); err != nil {
		return nil, nil, fmt.Errorf("decode queued intent: %w", err)
	}
	return item, chosenKey, nil
}

// MarkIntentDone removes the queue entry and stores the final job record,
// atomically. The job should be in its terminal state (settled or
// dropped) by now.
func (s *Storage) MarkIntentDone(key []byte, job *types.RelayJob) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	jobData, err := encodeArtifact(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, queuePrefix).Delete(key); err != nil {
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, jobPrefix).Set(job.ID[:], jobData); err != nil {
		return err
	}
	return wTx.Commit()
}

// PendingIntents returns the number of queued intents.
func (s *Storage) PendingIntents() (int, error) {
	count := 0
	pr := prefixeddb.NewPrefixedReader(s.db, queuePrefix)
	if err := pr.Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		return 0, fmt.Errorf("iterate queue: %w", err)
	}
	return count, nil
}

// Job returns the job record with the given id. Returns ErrNotFound if it
// does not exist.
func (s *Storage) Job(id uuid.UUID) (*types.RelayJob, error) {
	job := &types.RelayJob{}
	if err := s.getArtifact(jobPrefix, id[:], job); err != nil {
		return nil, err
	}
	return job, nil
}
