package storage

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/ballotrelay/ballotrelay/storage/db"
	"github.com/ballotrelay/ballotrelay/storage/db/metadb"
	"github.com/ballotrelay/ballotrelay/types"
)

func testQueuedIntent(i int) (*types.QueuedIntent, *types.RelayJob) {
	item := &types.QueuedIntent{
		JobID: uuid.New(),
		Intent: &types.VoteIntent{
			Voter:       common.BytesToAddress(bytes.Repeat([]byte{byte(i + 1)}, 20)),
			CandidateID: uint64(i),
			ElectionID:  1,
			Nonce:       0,
			Deadline:    1700000000,
		},
		Signature:  bytes.Repeat([]byte{0x01}, 65),
		EnqueuedAt: int64(1000 + i),
	}
	job := &types.RelayJob{
		ID:          item.JobID,
		State:       types.JobStateQueued,
		Voter:       item.Intent.Voter,
		CandidateID: item.Intent.CandidateID,
		Nonce:       item.Intent.Nonce,
		EnqueuedAt:  item.EnqueuedAt,
	}
	return item, job
}

func TestIntentQueueFIFO(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	_, _, err := stg.NextIntent()
	c.Assert(err, qt.ErrorIs, ErrNoMoreElements)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		item, job := testQueuedIntent(i)
		ids = append(ids, item.JobID)
		c.Assert(stg.PushIntent(item, job), qt.IsNil)
	}

	pending, err := stg.PendingIntents()
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.Equals, 3)

	// entries come out in insertion order
	for i := 0; i < 3; i++ {
		item, key, err := stg.NextIntent()
		c.Assert(err, qt.IsNil)
		c.Assert(item.JobID, qt.Equals, ids[i])

		// the head stays queued until marked done
		again, _, err := stg.NextIntent()
		c.Assert(err, qt.IsNil)
		c.Assert(again.JobID, qt.Equals, ids[i])

		job, err := stg.Job(ids[i])
		c.Assert(err, qt.IsNil)
		c.Assert(job.State, qt.Equals, types.JobStateQueued)

		job.State = types.JobStateSettled
		job.SettledAt = 2000
		c.Assert(stg.MarkIntentDone(key, job), qt.IsNil)

		job, err = stg.Job(ids[i])
		c.Assert(err, qt.IsNil)
		c.Assert(job.State, qt.Equals, types.JobStateSettled)
		c.Assert(job.SettledAt, qt.Equals, int64(2000))
	}

	_, _, err = stg.NextIntent()
	c.Assert(err, qt.ErrorIs, ErrNoMoreElements)

	pending, err = stg.PendingIntents()
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.Equals, 0)

	_, err = stg.Job(uuid.New())
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestIntentQueueDurability(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	database, err := metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	stg := New(database)

	first, firstJob := testQueuedIntent(0)
	second, secondJob := testQueuedIntent(1)
	c.Assert(stg.PushIntent(first, firstJob), qt.IsNil)
	c.Assert(stg.PushIntent(second, secondJob), qt.IsNil)
	stg.Close()

	// queued intents and job records survive a restart
	database, err = metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	stg = New(database)
	defer stg.Close()

	pending, err := stg.PendingIntents()
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.Equals, 2)

	item, _, err := stg.NextIntent()
	c.Assert(err, qt.IsNil)
	c.Assert(item.JobID, qt.Equals, first.JobID)
	c.Assert(item.Intent, qt.DeepEquals, first.Intent)

	job, err := stg.Job(second.JobID)
	c.Assert(err, qt.IsNil)
	c.Assert(job.State, qt.Equals, types.JobStateQueued)
}
