package relayer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/storage"
	"github.com/ballotrelay/ballotrelay/storage/db/metadb"
	"github.com/ballotrelay/ballotrelay/types"
)

const (
	testVotingStart = int64(1700000000)
	testFee         = int64(10)
	testBalance     = int64(1000)
)

type testEnv struct {
	relayer  *Relayer
	ledger   *ledger.Ledger
	stg      *storage.Storage
	clk      *clock.Mock
	election *types.Election
	owner    *ethereum.SignKeys
	signer   *ethereum.SignKeys
	voters   []*ethereum.SignKeys
}

func newTestRelayer(c *qt.C, ldg Ledger, opts ...Option) *testEnv {
	keys := make([]*ethereum.SignKeys, 5)
	for i := range keys {
		keys[i] = ethereum.NewSignKeys()
		c.Assert(keys[i].Generate(), qt.IsNil)
	}
	balances := make(map[common.Address]*types.BigInt)
	for _, k := range keys {
		balances[k.Address()] = types.NewBigInt(testBalance)
	}
	clk := clock.NewMock()
	clk.Set(time.Unix(testVotingStart, 0))
	stg := storage.New(metadb.NewTest(c))
	realLedger, err := ledger.New(stg, &ledger.Genesis{
		Name:          "Presidential Election 2024",
		Candidates:    []string{"Alice", "Bob", "Carol"},
		ElectionID:    42,
		ChainID:       1337,
		Owner:         keys[0].Address(),
		VotingStart:   testVotingStart,
		Duration:      7 * 24 * time.Hour,
		SettlementFee: types.NewBigInt(testFee),
		Balances:      balances,
	}, ledger.WithClock(clk))
	c.Assert(err, qt.IsNil)
	if ldg == nil {
		ldg = realLedger
	}
	opts = append([]Option{WithClock(clk), WithMaxElapsedTime(300 * time.Millisecond)}, opts...)
	relayer, err := New(stg, ldg, keys[1], opts...)
	c.Assert(err, qt.IsNil)
	election, err := realLedger.Election()
	c.Assert(err, qt.IsNil)
	return &testEnv{
		relayer:  relayer,
		ledger:   realLedger,
		stg:      stg,
		clk:      clk,
		election: election,
		owner:    keys[0],
		signer:   keys[1],
		voters:   keys[2:],
	}
}

func (env *testEnv) signedIntent(c *qt.C, voter *ethereum.SignKeys, candidateID, nonce uint64) (*types.VoteIntent, types.HexBytes) {
	intent := &types.VoteIntent{
		Voter:       voter.Address(),
		CandidateID: candidateID,
		ElectionID:  env.election.ElectionID,
		Nonce:       nonce,
		Deadline:    uint64(env.clk.Now().Unix()) + 3600,
	}
	signature, err := ledger.SignIntent(voter, env.election, intent)
	c.Assert(err, qt.IsNil)
	return intent, signature
}

// waitForJob polls until the job leaves the queued state.
func (env *testEnv) waitForJob(c *qt.C, id uuid.UUID) *types.RelayJob {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := env.relayer.Job(id)
		c.Assert(err, qt.IsNil)
		if job.State != types.JobStateQueued {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.Fatalf("job %s still queued after timeout", id)
	return nil
}

func TestEnqueueStructuralValidation(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)

	intent, signature := env.signedIntent(c, env.voters[0], 1, 0)

	_, err := env.relayer.Enqueue(nil, signature)
	c.Assert(err, qt.IsNotNil)

	empty := *intent
	empty.Voter = common.Address{}
	_, err = env.relayer.Enqueue(&empty, signature)
	c.Assert(err, qt.IsNotNil)

	_, err = env.relayer.Enqueue(intent, signature[:32])
	c.Assert(err, qt.IsNotNil)

	expired := *intent
	expired.Deadline = uint64(testVotingStart) - 1
	_, err = env.relayer.Enqueue(&expired, signature)
	c.Assert(err, qt.IsNotNil)

	// enqueue does not consult the ledger, so an intent the ledger would
	// reject is still accepted into the queue
	doomed := *intent
	doomed.CandidateID = 99
	job, err := env.relayer.Enqueue(&doomed, signature)
	c.Assert(err, qt.IsNil)
	c.Assert(job.State, qt.Equals, types.JobStateQueued)

	stored, err := env.relayer.Job(job.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored, qt.DeepEquals, job)

	pending, err := env.stg.PendingIntents()
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.Equals, 1)
}

func TestDrainSettlesInOrder(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)

	var jobs []*types.RelayJob
	for i, candidateID := range []uint64{1, 1, 0} {
		intent, signature := env.signedIntent(c, env.voters[i], candidateID, 0)
		job, err := env.relayer.Enqueue(intent, signature)
		c.Assert(err, qt.IsNil)
		jobs = append(jobs, job)
	}

	c.Assert(env.relayer.Start(context.Background()), qt.IsNil)
	defer env.relayer.Stop()

	for _, job := range jobs {
		settled := env.waitForJob(c, job.ID)
		c.Assert(settled.State, qt.Equals, types.JobStateSettled)
		c.Assert(settled.SettledAt, qt.Equals, testVotingStart)
	}

	tallies, err := env.ledger.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, []uint64{1, 2, 0})

	// all fees were paid by the relayer account
	balance, err := env.ledger.Balance(env.signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(balance.MathBigInt().Int64(), qt.Equals, testBalance-3*testFee)
	for i := 0; i < 3; i++ {
		balance, err := env.ledger.Balance(env.voters[i].Address())
		c.Assert(err, qt.IsNil)
		c.Assert(balance.MathBigInt().Int64(), qt.Equals, testBalance)
	}

	pending, err := env.stg.PendingIntents()
	c.Assert(err, qt.IsNil)
	c.Assert(pending, qt.Equals, 0)
}

func TestDrainSameVoterFIFO(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)
	voter := env.voters[0]

	// two intents from the same voter, enqueued before either settles
	first, firstSig := env.signedIntent(c, voter, 1, 0)
	firstJob, err := env.relayer.Enqueue(first, firstSig)
	c.Assert(err, qt.IsNil)
	second, secondSig := env.signedIntent(c, voter, 2, 1)
	secondJob, err := env.relayer.Enqueue(second, secondSig)
	c.Assert(err, qt.IsNil)

	c.Assert(env.relayer.Start(context.Background()), qt.IsNil)
	defer env.relayer.Stop()

	// the first settles and bumps the voter sequence to 1, so the second
	// passes the stale nonce check only to hit the one vote per voter rule
	settled := env.waitForJob(c, firstJob.ID)
	c.Assert(settled.State, qt.Equals, types.JobStateSettled)
	dropped := env.waitForJob(c, secondJob.ID)
	c.Assert(dropped.State, qt.Equals, types.JobStateDropped)
	c.Assert(dropped.Reason, qt.Contains, "already voted")

	sequence, err := env.ledger.VoterSequence(voter.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(sequence, qt.Equals, uint64(1))
	tallies, err := env.ledger.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, []uint64{0, 1, 0})
}

func TestDrainDropsExpiredIntent(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)

	intent, signature := env.signedIntent(c, env.voters[0], 0, 0)
	job, err := env.relayer.Enqueue(intent, signature)
	c.Assert(err, qt.IsNil)

	// the deadline passes while the intent sits in the queue
	env.clk.Set(time.Unix(int64(intent.Deadline)+1, 0))
	c.Assert(env.relayer.Start(context.Background()), qt.IsNil)
	defer env.relayer.Stop()

	dropped := env.waitForJob(c, job.ID)
	c.Assert(dropped.State, qt.Equals, types.JobStateDropped)
	c.Assert(dropped.Reason, qt.Equals, "intent deadline passed")

	tallies, err := env.ledger.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, []uint64{0, 0, 0})
}

func TestDrainDropsStaleNonce(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)
	voter := env.voters[0]

	queued, signature := env.signedIntent(c, voter, 2, 0)
	job, err := env.relayer.Enqueue(queued, signature)
	c.Assert(err, qt.IsNil)

	// the voter settles directly before the relayer drains the queue, so
	// the queued intent's nonce goes stale
	direct, directSig := env.signedIntent(c, voter, 1, 0)
	_, err = env.ledger.SubmitVote(voter.Address(), direct, directSig)
	c.Assert(err, qt.IsNil)

	c.Assert(env.relayer.Start(context.Background()), qt.IsNil)
	defer env.relayer.Stop()

	dropped := env.waitForJob(c, job.ID)
	c.Assert(dropped.State, qt.Equals, types.JobStateDropped)
	c.Assert(dropped.Reason, qt.Contains, "stale nonce")

	// the direct vote stands, the queued one left no trace
	tallies, err := env.ledger.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, []uint64{0, 1, 0})
}

func TestDrainDropsRejectedIntent(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)

	// structurally sound but signed by the wrong key, the ledger rejects
	// it at settlement and the job is dropped without retry
	intent, _ := env.signedIntent(c, env.voters[0], 0, 0)
	_, forged := env.signedIntent(c, env.voters[1], 0, 0)
	job, err := env.relayer.Enqueue(intent, forged)
	c.Assert(err, qt.IsNil)

	c.Assert(env.relayer.Start(context.Background()), qt.IsNil)
	defer env.relayer.Stop()

	dropped := env.waitForJob(c, job.ID)
	c.Assert(dropped.State, qt.Equals, types.JobStateDropped)
	c.Assert(dropped.Reason, qt.Contains, "signature does not match voter")

	// the rejected attempt still burned the relayer fee
	balance, err := env.ledger.Balance(env.signer.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(balance.MathBigInt().Int64(), qt.Equals, testBalance-testFee)
}

// flakyLedger fails a number of submissions with a transient error before
// letting them through.
type flakyLedger struct {
	Ledger
	failures int
}

func (f *flakyLedger) SubmitVote(caller common.Address, intent *types.VoteIntent, signature []byte) (*ledger.VoteReceipt, error) {
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("temporary outage")
	}
	return f.Ledger.SubmitVote(caller, intent, signature)
}

func TestDrainRetriesTransientFailures(t *testing.T) {
	c := qt.New(t)
	flaky := &flakyLedger{failures: 2}
	env := newTestRelayer(c, flaky)
	flaky.Ledger = env.ledger

	intent, signature := env.signedIntent(c, env.voters[0], 1, 0)
	job, err := env.relayer.Enqueue(intent, signature)
	c.Assert(err, qt.IsNil)

	c.Assert(env.relayer.Start(context.Background()), qt.IsNil)
	defer env.relayer.Stop()

	settled := env.waitForJob(c, job.ID)
	c.Assert(settled.State, qt.Equals, types.JobStateSettled)

	tallies, err := env.ledger.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, []uint64{0, 1, 0})
}

func TestQueueSurvivesRelayerRestart(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)

	var jobs []*types.RelayJob
	for i := 0; i < 2; i++ {
		intent, signature := env.signedIntent(c, env.voters[i], 0, 0)
		job, err := env.relayer.Enqueue(intent, signature)
		c.Assert(err, qt.IsNil)
		jobs = append(jobs, job)
	}

	// a fresh relayer over the same storage picks up the queued intents
	restarted, err := New(env.stg, env.ledger, env.signer,
		WithClock(env.clk), WithMaxElapsedTime(300*time.Millisecond))
	c.Assert(err, qt.IsNil)
	c.Assert(restarted.Start(context.Background()), qt.IsNil)
	defer restarted.Stop()

	for _, job := range jobs {
		deadline := time.Now().Add(5 * time.Second)
		for {
			got, err := restarted.Job(job.ID)
			c.Assert(err, qt.IsNil)
			if got.State == types.JobStateSettled {
				break
			}
			if !time.Now().Before(deadline) {
				c.Fatalf("job %s not settled after restart", job.ID)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	tallies, err := env.ledger.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, []uint64{2, 0, 0})
}

func TestStatus(t *testing.T) {
	c := qt.New(t)
	env := newTestRelayer(c, nil)

	status, err := env.relayer.Status()
	c.Assert(err, qt.IsNil)
	c.Assert(status.Address, qt.Equals, env.signer.Address())
	c.Assert(status.ChainID, qt.Equals, uint64(1337))
	c.Assert(status.ElectionID, qt.Equals, uint64(42))
	c.Assert(status.Pending, qt.Equals, 0)
	c.Assert(status.Balance.MathBigInt().Int64(), qt.Equals, testBalance)

	intent, signature := env.signedIntent(c, env.voters[0], 0, 0)
	job, err := env.relayer.Enqueue(intent, signature)
	c.Assert(err, qt.IsNil)

	status, err = env.relayer.Status()
	c.Assert(err, qt.IsNil)
	c.Assert(status.Pending, qt.Equals, 1)

	c.Assert(env.relayer.Start(context.Background()), qt.IsNil)
	defer env.relayer.Stop()
	settled := env.waitForJob(c, job.ID)
	c.Assert(settled.State, qt.Equals, types.JobStateSettled)

	status, err = env.relayer.Status()
	c.Assert(err, qt.IsNil)
	c.Assert(status.Pending, qt.Equals, 0)
	c.Assert(status.Balance.MathBigInt().Int64(), qt.Equals, testBalance-testFee)
}
