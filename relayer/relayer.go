// Package relayer accepts signed vote intents on behalf of voters,
// persists them in a durable FIFO queue and settles them on the election
// ledger in arrival order, paying the settlement fee from its own
// account. A single drainer goroutine owns the head of the queue, so
// settlement order always matches enqueue order.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/log"
	"github.com/ballotrelay/ballotrelay/storage"
	"github.com/ballotrelay/ballotrelay/types"
)

const (
	// tickInterval is how often the drainer polls the queue when idle.
	tickInterval = time.Second
	// defaultMaxElapsedTime bounds the retry window for transient
	// settlement failures before the attempt is given up for this pass.
	defaultMaxElapsedTime = 30 * time.Second
)

// Ledger is the part of the election ledger the relayer drives.
type Ledger interface {
	SubmitVote(caller common.Address, intent *types.VoteIntent, signature []byte) (*ledger.VoteReceipt, error)
	VoterSequence(voter common.Address) (uint64, error)
	Election() (*types.Election, error)
	Balance(addr common.Address) (*types.BigInt, error)
}

// Status is the relayer health report served by the API.
type Status struct {
	Address    common.Address `json:"address"`
	Balance    *types.BigInt  `json:"balance"`
	ChainID    uint64         `json:"chainId"`
	ElectionID uint64         `json:"electionId"`
	Pending    int            `json:"pending"`
}

// Relayer queues vote intents and settles them on the ledger.
type Relayer struct {
	stg        *storage.Storage
	ledger     Ledger
	signer     *ethereum.SignKeys
	clk        clock.Clock
	maxElapsed time.Duration

	// kick wakes the drainer as soon as an intent is enqueued, without
	// waiting for the next tick.
	kick chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Relayer.
type Option func(*Relayer)

// WithClock replaces the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(r *Relayer) { r.clk = clk }
}

// WithMaxElapsedTime bounds how long one settlement attempt retries
// transient failures before giving up for this pass.
func WithMaxElapsedTime(d time.Duration) Option {
	return func(r *Relayer) { r.maxElapsed = d }
}

// New creates a Relayer that settles intents with the given signer
// account. The signer pays the settlement fee for every relayed vote.
func New(stg *storage.Storage, ldg Ledger, signer *ethereum.SignKeys, opts ...Option) (*Relayer, error) {
	if stg == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if ldg == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	r := &Relayer{
		stg:        stg,
		ledger:     ldg,
		signer:     signer,
		clk:        clock.New(),
		maxElapsed: defaultMaxElapsedTime,
		kick:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Enqueue validates the shape of a signed intent and appends it to the
// durable queue. Only structural checks happen here; admission against
// election state runs on the ledger when the intent is settled. Returns
// the job handle voters use to track the outcome.
func (r *Relayer) Enqueue(intent *types.VoteIntent, signature types.HexBytes) (*types.RelayJob, error) {
	if intent == nil {
		return nil, fmt.Errorf("vote intent cannot be nil")
	}
	if intent.Voter == (common.Address{}) {
		return nil, fmt.Errorf("intent voter address is empty")
	}
	if len(signature) != ethereum.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", ethereum.SignatureLength, len(signature))
	}
	now := r.clk.Now().Unix()
	if uint64(now) > intent.Deadline {
		return nil, fmt.Errorf("intent deadline %d already passed", intent.Deadline)
	}
	job := &types.RelayJob{
		ID:          uuid.New(),
		State:       types.JobStateQueued,
		Voter:       intent.Voter,
		CandidateID: intent.CandidateID,
		Nonce:       intent.Nonce,
		EnqueuedAt:  now,
	}
	if err := r.stg.PushIntent(&types.QueuedIntent{
		JobID:      job.ID,
		Intent:     intent,
		Signature:  signature,
		EnqueuedAt: now,
	}, job); err != nil {
		return nil, fmt.Errorf("push intent: %w", err)
	}
	log.Debugw("intent enqueued",
		"jobId", job.ID.String(),
		"voter", intent.Voter.Hex(),
		"candidateId", intent.CandidateID,
		"nonce", intent.Nonce)
	select {
	case r.kick <- struct{}{}:
	default:
	}
	return job, nil
}

// Job returns the tracked state of an enqueued intent.
func (r *Relayer) Job(id uuid.UUID) (*types.RelayJob, error) {
	return r.stg.Job(id)
}

// Status reports the relayer identity, its settlement balance and the
// queue depth.
func (r *Relayer) Status() (*Status, error) {
	pending, err := r.stg.PendingIntents()
	if err != nil {
		return nil, fmt.Errorf("count pending intents: %w", err)
	}
	balance, err := r.ledger.Balance(r.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("read relayer balance: %w", err)
	}
	election, err := r.ledger.Election()
	if err != nil {
		return nil, fmt.Errorf("read election: %w", err)
	}
	return &Status{
		Address:    r.signer.Address(),
		Balance:    balance,
		ChainID:    election.ChainID,
		ElectionID: election.ElectionID,
		Pending:    pending,
	}, nil
}

// Address returns the relayer settlement account address.
func (r *Relayer) Address() common.Address {
	return r.signer.Address()
}

// Start launches the drainer goroutine. It creates a new context derived
// from the provided one to control the drainer's lifecycle.
func (r *Relayer) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.startDrainer()
	log.Infow("relayer started", "address", r.signer.AddressString())
	return nil
}

// Stop shuts down the drainer by canceling its context. It is safe to
// call Stop multiple times.
func (r *Relayer) Stop() error {
	if r.cancel != nil {
		r.cancel()
		log.Infow("relayer stopped")
	}
	return nil
}

// startDrainer runs the single settlement loop. Queue entries stay at
// the head until they reach a terminal job state, so a crash between
// settling and marking only causes a harmless re-submission that the
// ledger nonce check turns into a no-op.
func (r *Relayer) startDrainer() {
	ticker := time.NewTicker(tickInterval)
	go func() {
		defer ticker.Stop()
		log.Infow("intent drainer started")

		for {
			select {
			case <-r.ctx.Done():
				log.Infow("intent drainer stopped")
				return
			default:
			}

			item, key, err := r.stg.NextIntent()
			if err != nil {
				if !errors.Is(err, storage.ErrNoMoreElements) {
					log.Errorw(err, "failed to get next intent")
				}
				select {
				case <-ticker.C:
				case <-r.kick:
				case <-r.ctx.Done():
					log.Infow("intent drainer stopped")
					return
				}
				continue
			}

			if err := r.settle(item, key); err != nil {
				if r.ctx.Err() != nil {
					continue
				}
				log.Warnw("intent settlement deferred",
					"jobId", item.JobID.String(),
					"error", err.Error())
				select {
				case <-ticker.C:
				case <-r.ctx.Done():
				}
			}
		}
	}()
}

// settle drives one queued intent to a terminal job state. Deterministic
// ledger rejections drop the job with no retry. Transient failures, like
// an exhausted relayer balance or a storage fault, are retried with
// exponential backoff; if the retry window elapses an error is returned
// and the entry stays at the head of the queue for the next pass.
func (r *Relayer) settle(item *types.QueuedIntent, key []byte) error {
	intent := item.Intent
	start := time.Now()

	// queue latency may have consumed the deadline, check it again
	if uint64(r.clk.Now().Unix()) > intent.Deadline {
		return r.drop(item, key, "intent deadline passed")
	}
	// skip intents the ledger can no longer accept because the voter
	// sequence has moved past them
	sequence, err := r.ledger.VoterSequence(intent.Voter)
	if err != nil {
		return fmt.Errorf("read voter sequence: %w", err)
	}
	if intent.Nonce != sequence {
		return r.drop(item, key, fmt.Sprintf("stale nonce %d, voter sequence is %d", intent.Nonce, sequence))
	}

	var receipt *ledger.VoteReceipt
	err = backoff.Retry(func() error {
		var submitErr error
		receipt, submitErr = r.ledger.SubmitVote(r.signer.Address(), intent, item.Signature)
		if ledger.IsRejection(submitErr) {
			return backoff.Permanent(submitErr)
		}
		return submitErr
	}, backoff.WithContext(r.newBackOff(), r.ctx))
	if ledger.IsRejection(err) {
		return r.drop(item, key, err.Error())
	}
	if err != nil {
		return fmt.Errorf("submit vote: %w", err)
	}

	if err := r.stg.MarkIntentDone(key, &types.RelayJob{
		ID:          item.JobID,
		State:       types.JobStateSettled,
		Voter:       intent.Voter,
		CandidateID: intent.CandidateID,
		Nonce:       intent.Nonce,
		EnqueuedAt:  item.EnqueuedAt,
		SettledAt:   r.clk.Now().Unix(),
	}); err != nil {
		return fmt.Errorf("mark intent settled: %w", err)
	}
	log.Infow("intent settled",
		"jobId", item.JobID.String(),
		"voter", intent.Voter.Hex(),
		"candidateId", intent.CandidateID,
		"tally", receipt.Tally,
		"duration", time.Since(start).String())
	return nil
}

// drop marks a job terminally failed. Rejected intents are never retried.
func (r *Relayer) drop(item *types.QueuedIntent, key []byte, reason string) error {
	if err := r.stg.MarkIntentDone(key, &types.RelayJob{
		ID:          item.JobID,
		State:       types.JobStateDropped,
		Voter:       item.Intent.Voter,
		CandidateID: item.Intent.CandidateID,
		Nonce:       item.Intent.Nonce,
		Reason:      reason,
		EnqueuedAt:  item.EnqueuedAt,
		SettledAt:   r.clk.Now().Unix(),
	}); err != nil {
		return fmt.Errorf("mark intent dropped: %w", err)
	}
	log.Warnw("intent dropped",
		"jobId", item.JobID.String(),
		"voter", item.Intent.Voter.Hex(),
		"reason", reason)
	return nil
}

func (r *Relayer) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = r.maxElapsed
	return bo
}
