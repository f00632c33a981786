// Package ledger implements the authoritative election state machine: it
// admits signed vote intents, applies owner operations and finalizes the
// winner. All state lives in the storage layer; a Ledger only binds the
// admission logic to it, so a new handler over the same storage resumes
// with every counter and flag intact.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ballotrelay/ballotrelay/log"
	"github.com/ballotrelay/ballotrelay/storage"
	"github.com/ballotrelay/ballotrelay/types"
)

// Genesis holds the parameters to create a new election. VotingStart is a
// unix timestamp in seconds; the voting window closes Duration later.
type Genesis struct {
	Name          string
	Candidates    []string
	ElectionID    uint64
	ChainID       uint64
	Owner         common.Address
	VotingStart   int64
	Duration      time.Duration
	SettlementFee *types.BigInt
	Balances      map[common.Address]*types.BigInt
}

func (g *Genesis) validate() error {
	if g.Name == "" {
		return fmt.Errorf("election name is empty")
	}
	if len(g.Candidates) < 2 {
		return fmt.Errorf("at least two candidates required, got %d", len(g.Candidates))
	}
	if len(g.Candidates) > types.MaxCandidates {
		return fmt.Errorf("too many candidates (%d, max %d)", len(g.Candidates), types.MaxCandidates)
	}
	for i, name := range g.Candidates {
		if name == "" {
			return fmt.Errorf("candidate %d has an empty name", i)
		}
		if len(name) > types.MaxCandidateNameLen {
			return fmt.Errorf("candidate %d name too long", i)
		}
	}
	if g.Owner == (common.Address{}) {
		return fmt.Errorf("owner address is empty")
	}
	if g.Duration <= 0 {
		return fmt.Errorf("voting duration must be positive")
	}
	if g.SettlementFee != nil && g.SettlementFee.MathBigInt().Sign() < 0 {
		return fmt.Errorf("settlement fee cannot be negative")
	}
	return nil
}

// VoteReceipt summarizes an accepted vote.
type VoteReceipt struct {
	ElectionID  uint64         `json:"electionId"`
	Voter       common.Address `json:"voter"`
	CandidateID uint64         `json:"candidateId"`
	NewSequence uint64         `json:"newSequence"`
	Tally       uint64         `json:"tally"`
}

// Ledger is the election state handler. Operations are serialized with an
// internal mutex, so the checks and effects of one submission are atomic
// with respect to any other caller.
type Ledger struct {
	stg *storage.Storage
	clk clock.Clock
	mu  sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(l *Ledger) { l.clk = clk }
}

// New binds a Ledger to its storage. If the storage already holds an
// election record the genesis parameters are ignored and the stored
// election resumes; otherwise the genesis is validated and stored along
// with its initial balances. The election instance address is derived
// deterministically from the owner and the election id.
func New(stg *storage.Storage, genesis *Genesis, opts ...Option) (*Ledger, error) {
	l := &Ledger{stg: stg, clk: clock.New()}
	for _, opt := range opts {
		opt(l)
	}
	if election, err := stg.Election(); err == nil {
		log.Debugw("election already initialized, genesis ignored",
			"name", election.Name, "electionId", election.ElectionID)
		return l, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if genesis == nil {
		return nil, fmt.Errorf("no election stored and no genesis provided")
	}
	if err := genesis.validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	fee := genesis.SettlementFee
	if fee == nil {
		fee = types.NewBigInt(0)
	}
	election := &types.Election{
		Name:          genesis.Name,
		Candidates:    genesis.Candidates,
		ElectionID:    genesis.ElectionID,
		ChainID:       genesis.ChainID,
		Address:       ethcrypto.CreateAddress(genesis.Owner, genesis.ElectionID),
		Owner:         genesis.Owner,
		VotingStart:   genesis.VotingStart,
		VotingEnd:     genesis.VotingStart + int64(genesis.Duration/time.Second),
		SettlementFee: fee,
	}
	if err := stg.InitElection(election, genesis.Balances); err != nil {
		return nil, fmt.Errorf("init election: %w", err)
	}
	log.Infow("election created",
		"name", election.Name,
		"electionId", election.ElectionID,
		"chainId", election.ChainID,
		"address", election.Address.Hex(),
		"candidates", len(election.Candidates),
		"votingStart", election.VotingStart,
		"votingEnd", election.VotingEnd,
		"settlementFee", fee.String())
	return l, nil
}

// SubmitVote runs the admission pipeline for a signed vote intent and
// applies its effects if every check passes. caller is the account that
// pays the settlement fee; for relayed votes it differs from the intent
// voter. The checks run in a fixed order and the first failure wins, with
// no partial effects on election state. Rejections satisfy IsRejection;
// the fee is charged for the attempt, not for the outcome.
func (l *Ledger) SubmitVote(caller common.Address, intent *types.VoteIntent, signature []byte) (*VoteReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if intent == nil {
		return nil, fmt.Errorf("nil vote intent")
	}
	election, err := l.stg.Election()
	if err != nil {
		return nil, err
	}
	if err := l.debitFee(caller, election.SettlementFee); err != nil {
		return nil, err
	}
	now := l.clk.Now().Unix()
	// 1. voting window
	if now < election.VotingStart {
		return nil, ErrVotingNotStarted
	}
	if now > election.VotingEnd {
		return nil, ErrVotingEnded
	}
	// 2. intent deadline
	if uint64(now) > intent.Deadline {
		return nil, ErrIntentExpired
	}
	// 3. election binding
	if intent.ElectionID != election.ElectionID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongElection, intent.ElectionID, election.ElectionID)
	}
	// 4. candidate validity
	if !election.ValidCandidate(intent.CandidateID) {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidCandidate, intent.CandidateID)
	}
	// 5. exact nonce match
	sequence, err := l.stg.VoterSequence(intent.Voter)
	if err != nil {
		return nil, err
	}
	if intent.Nonce != sequence {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonce, intent.Nonce, sequence)
	}
	// 6. signature recovery
	signer, err := RecoverIntentSigner(election, intent, signature)
	if err != nil || signer != intent.Voter {
		return nil, ErrInvalidSignature
	}
	// 7. one vote per voter
	voted, err := l.stg.HasVoted(election.ElectionID, intent.Voter)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, ErrAlreadyVoted
	}

	events := []*types.Event{{
		Kind:        types.EventVoteCast,
		Time:        now,
		ElectionID:  election.ElectionID,
		Voter:       intent.Voter,
		CandidateID: intent.CandidateID,
	}}
	if caller != intent.Voter {
		events = append(events, &types.Event{
			Kind:        types.EventVoteRelayed,
			Time:        now,
			ElectionID:  election.ElectionID,
			Voter:       intent.Voter,
			Relayer:     caller,
			CandidateID: intent.CandidateID,
		})
	}
	if err := l.stg.ApplyVote(election.ElectionID, intent.Voter, intent.CandidateID, intent.Nonce+1, events...); err != nil {
		return nil, fmt.Errorf("apply vote: %w", err)
	}
	tally, err := l.stg.CandidateVotes(intent.CandidateID)
	if err != nil {
		return nil, err
	}
	log.Infow("vote accepted",
		"voter", intent.Voter.Hex(),
		"candidateId", intent.CandidateID,
		"sequence", intent.Nonce+1,
		"tally", tally,
		"relayed", caller != intent.Voter)
	return &VoteReceipt{
		ElectionID:  election.ElectionID,
		Voter:       intent.Voter,
		CandidateID: intent.CandidateID,
		NewSequence: intent.Nonce + 1,
		Tally:       tally,
	}, nil
}

// SetVotingEnd moves the voting deadline. Owner only, before finalization.
// The new end must fall strictly after the voting start but may be in the
// past, which closes voting immediately. Returns the previous end.
func (l *Ledger) SetVotingEnd(caller common.Address, newEnd int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	election, err := l.stg.Election()
	if err != nil {
		return 0, err
	}
	if err := l.debitFee(caller, election.SettlementFee); err != nil {
		return 0, err
	}
	if caller != election.Owner {
		return 0, ErrNotOwner
	}
	if election.Finalized {
		return 0, ErrAlreadyFinalized
	}
	if newEnd <= election.VotingStart {
		return 0, fmt.Errorf("%w: newEnd %d, votingStart %d", ErrInvalidVotingEnd, newEnd, election.VotingStart)
	}
	oldEnd := election.VotingEnd
	election.VotingEnd = newEnd
	if err := l.stg.SetElection(election, &types.Event{
		Kind:       types.EventVotingEndChanged,
		Time:       l.clk.Now().Unix(),
		ElectionID: election.ElectionID,
		OldEnd:     oldEnd,
		NewEnd:     newEnd,
	}); err != nil {
		return 0, err
	}
	log.Infow("voting end changed", "oldEnd", oldEnd, "newEnd", newEnd)
	return oldEnd, nil
}

// FinalizeWinner permanently closes the election and computes the winner.
// Owner only, exactly once, and only after the voting window has fully
// elapsed. The scan keeps the running maximum with a strict comparison,
// so on a tie the lowest candidate id wins.
func (l *Ledger) FinalizeWinner(caller common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	election, err := l.stg.Election()
	if err != nil {
		return 0, err
	}
	if err := l.debitFee(caller, election.SettlementFee); err != nil {
		return 0, err
	}
	if caller != election.Owner {
		return 0, ErrNotOwner
	}
	if election.Finalized {
		return 0, ErrAlreadyFinalized
	}
	now := l.clk.Now().Unix()
	if now <= election.VotingEnd {
		return 0, fmt.Errorf("%w: votingEnd %d", ErrVotingNotEnded, election.VotingEnd)
	}
	tallies, err := l.stg.Tallies(len(election.Candidates))
	if err != nil {
		return 0, err
	}
	var winner, max uint64
	for id, count := range tallies {
		if count > max {
			max = count
			winner = uint64(id)
		}
	}
	election.Finalized = true
	election.Winner = winner
	if err := l.stg.SetElection(election, &types.Event{
		Kind:        types.EventWinnerFinalized,
		Time:        now,
		ElectionID:  election.ElectionID,
		CandidateID: winner,
	}); err != nil {
		return 0, err
	}
	log.Infow("election finalized",
		"winner", winner,
		"candidate", election.Candidates[winner],
		"tally", max)
	return winner, nil
}

// AuthorizeUpgrade records the identity of the logic implementation
// allowed to take over this election's storage. Owner only. The state
// itself never moves: a handler bound to the same storage resumes with
// every sequence, tally and flag intact.
func (l *Ledger) AuthorizeUpgrade(caller, implementation common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	election, err := l.stg.Election()
	if err != nil {
		return err
	}
	if err := l.debitFee(caller, election.SettlementFee); err != nil {
		return err
	}
	if caller != election.Owner {
		return ErrNotOwner
	}
	election.Implementation = implementation
	if err := l.stg.SetElection(election, &types.Event{
		Kind:           types.EventUpgradeAuthorized,
		Time:           l.clk.Now().Unix(),
		ElectionID:     election.ElectionID,
		Implementation: implementation,
	}); err != nil {
		return err
	}
	log.Infow("upgrade authorized", "implementation", implementation.Hex())
	return nil
}

// debitFee charges the flat settlement fee to the caller account. It is
// the only balance mutation the ledger performs, and it happens before
// any admission check, successful or not.
func (l *Ledger) debitFee(caller common.Address, fee *types.BigInt) error {
	if fee == nil || fee.MathBigInt().Sign() == 0 {
		return nil
	}
	balance, err := l.stg.Balance(caller)
	if err != nil {
		return err
	}
	if balance.Cmp(fee) < 0 {
		return fmt.Errorf("%w: account %s holds %s, fee is %s",
			ErrInsufficientBalance, caller.Hex(), balance, fee)
	}
	return l.stg.SetBalance(caller, new(types.BigInt).Sub(balance, fee))
}

// Election returns the current election record.
func (l *Ledger) Election() (*types.Election, error) {
	return l.stg.Election()
}

// Tallies returns the per-candidate vote counts.
func (l *Ledger) Tallies() ([]uint64, error) {
	election, err := l.stg.Election()
	if err != nil {
		return nil, err
	}
	return l.stg.Tallies(len(election.Candidates))
}

// VoterSequence returns the current sequence number of a voter.
func (l *Ledger) VoterSequence(voter common.Address) (uint64, error) {
	return l.stg.VoterSequence(voter)
}

// HasVoted reports whether the voter already cast a ballot.
func (l *Ledger) HasVoted(voter common.Address) (bool, error) {
	election, err := l.stg.Election()
	if err != nil {
		return false, err
	}
	return l.stg.HasVoted(election.ElectionID, voter)
}

// VoterState returns the combined per-voter view of the election.
func (l *Ledger) VoterState(voter common.Address) (*types.VoterState, error) {
	election, err := l.stg.Election()
	if err != nil {
		return nil, err
	}
	sequence, err := l.stg.VoterSequence(voter)
	if err != nil {
		return nil, err
	}
	voted, err := l.stg.HasVoted(election.ElectionID, voter)
	if err != nil {
		return nil, err
	}
	balance, err := l.stg.Balance(voter)
	if err != nil {
		return nil, err
	}
	return &types.VoterState{
		Address:  voter,
		Sequence: sequence,
		HasVoted: voted,
		Balance:  balance,
	}, nil
}

// Balance returns the settlement balance of an account.
func (l *Ledger) Balance(addr common.Address) (*types.BigInt, error) {
	return l.stg.Balance(addr)
}

// Events returns up to max log events starting at fromSeq.
func (l *Ledger) Events(fromSeq uint64, max int) ([]*types.Event, error) {
	return l.stg.Events(fromSeq, max)
}

// EventCount returns the number of events recorded so far.
func (l *Ledger) EventCount() (uint64, error) {
	return l.stg.EventCount()
}
