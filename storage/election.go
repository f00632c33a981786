package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ballotrelay/ballotrelay/storage/db"
	"github.com/ballotrelay/ballotrelay/storage/db/prefixeddb"
	"github.com/ballotrelay/ballotrelay/types"
)

// electionKey is the key of the single election record under electionPrefix.
var electionKey = []byte("election")

// InitElection stores the election record and seeds the initial settlement
// balances, atomically. Returns ErrExists if an election is already stored.
func (s *Storage) InitElection(election *types.Election, balances map[common.Address]*types.BigInt) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	err := s.getArtifact(electionPrefix, electionKey, &types.Election{})
	if err == nil {
		return ErrExists
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	data, err := encodeArtifact(election)
	if err != nil {
		return fmt.Errorf("encode election: %w", err)
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, electionPrefix).Set(electionKey, data); err != nil {
		return err
	}
	bTx := prefixeddb.NewPrefixedWriteTx(wTx, balancePrefix)
	for addr, amount := range balances {
		val, err := encodeArtifact(amount)
		if err != nil {
			return fmt.Errorf("encode balance: %w", err)
		}
		if err := bTx.Set(addr.Bytes(), val); err != nil {
			return err
		}
	}
	return wTx.Commit()
}

// Election loads the stored election record. Returns ErrNotFound if no
// election has been initialized yet.
func (s *Storage) Election() (*types.Election, error) {
	election := &types.Election{}
	if err := s.getArtifact(electionPrefix, electionKey, election); err != nil {
		return nil, err
	}
	return election, nil
}

// SetElection updates the election record and appends the given events in
// the same transaction.
func (s *Storage) SetElection(election *types.Election, events ...*types.Event) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	data, err := encodeArtifact(election)
	if err != nil {
		return fmt.Errorf("encode election: %w", err)
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, electionPrefix).Set(electionKey, data); err != nil {
		return err
	}
	if err := s.appendEvents(wTx, events...); err != nil {
		return err
	}
	return wTx.Commit()
}

// ApplyVote commits the effects of an accepted vote atomically: the voter
// hasVoted flag, the candidate tally bump, the new voter sequence and the
// log events. Nothing is written if any part fails.
func (s *Storage) ApplyVote(electionID uint64, voter common.Address, candidateID, nextSequence uint64, events ...*types.Event) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	count, err := s.candidateVotes(candidateID)
	if err != nil {
		return err
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, votedPrefix).Set(votedKey(electionID, voter), []byte{1}); err != nil {
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, tallyPrefix).Set(encodeUint64(candidateID), encodeUint64(count+1)); err != nil {
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, sequencePrefix).Set(voter.Bytes(), encodeUint64(nextSequence)); err != nil {
		return err
	}
	if err := s.appendEvents(wTx, events...); err != nil {
		return err
	}
	return wTx.Commit()
}

// CandidateVotes returns the current tally of a candidate.
func (s *Storage) CandidateVotes(candidateID uint64) (uint64, error) {
	return s.candidateVotes(candidateID)
}

func (s *Storage) candidateVotes(candidateID uint64) (uint64, error) {
	data, err := prefixeddb.NewPrefixedReader(s.db, tallyPrefix).Get(encodeUint64(candidateID))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(data), nil
}

// Tallies returns the vote counts of the first numCandidates candidates,
// indexed by candidate id.
func (s *Storage) Tallies(numCandidates int) ([]uint64, error) {
	tallies := make([]uint64, numCandidates)
	for i := range tallies {
		count, err := s.candidateVotes(uint64(i))
		if err != nil {
			return nil, err
		}
		tallies[i] = count
	}
	return tallies, nil
}

// VoterSequence returns the current sequence number of a voter, zero for
// voters that never had a vote applied.
func (s *Storage) VoterSequence(voter common.Address) (uint64, error) {
	data, err := prefixeddb.NewPrefixedReader(s.db, sequencePrefix).Get(voter.Bytes())
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(data), nil
}

// HasVoted reports whether the voter already cast a vote in the given
// election.
func (s *Storage) HasVoted(electionID uint64, voter common.Address) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(s.db, votedPrefix).Get(votedKey(electionID, voter))
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Balance returns the settlement balance of an account, zero for unknown
// accounts.
func (s *Storage) Balance(addr common.Address) (*types.BigInt, error) {
	balance := &types.BigInt{}
	err := s.getArtifact(balancePrefix, addr.Bytes(), balance)
	if errors.Is(err, ErrNotFound) {
		return types.NewBigInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// SetBalance stores the settlement balance of an account.
func (s *Storage) SetBalance(addr common.Address, balance *types.BigInt) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setArtifact(balancePrefix, addr.Bytes(), balance)
}

func votedKey(electionID uint64, voter common.Address) []byte {
	return append(encodeUint64(electionID), voter.Bytes()...)
}
