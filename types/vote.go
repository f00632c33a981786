package types

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// VoteIntent is the message a voter signs off-chain and hands to a relayer.
// Deadline is a unix timestamp in seconds; the intent is only admissible
// while the current time is at or before it. Nonce must equal the voter's
// current sequence number on the ledger.
type VoteIntent struct {
	Voter       common.Address `json:"voter"       cbor:"0,keyasint"`
	CandidateID uint64         `json:"candidateId" cbor:"1,keyasint"`
	ElectionID  uint64         `json:"electionId"  cbor:"2,keyasint"`
	Nonce       uint64         `json:"nonce"       cbor:"3,keyasint"`
	Deadline    uint64         `json:"deadline"    cbor:"4,keyasint"`
}

func (v *VoteIntent) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// QueuedIntent is the durable queue entry for a pending vote submission.
type QueuedIntent struct {
	JobID      uuid.UUID   `json:"jobId"      cbor:"0,keyasint"`
	Intent     *VoteIntent `json:"intent"     cbor:"1,keyasint"`
	Signature  HexBytes    `json:"signature"  cbor:"2,keyasint"`
	EnqueuedAt int64       `json:"enqueuedAt" cbor:"3,keyasint,omitempty"`
}

// Relay job states. A job starts queued and ends either settled (the vote
// was applied to the ledger) or dropped (it was discarded, Reason says why).
const (
	JobStateQueued  = "queued"
	JobStateSettled = "settled"
	JobStateDropped = "dropped"
)

// RelayJob tracks the lifecycle of one enqueued vote intent.
type RelayJob struct {
	ID          uuid.UUID      `json:"jobId"               cbor:"0,keyasint"`
	State       string         `json:"state"               cbor:"1,keyasint"`
	Voter       common.Address `json:"voter"               cbor:"2,keyasint"`
	CandidateID uint64         `json:"candidateId"         cbor:"3,keyasint"`
	Nonce       uint64         `json:"nonce"               cbor:"4,keyasint"`
	Reason      string         `json:"reason,omitempty"    cbor:"5,keyasint,omitempty"`
	EnqueuedAt  int64          `json:"enqueuedAt"          cbor:"6,keyasint,omitempty"`
	SettledAt   int64          `json:"settledAt,omitempty" cbor:"7,keyasint,omitempty"`
}
