package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ballotrelay/ballotrelay/types"
)

// VoteRequest is the body of a vote submission: the intent the voter
// signed and its EIP-712 signature. The relayer enqueues it and settles
// it on the ledger in arrival order.
type VoteRequest struct {
	Intent    *types.VoteIntent `json:"intent"`
	Signature types.HexBytes    `json:"signature"`
}

// ElectionResponse is the public election view with live tallies.
type ElectionResponse struct {
	*types.Election
	Tallies []uint64 `json:"tallies"`
}

// EventsResponse is one page of the election event log. Total is the
// number of events recorded so far, independent of the page bounds.
type EventsResponse struct {
	Events []*types.Event `json:"events"`
	Total  uint64         `json:"total"`
}

// SetVotingEndRequest moves the voting deadline. Signature is an Ethereum
// personal signature by the election owner over the setVotingEnd message
// for this chain, election and new deadline.
type SetVotingEndRequest struct {
	NewEnd    int64          `json:"newEnd"`
	Signature types.HexBytes `json:"signature"`
}

// SetVotingEndResponse reports the deadline change.
type SetVotingEndResponse struct {
	OldEnd int64 `json:"oldEnd"`
	NewEnd int64 `json:"newEnd"`
}

// FinalizeRequest finalizes the election winner. Signature is an Ethereum
// personal signature by the election owner over the finalizeWinner
// message for this chain and election.
type FinalizeRequest struct {
	Signature types.HexBytes `json:"signature"`
}

// FinalizeResponse carries the winning candidate.
type FinalizeResponse struct {
	Winner    uint64 `json:"winner"`
	Candidate string `json:"candidate"`
	Tally     uint64 `json:"tally"`
}

// UpgradeRequest authorizes a new logic implementation for the election.
// Signature is an Ethereum personal signature by the election owner over
// the authorizeUpgrade message for this chain, election and address.
type UpgradeRequest struct {
	Implementation common.Address `json:"implementation"`
	Signature      types.HexBytes `json:"signature"`
}
