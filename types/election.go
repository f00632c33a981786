package types

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// Election holds the configuration and lifecycle state of the single
// election tracked by the ledger. The fields up to SettlementFee are fixed
// at genesis; the rest change only through owner operations or
// finalization. All timestamps are unix seconds.
type Election struct {
	Name           string         `json:"name"           cbor:"0,keyasint,omitempty"`
	Candidates     []string       `json:"candidates"     cbor:"1,keyasint,omitempty"`
	ElectionID     uint64         `json:"electionId"     cbor:"2,keyasint,omitempty"`
	ChainID        uint64         `json:"chainId"        cbor:"3,keyasint,omitempty"`
	Address        common.Address `json:"address"        cbor:"4,keyasint,omitempty"`
	Owner          common.Address `json:"owner"          cbor:"5,keyasint,omitempty"`
	VotingStart    int64          `json:"votingStart"    cbor:"6,keyasint,omitempty"`
	VotingEnd      int64          `json:"votingEnd"      cbor:"7,keyasint,omitempty"`
	SettlementFee  *BigInt        `json:"settlementFee"  cbor:"8,keyasint,omitempty"`
	Finalized      bool           `json:"finalized"      cbor:"9,keyasint,omitempty"`
	Winner         uint64         `json:"winner"         cbor:"10,keyasint,omitempty"`
	Implementation common.Address `json:"implementation" cbor:"11,keyasint,omitempty"`
}

func (e *Election) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}

// ValidCandidate reports whether id indexes a candidate of the election.
func (e *Election) ValidCandidate(id uint64) bool {
	return id < uint64(len(e.Candidates))
}

// VoterState is the per-voter view of the election state.
type VoterState struct {
	Address  common.Address `json:"address"`
	Sequence uint64         `json:"sequence"`
	HasVoted bool           `json:"hasVoted"`
	Balance  *BigInt        `json:"balance"`
}
