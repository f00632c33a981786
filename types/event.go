package types

import "github.com/ethereum/go-ethereum/common"

// Event kinds recorded in the election log.
const (
	EventVoteCast          = "voteCast"
	EventVoteRelayed       = "voteRelayed"
	EventVotingEndChanged  = "votingEndChanged"
	EventWinnerFinalized   = "winnerFinalized"
	EventUpgradeAuthorized = "upgradeAuthorized"
)

// Event is one entry of the append-only election log. Seq, Kind, Time and
// ElectionID are always set; the rest depend on the kind. Time, OldEnd and
// NewEnd are unix seconds.
type Event struct {
	Seq            uint64         `json:"seq"                      cbor:"0,keyasint"`
	Kind           string         `json:"kind"                     cbor:"1,keyasint"`
	Time           int64          `json:"time"                     cbor:"2,keyasint"`
	ElectionID     uint64         `json:"electionId"               cbor:"3,keyasint"`
	Voter          common.Address `json:"voter"                    cbor:"4,keyasint,omitempty"`
	Relayer        common.Address `json:"relayer"                  cbor:"5,keyasint,omitempty"`
	CandidateID    uint64         `json:"candidateId"              cbor:"6,keyasint,omitempty"`
	OldEnd         int64          `json:"oldEnd,omitempty"         cbor:"7,keyasint,omitempty"`
	NewEnd         int64          `json:"newEnd,omitempty"         cbor:"8,keyasint,omitempty"`
	Implementation common.Address `json:"implementation"           cbor:"9,keyasint,omitempty"`
}
