package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/types"
)

// DomainVersion is the fixed EIP-712 domain version. It only changes on
// incompatible changes to the signed message layout.
const DomainVersion = "1"

// intentPrimaryType is the EIP-712 primary type of a vote intent.
const intentPrimaryType = "VoteIntent"

func u256(v uint64) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).SetUint64(v))
}

// intentTypedData builds the EIP-712 payload for a vote intent. The domain
// binds the election name, the fixed version, the chain id and the
// election instance address, so a signature is only valid for this exact
// election on this exact deployment.
func intentTypedData(election *types.Election, intent *types.VoteIntent) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			intentPrimaryType: []apitypes.Type{
				{Name: "voter", Type: "address"},
				{Name: "candidateId", Type: "uint256"},
				{Name: "electionId", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: intentPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              election.Name,
			Version:           DomainVersion,
			ChainId:           u256(election.ChainID),
			VerifyingContract: election.Address.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"voter":       intent.Voter.Hex(),
			"candidateId": u256(intent.CandidateID),
			"electionId":  u256(intent.ElectionID),
			"nonce":       u256(intent.Nonce),
			"deadline":    u256(intent.Deadline),
		},
	}
}

// IntentDigest returns the EIP-712 digest a voter signs to authorize a
// vote intent under the election's domain.
func IntentDigest(election *types.Election, intent *types.VoteIntent) (types.HexBytes, error) {
	digest, _, err := apitypes.TypedDataAndHash(intentTypedData(election, intent))
	if err != nil {
		return nil, fmt.Errorf("hash vote intent: %w", err)
	}
	return digest, nil
}

// SignIntent signs a vote intent under the election's domain. The intent
// Voter field is not checked against the signer; admission does that.
func SignIntent(signer *ethereum.SignKeys, election *types.Election, intent *types.VoteIntent) (types.HexBytes, error) {
	digest, err := IntentDigest(election, intent)
	if err != nil {
		return nil, err
	}
	return signer.SignRaw(digest)
}

// RecoverIntentSigner returns the address that signed the vote intent
// under the election's domain. Both raw and legacy recovery identifiers
// are accepted.
func RecoverIntentSigner(election *types.Election, intent *types.VoteIntent, signature []byte) (common.Address, error) {
	digest, err := IntentDigest(election, intent)
	if err != nil {
		return common.Address{}, err
	}
	return ethereum.AddrFromSignatureRaw(digest, signature)
}

// Owner operations authenticate with an Ethereum personal signature over
// an operation-tagged message. The chain and election ids are part of the
// message so a signature cannot be replayed on another deployment.

// VotingEndMessage is the message an owner signs to move the voting end.
func VotingEndMessage(chainID, electionID uint64, newEnd int64) []byte {
	return []byte(fmt.Sprintf("setVotingEnd%d%d%d", chainID, electionID, newEnd))
}

// FinalizeMessage is the message an owner signs to finalize the winner.
func FinalizeMessage(chainID, electionID uint64) []byte {
	return []byte(fmt.Sprintf("finalizeWinner%d%d", chainID, electionID))
}

// UpgradeMessage is the message an owner signs to authorize a logic
// upgrade.
func UpgradeMessage(chainID, electionID uint64, implementation common.Address) []byte {
	return []byte(fmt.Sprintf("authorizeUpgrade%d%d%s", chainID, electionID, implementation.Hex()))
}
