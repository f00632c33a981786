package ledger

import "errors"

// Admission and lifecycle rejections. These are deterministic: the same
// call against the same state fails the same way, so callers should drop
// the request instead of retrying it.
var (
	ErrVotingNotStarted = errors.New("voting has not started")
	ErrVotingEnded      = errors.New("voting has ended")
	ErrIntentExpired    = errors.New("vote intent deadline has passed")
	ErrWrongElection    = errors.New("vote intent is bound to another election")
	ErrInvalidCandidate = errors.New("candidate does not exist")
	ErrInvalidNonce     = errors.New("nonce does not match voter sequence")
	ErrInvalidSignature = errors.New("signature does not match voter")
	ErrAlreadyVoted     = errors.New("voter has already voted")

	ErrNotOwner         = errors.New("caller is not the election owner")
	ErrAlreadyFinalized = errors.New("election is already finalized")
	ErrVotingNotEnded   = errors.New("voting has not ended yet")
	ErrInvalidVotingEnd = errors.New("voting end must be after voting start")
)

// ErrInsufficientBalance is an environment failure, not a rejection: the
// caller account cannot cover the settlement fee. It can heal once the
// account is funded, so callers may retry.
var ErrInsufficientBalance = errors.New("insufficient balance for settlement fee")

var rejections = []error{
	ErrVotingNotStarted, ErrVotingEnded, ErrIntentExpired, ErrWrongElection,
	ErrInvalidCandidate, ErrInvalidNonce, ErrInvalidSignature, ErrAlreadyVoted,
	ErrNotOwner, ErrAlreadyFinalized, ErrVotingNotEnded, ErrInvalidVotingEnd,
}

// IsRejection reports whether err is a deterministic admission or
// lifecycle rejection, as opposed to an environment or storage failure.
func IsRejection(err error) bool {
	for _, rejection := range rejections {
		if errors.Is(err, rejection) {
			return true
		}
	}
	return false
}
