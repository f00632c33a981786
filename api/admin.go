package api

import (
	"encoding/json"
	"net/http"

	"github.com/ballotrelay/ballotrelay/crypto/ethereum"
	"github.com/ballotrelay/ballotrelay/ledger"
	"github.com/ballotrelay/ballotrelay/log"
)

// Owner operations carry an Ethereum personal signature over an
// operation-tagged message. The handlers only recover the signer address;
// the ledger decides whether that address is the owner, so a forged or
// tampered signature simply resolves to a non-owner caller.

// setVotingEnd moves the voting deadline
// POST /election/voting-end
func (a *API) setVotingEnd(w http.ResponseWriter, r *http.Request) {
	req := &SetVotingEndRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	election, err := a.ledger.Election()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	caller, err := ethereum.AddrFromSignature(
		ledger.VotingEndMessage(election.ChainID, election.ElectionID, req.NewEnd), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	oldEnd, err := a.ledger.SetVotingEnd(caller, req.NewEnd)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpWriteJSON(w, &SetVotingEndResponse{OldEnd: oldEnd, NewEnd: req.NewEnd})
}

// finalize permanently closes the election and computes the winner
// POST /election/finalize
func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	req := &FinalizeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	election, err := a.ledger.Election()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	caller, err := ethereum.AddrFromSignature(
		ledger.FinalizeMessage(election.ChainID, election.ElectionID), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	winner, err := a.ledger.FinalizeWinner(caller)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	tallies, err := a.ledger.Tallies()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	log.Infow("election finalized via API", "winner", winner, "caller", caller.Hex())
	httpWriteJSON(w, &FinalizeResponse{
		Winner:    winner,
		Candidate: election.Candidates[winner],
		Tally:     tallies[winner],
	})
}

// upgrade authorizes a new logic implementation for the election
// POST /election/upgrade
func (a *API) upgrade(w http.ResponseWriter, r *http.Request) {
	req := &UpgradeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	election, err := a.ledger.Election()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	caller, err := ethereum.AddrFromSignature(
		ledger.UpgradeMessage(election.ChainID, election.ElectionID, req.Implementation), req.Signature)
	if err != nil {
		ErrInvalidSignature.Withf("could not extract address from signature: %v", err).Write(w)
		return
	}
	if err := a.ledger.AuthorizeUpgrade(caller, req.Implementation); err != nil {
		writeLedgerError(w, err)
		return
	}
	httpWriteOK(w)
}
