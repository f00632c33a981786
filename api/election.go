package api

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/ballotrelay/ballotrelay/storage"
)

// maxEventPageSize caps how many log events a single request may return.
const maxEventPageSize = 1000

// election returns the election record with its live tallies
// GET /election
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	election, err := a.ledger.Election()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrElectionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	tallies, err := a.ledger.Tallies()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &ElectionResponse{Election: election, Tallies: tallies})
}

// electionEvents returns one page of the election event log
// GET /election/events?fromSeq=0&max=100
func (a *API) electionEvents(w http.ResponseWriter, r *http.Request) {
	fromSeq := queryUint(r, "fromSeq", 0)
	max := queryUint(r, "max", 100)
	if max > maxEventPageSize {
		max = maxEventPageSize
	}
	events, err := a.ledger.Events(fromSeq, int(max))
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	total, err := a.ledger.EventCount()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &EventsResponse{Events: events, Total: total})
}

// voter returns the per-voter view of the election: sequence number,
// hasVoted flag and settlement balance
// GET /election/voters/{address}
func (a *API) voter(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, VoterURLParam)
	if !common.IsHexAddress(raw) {
		ErrMalformedAddress.Withf("%q is not a hex address", raw).Write(w)
		return
	}
	state, err := a.ledger.VoterState(common.HexToAddress(raw))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpWriteJSON(w, state)
}
