package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ballotrelay/ballotrelay/storage"
)

// newVote enqueues a signed vote intent for settlement
// POST /votes
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	req := &VoteRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	job, err := a.relayer.Enqueue(req.Intent, req.Signature)
	if err != nil {
		ErrInvalidVoteIntent.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, job)
}

// voteJob returns the tracked state of an enqueued vote intent
// GET /votes/{jobId}
func (a *API) voteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, JobURLParam))
	if err != nil {
		ErrMalformedJobID.Withf("could not parse job id: %v", err).Write(w)
		return
	}
	job, err := a.relayer.Job(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrJobNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, job)
}
