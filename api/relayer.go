package api

import (
	"net/http"
)

// relayerStatus reports the relayer identity, its settlement balance and
// the queue depth
// GET /relayer
func (a *API) relayerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.relayer.Status()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, status)
}
