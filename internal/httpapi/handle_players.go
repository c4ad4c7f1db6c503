package httpapi

import (
	"net/http"

	"github.com/park285/turnledger/pkg/turndto"
)

func (a *API) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := a.ledger.FindPlayer(r.Context(), pathParam(r, "ref"))
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayer(p))
}

// handleUpdatePlayer sets the chat handle; a blank display_name keeps the current one.
func (a *API) handleUpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var body turndto.UpdatePlayerRequest
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := a.ledger.Rename(r.Context(), pathParam(r, "ref"), body.DisplayName, body.ChatHandle)
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayer(p))
}
