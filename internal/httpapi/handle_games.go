package httpapi

import (
	"net/http"

	"github.com/park285/turnledger/pkg/turndto"
)

func (a *API) handleCurrentGames(w http.ResponseWriter, r *http.Request) {
	games, err := a.ledger.ListCurrent(r.Context(), queryParam(r, "player_to_blame"))
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	out, err := a.gameDTOs(r, games)
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, turndto.GameList{Games: out})
}

func (a *API) handleCompletedGames(w http.ResponseWriter, r *http.Request) {
	games, err := a.ledger.ListCompleted(r.Context())
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	out, err := a.gameDTOs(r, games)
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, turndto.GameList{Games: out})
}

func (a *API) handleGameCounts(w http.ResponseWriter, r *http.Request) {
	c, err := a.ledger.Counts(r.Context())
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, turndto.GameCounts{
		TotalGames:     c.Total,
		CurrentGames:   c.Current,
		CompletedGames: c.Completed,
		Consistent:     c.Consistent(),
	})
}

// handleTotalGames answers with a bare integer for clients that parse the body as a number.
func (a *API) handleTotalGames(w http.ResponseWriter, r *http.Request) {
	c, err := a.ledger.Counts(r.Context())
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Total)
}

func (a *API) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := a.ledger.Game(r.Context(), pathParam(r, "name"))
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	out, err := a.gameDTO(r, g)
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	name := queryParam(r, "game_to_delete")
	if name == "" {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, "game_to_delete is required")
		return
	}
	if err := a.ledger.DeleteGame(r.Context(), name); err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, turndto.DeletedGame{DeletedGameName: name})
}

func (a *API) handleCompleteGame(w http.ResponseWriter, r *http.Request) {
	name := queryParam(r, "game_name")
	if name == "" {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, "game_name is required")
		return
	}
	g, err := a.ledger.CompleteGame(r.Context(), name)
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, turndto.CompletedGame{CompletedGame: g.Name})
}

func (a *API) handleSetWinner(w http.ResponseWriter, r *http.Request) {
	name := queryParam(r, "game_name")
	if name == "" {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, "game_name is required")
		return
	}
	g, err := a.ledger.SetWinner(r.Context(), name, queryParam(r, "winner"))
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	out, err := a.gameDTO(r, g)
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := a.ledger.Reconcile(r.Context())
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toReport(rep))
}
