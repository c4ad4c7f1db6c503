package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/pkg/turndto"
)

func (a *API) handleWebhookTurn(w http.ResponseWriter, r *http.Request) {
	var body turndto.WebhookTurn
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, "invalid JSON: "+err.Error())
		return
	}
	turn, err := body.Turn()
	if err != nil {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, err.Error())
		return
	}
	a.ingest(w, r, turn, ledger.SourcePlayByCloud)
}

func (a *API) handlePYDTTurn(w http.ResponseWriter, r *http.Request) {
	var body turndto.PYDTTurn
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, "invalid JSON: "+err.Error())
		return
	}
	turn, err := body.Turn()
	if err != nil {
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, err.Error())
		return
	}
	a.ingest(w, r, turn, ledger.SourcePYDT)
}

func (a *API) ingest(w http.ResponseWriter, r *http.Request, turn turndto.Turn, source ledger.Source) {
	res, err := a.ledger.Ingest(r.Context(), ledger.TurnEvent{
		Game:         turn.Game,
		Handle:       turn.Handle,
		Turn:         turn.Number,
		Source:       source,
		Civilization: turn.Civilization,
		Leader:       turn.Leader,
	})
	if err != nil {
		writeLedgerError(w, a.log, err)
		return
	}

	// The turn is committed at this point; a directory miss only costs display names.
	game, err := a.gameDTO(r, res.Game)
	if err != nil {
		a.log.Warn("turn_result_names_unavailable", zap.String("game", res.Game.Name), zap.Error(err))
		game = toGame(res.Game, nil)
	}
	out := turndto.TurnResult{Outcome: string(res.Outcome), Game: game}
	switch res.Outcome {
	case ledger.OutcomeCreated:
		out.Status = "Game Created"
		writeJSON(w, http.StatusCreated, out)
	case ledger.OutcomeAdvanced:
		out.Status = "Turn Recorded"
		writeJSON(w, http.StatusCreated, out)
	default:
		out.Status = "Duplicate Turn"
		writeJSON(w, http.StatusConflict, out)
	}
}
