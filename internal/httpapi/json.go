package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/pkg/turndto"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, turndto.DomainError{
		Code:      code,
		Message:   msg,
		Retryable: status == http.StatusServiceUnavailable,
	})
}

// writeLedgerError maps ledger sentinels to status codes; anything unrecognised is a 500.
func writeLedgerError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidTurn), errors.Is(err, ledger.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, turndto.CodeInvalidRequest, err.Error())
	case errors.Is(err, ledger.ErrGameNotFound):
		writeError(w, http.StatusNotFound, turndto.CodeGameNotFound, err.Error())
	case errors.Is(err, ledger.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, turndto.CodePlayerNotFound, err.Error())
	case errors.Is(err, ledger.ErrConcurrentUpdate):
		writeError(w, http.StatusServiceUnavailable, turndto.CodeConflict, err.Error())
	default:
		log.Error("http_handler_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, turndto.CodeInternal, "internal error")
	}
}
