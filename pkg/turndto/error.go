package turndto

// Error codes carried in DomainError.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeGameNotFound   = "game_not_found"
	CodePlayerNotFound = "player_not_found"
	CodeDuplicateTurn  = "duplicate_turn"
	CodeConflict       = "concurrent_update"
	CodeInternal       = "internal_error"
)

// DomainError is the JSON body of every non-2xx response.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "turn ledger error"
}
