package sessiondto

type ErrorCode string

const (
	CodeIllegalMove       ErrorCode = "illegal_move"
	CodePromotionRequired ErrorCode = "promotion_required"
	CodeNotYourTurn       ErrorCode = "not_your_turn"
	CodeNoHistory         ErrorCode = "no_history"
	CodeGameOver          ErrorCode = "game_over"
	CodeSessionClosed     ErrorCode = "session_closed"
	CodeEngineUnavailable ErrorCode = "engine_unavailable"
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnknownCommand    ErrorCode = "unknown_command"
	CodeInternal          ErrorCode = "internal"
)

type DomainError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return string(e.Code)
	}
	return "session error"
}
