package types

import "errors"

// Fehlerklassen der Bridge. Configuration errors are fatal for the affected
// bridge or consumer, transient errors are retried by the protocol client.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient communication error")
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// IsConfiguration reports whether err belongs to the configuration class.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
