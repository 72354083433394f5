package handlers

// Stable machine-readable error codes returned in ErrorResponse.Code.
const (
	codeInvalidRequest  = "invalid_request"
	codeProjectNotFound = "project_not_found"
	codeInternalError   = "internal_error"
	codeStreamFailed    = "stream_unavailable"

	// Exported for router-level fallbacks.
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
