package errors

// APIError represents a simple standardized error response.
// Code is a machine-readable reason pages can branch on.
type APIError struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// WithCode sets the machine-readable reason.
func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}
