package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeRenderTimeout  = "RENDER_TIMEOUT"
	ErrCodeRenderFailure  = "RENDER_FAILED"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodeExtractTimeout = "EXTRACT_TIMEOUT"
	ErrCodeExtractParse   = "EXTRACT_PARSE_FAILED"
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ParseError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(code, message string, err error) *ParseError {
	return &ParseError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ParseError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsTimeout reports whether the error is one of the stage timeout codes.
// The API layer maps these to 504 and everything non-input to 500, so
// keeping them distinguishable here is what makes a gateway timeout
// tell-apart-able from a generic failure.
func (e *ParseError) IsTimeout() bool {
	return e.Code == ErrCodeRenderTimeout || e.Code == ErrCodeExtractTimeout
}
