package types

import "fmt"

// ErrorCode is a stable machine-readable identifier carried in every error
// payload the gateway returns. Callers key on these, so they never change.
type ErrorCode string

const (
	CodeValidationError         ErrorCode = "validation_error"
	CodePromptInjectionDetected ErrorCode = "prompt_injection_detected"
	CodeRateLimitExceeded       ErrorCode = "rate_limit_exceeded"
	CodeUpstreamUnreachable     ErrorCode = "upstream_unreachable"
	CodeInvalidUpstreamResponse ErrorCode = "invalid_upstream_response"
	CodeInternalError           ErrorCode = "internal_error"
)

// ErrorType values mirror the OpenAI error taxonomy so existing client SDKs
// classify gateway errors the same way they classify provider errors.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeUpstream       = "upstream_error"
	ErrorTypeInternal       = "internal_error"
)

// Error is the gateway's structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Param      string    `json:"param,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithParam names the request field the error relates to.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// ErrorBody is the inner object of the OpenAI-style error payload.
// Param is a pointer so an unset value serializes as JSON null, matching
// what provider SDKs expect.
type ErrorBody struct {
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	Param      *string   `json:"param"`
	Code       ErrorCode `json:"code"`
	Signatures []string  `json:"signatures,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Details    string    `json:"details,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// ErrorPayload is the OpenAI-style error envelope returned to callers on
// every blocked or failed request.
type ErrorPayload struct {
	Error ErrorBody `json:"error"`
}

// NewErrorPayload builds an error envelope for the given code.
func NewErrorPayload(code ErrorCode, errType, message string) ErrorPayload {
	return ErrorPayload{Error: ErrorBody{
		Message: message,
		Type:    errType,
		Code:    code,
	}}
}

// WithParam sets the param field of the payload.
func (p ErrorPayload) WithParam(param string) ErrorPayload {
	p.Error.Param = &param
	return p
}

// WithRequestID attaches the correlation ID to the payload.
func (p ErrorPayload) WithRequestID(id string) ErrorPayload {
	p.Error.RequestID = id
	return p
}
