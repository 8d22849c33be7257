package models

import "fmt"

// Fetch-stage error kinds.
const (
	ErrKindPoolExhausted = "POOL_EXHAUSTED"    // transient: no free render session
	ErrKindNavigation    = "NAVIGATION_FAILED" // DNS/connection failure — retryable
	ErrKindFetchTimeout  = "FETCH_TIMEOUT"     // readiness never reached — retryable
	ErrKindBlocked       = "BLOCKED"           // 403/429 denial — retryable with host backoff
	ErrKindRenderCrash   = "RENDER_CRASH"      // renderer died — session is replaced
)

// Extraction-stage error kinds.
const (
	ErrKindModelUnavailable  = "MODEL_UNAVAILABLE"  // transport/quota failure — retryable
	ErrKindMalformedResponse = "MALFORMED_RESPONSE" // schema validation failed — bounded retry
	ErrKindUnsupportedPage   = "UNSUPPORTED_PAGE"   // no product markers — terminal
)

// Job and API-level error kinds.
const (
	ErrKindCancelled    = "CANCELLED"
	ErrKindInvalidInput = "INVALID_INPUT"
	ErrKindRateLimited  = "RATE_LIMITED"
	ErrKindUnauthorized = "UNAUTHORIZED"
	ErrKindInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
}

// ExtractError is the internal error type carrying an error kind.
// It implements the error interface and supports error wrapping via Unwrap.
type ExtractError struct {
	Kind    string
	Message string
	Err     error // wrapped original error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates a new ExtractError.
func NewExtractError(kind, message string, err error) *ExtractError {
	return &ExtractError{Kind: kind, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ExtractError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Kind: e.Kind, Message: e.Message}
}

// AsExtractError coerces any error into an *ExtractError, wrapping unknown
// errors under ErrKindInternal so callers always see a typed failure.
func AsExtractError(err error) *ExtractError {
	if ee, ok := err.(*ExtractError); ok {
		return ee
	}
	return NewExtractError(ErrKindInternal, err.Error(), err)
}

// ErrKind returns the kind of an error, or ErrKindInternal for untyped errors.
func ErrKind(err error) string {
	if ee, ok := err.(*ExtractError); ok {
		return ee.Kind
	}
	return ErrKindInternal
}

// IsRetryable reports whether the orchestrator may retry a failure of this
// kind. Terminal kinds (unsupported page, cancellation, invalid input)
// always end the job.
func IsRetryable(kind string) bool {
	switch kind {
	case ErrKindNavigation, ErrKindFetchTimeout, ErrKindBlocked, ErrKindRenderCrash,
		ErrKindModelUnavailable, ErrKindMalformedResponse, ErrKindPoolExhausted:
		return true
	default:
		return false
	}
}
