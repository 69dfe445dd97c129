package api

import "errors"

// Kind classifies an API failure at the client boundary so callers can
// branch without matching message substrings.
type Kind int

const (
	KindNetwork Kind = iota
	KindAuth
	KindPermission
	KindDomain
)

// Domain error codes the orchestration layer reacts to.
const (
	CodeInsufficientBalance = "insufficient_balance"
)

// Error is the typed failure returned by every Client method.
type Error struct {
	Kind    Kind
	Code    string // backend error code, set for KindDomain
	Message string // server-provided message when available
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return "api request failed"
}

func (e *Error) Unwrap() error { return e.cause }

// AsError extracts a typed *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsInsufficientBalance reports whether err is the affordability domain error.
func IsInsufficientBalance(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Kind == KindDomain && apiErr.Code == CodeInsufficientBalance
}
