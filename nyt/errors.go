package nyt

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream failure.
type Kind int

const (
	// KindConnectivity means the API could not be reached or timed out after
	// the retry budget was spent.
	KindConnectivity Kind = iota + 1
	// KindRejected means the API answered with a non-2xx status.
	KindRejected
	// KindUnexpected covers everything else, such as a malformed body.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindRejected:
		return "upstream_rejected"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Error is returned by Client.Fetch for every failure.
type Error struct {
	Kind       Kind
	StatusCode int    // set for KindRejected
	Body       []byte // response body when one was read
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindConnectivity:
		return fmt.Sprintf("failed to connect to the New York Times API: %v", e.Err)
	case KindRejected:
		return fmt.Sprintf("New York Times API request failed with status %d", e.StatusCode)
	default:
		return fmt.Sprintf("unexpected error calling the New York Times API: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConnectivityError wraps a transport failure.
func NewConnectivityError(err error) *Error {
	return &Error{Kind: KindConnectivity, Err: err}
}

// NewRejectedError records a completed response with a failing status.
func NewRejectedError(status int, body []byte) *Error {
	return &Error{Kind: KindRejected, StatusCode: status, Body: body}
}

// NewUnexpectedError wraps anything not classifiable otherwise.
func NewUnexpectedError(err error) *Error {
	return &Error{Kind: KindUnexpected, Err: err}
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsConnectivity reports whether err is a connectivity failure.
func IsConnectivity(err error) bool {
	return KindOf(err) == KindConnectivity
}

// IsRejected reports whether err is an upstream rejection.
func IsRejected(err error) bool {
	return KindOf(err) == KindRejected
}

// IsUpstream reports whether err is attributable to the upstream dependency
// (connectivity or rejection) rather than to this service.
func IsUpstream(err error) bool {
	k := KindOf(err)
	return k == KindConnectivity || k == KindRejected
}
