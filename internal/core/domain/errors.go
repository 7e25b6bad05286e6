package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates pipeline failures.
type Kind int

const (
	KindUnknown        Kind = iota
	KindCircuitOpen         // breaker is not accepting attempts
	KindNetworkOffline      // offline and the caller opted out of queueing
	KindServerDown          // retry budget exhausted on a retryable failure
	KindAuthentication      // credentials rejected (401)
	KindClientError         // non-retryable 4xx, surfaced unchanged
	KindServerError         // 5xx, 429 or 408 response
	KindTimeout             // per-attempt timeout expired
	KindTransport           // no response received
	KindInvalidRequest      // request could not be built or sent as given
)

func (k Kind) String() string {
	switch k {
	case KindCircuitOpen:
		return "circuit_open"
	case KindNetworkOffline:
		return "network_offline"
	case KindServerDown:
		return "server_down"
	case KindAuthentication:
		return "authentication"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Error is an immutable pipeline failure.
type Error struct {
	Kind       Kind
	StatusCode int           // set when a response was received
	Message    string        // response body or short reason
	RetryIn    time.Duration // remaining cooldown for KindCircuitOpen
	Cause      error
}

// Sentinels for errors.Is; matching is by Kind only.
var (
	ErrCircuitOpen    = &Error{Kind: KindCircuitOpen}
	ErrNetworkOffline = &Error{Kind: KindNetworkOffline}
	ErrServerDown     = &Error{Kind: KindServerDown}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrClientError    = &Error{Kind: KindClientError}
	ErrServerError    = &Error{Kind: KindServerError}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrTransport      = &Error{Kind: KindTransport}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindCircuitOpen:
		return fmt.Sprintf("circuit open, retry in %s", e.RetryIn.Round(time.Second))
	case KindNetworkOffline:
		return "network offline"
	case KindServerDown:
		if e.Cause != nil {
			return fmt.Sprintf("server down: %v", e.Cause)
		}
		return "server down"
	}

	msg := e.Kind.String()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: http %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewCircuitOpenError reports a rejected attempt and the cooldown left.
func NewCircuitOpenError(retryIn time.Duration) *Error {
	return &Error{Kind: KindCircuitOpen, RetryIn: retryIn}
}

// NewServerDownError wraps the last failure of an exhausted request.
func NewServerDownError(last error) *Error {
	return &Error{Kind: KindServerDown, Cause: last}
}

// NewStatusError builds the error for a non-success response.
func NewStatusError(resp *Response) *Error {
	kind := KindClientError
	switch {
	case resp.StatusCode == 401:
		kind = KindAuthentication
	case resp.StatusCode >= 500, resp.StatusCode == 429, resp.StatusCode == 408:
		kind = KindServerError
	}
	return &Error{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Message:    truncate(string(resp.Body), 256),
	}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
