package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnreachable      ErrorKind = "unreachable"
	KindFetch            ErrorKind = "fetch"
	KindSubmit           ErrorKind = "submit"
	KindNotFound         ErrorKind = "not_found"
	KindPoll             ErrorKind = "poll"
	KindConversionFailed ErrorKind = "conversion_failed"
	KindUnknownStatus    ErrorKind = "unknown_status"
)

// Kind sentinels, for errors.Is.
var (
	ErrUnreachable      = &APIError{Kind: KindUnreachable}
	ErrFetch            = &APIError{Kind: KindFetch}
	ErrSubmit           = &APIError{Kind: KindSubmit}
	ErrNotFound         = &APIError{Kind: KindNotFound}
	ErrPoll             = &APIError{Kind: KindPoll}
	ErrConversionFailed = &APIError{Kind: KindConversionFailed}
	ErrUnknownStatus    = &APIError{Kind: KindUnknownStatus}
)

// APIError is the single error type surfaced by ConversionClient. Transport
// failures and error responses from the service both end up here.
type APIError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error

	// local is set when the request was refused before anything was sent.
	local bool
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches any APIError of the same kind.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newAPIError(kind ErrorKind, status int, err error, format string, args ...any) *APIError {
	return &APIError{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: status,
		Err:        err,
	}
}

// rejectLocally reports input the client refused to send, such as an empty
// batch or an oversized file.
func rejectLocally(err error, format string, args ...any) *APIError {
	e := newAPIError(KindSubmit, 0, err, format, args...)
	e.local = true
	return e
}

// RejectedLocally reports whether err was raised before any request reached
// the conversion service.
func RejectedLocally(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.local
}

// KindOf returns the kind of err, or "" when err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
