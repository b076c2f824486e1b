package transport

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a failed send so callers can decide whether to retry.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureRateLimited
	FailureForbidden
	FailureBadRequest
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureForbidden:
		return "forbidden"
	case FailureBadRequest:
		return "bad_request"
	default:
		return "other"
	}
}

// SendError is returned by senders for failures the caller may want to
// handle differently. RetryAfter is only meaningful for FailureRateLimited.
type SendError struct {
	Kind       FailureKind
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string {
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == FailureRateLimited {
		return fmt.Sprintf("%s(retry after %s): %s", e.Kind, e.RetryAfter, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *SendError) Unwrap() error { return e.Err }

// RateLimited marks err as a rate-limit signal with the sink-specified delay.
func RateLimited(err error, after time.Duration) error {
	if after < 0 {
		after = 0
	}
	return &SendError{Kind: FailureRateLimited, RetryAfter: after, Err: err}
}

// Forbidden marks err as a permission/auth failure. It will not succeed on retry.
func Forbidden(err error) error { return &SendError{Kind: FailureForbidden, Err: err} }

// BadRequest marks err as a malformed request. It will not succeed on retry.
func BadRequest(err error) error { return &SendError{Kind: FailureBadRequest, Err: err} }

// Classify reports the failure kind of err and the retry delay (rate limits only).
// Errors that are not *SendError are FailureOther.
func Classify(err error) (FailureKind, time.Duration) {
	if err == nil {
		return FailureOther, 0
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind, se.RetryAfter
	}
	return FailureOther, 0
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	k, _ := Classify(err)
	return k == FailureForbidden || k == FailureBadRequest
}
