package models

import (
	"errors"
	"fmt"
)

// ErrResumeUnavailable is returned when no usable resume attachment exists
// for a candidate. Runs hitting this defer and retry on a later cycle.
var ErrResumeUnavailable = errors.New("no usable resume attachment")

// ErrLockHeld is returned when a cycle lease is held by another instance
var ErrLockHeld = errors.New("scheduler lock held by another instance")

// TransientError wraps failures worth retrying (network, 5xx, rate limits)
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// AuthError marks credential or session failures against an upstream
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DataError marks unusable upstream payloads (malformed JSON, empty bodies,
// unparseable documents). Not retryable.
type DataError struct {
	Op  string
	Err error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: bad data: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// PolicyBlockError marks actions suppressed by a safety rule rather than a
// failure, such as the zero-job publish guard or a dedup window hit.
type PolicyBlockError struct {
	Policy string
	Detail string
}

func (e *PolicyBlockError) Error() string {
	return fmt.Sprintf("blocked by policy %s: %s", e.Policy, e.Detail)
}

// IsPolicyBlock reports whether err is a policy suppression
func IsPolicyBlock(err error) bool {
	var p *PolicyBlockError
	return errors.As(err, &p)
}
