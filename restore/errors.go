package restore

import (
	"errors"
)

// temporaryError and criticalError collapse the specification's
// six-kind error taxonomy into the two tiers that actually change
// driver behavior: retry in place, or stop and require operator
// intervention. This mirrors op-node's derive package, which wraps
// errors as temporary (safe to retry the step that produced them) or
// critical (the pipeline must halt) rather than branching on error
// type by hand at every call site.
type temporaryError struct{ err error }

func (e *temporaryError) Error() string { return e.err.Error() }
func (e *temporaryError) Unwrap() error { return e.err }

type criticalError struct{ err error }

func (e *criticalError) Error() string { return e.err.Error() }
func (e *criticalError) Unwrap() error { return e.err }

// NewTemporaryError wraps err as retryable: ChainRPCError-class
// failures (a dropped connection, a timed-out RPC call) where the
// driver should back off and try the same step again next iteration.
func NewTemporaryError(err error) error {
	return &temporaryError{err: err}
}

// NewCriticalError wraps err as fatal: DecodeError, InvariantViolation,
// and OpsDecodeError-class failures the driver must not paper over by
// retrying, since retrying would replay the same bad input.
func NewCriticalError(err error) error {
	return &criticalError{err: err}
}

// IsTemporary reports whether err (or anything it wraps) was marked
// retryable by NewTemporaryError.
func IsTemporary(err error) bool {
	var t *temporaryError
	return errors.As(err, &t)
}

// IsCritical reports whether err (or anything it wraps) was marked
// fatal by NewCriticalError.
func IsCritical(err error) bool {
	var c *criticalError
	return errors.As(err, &c)
}
