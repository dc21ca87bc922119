// Package fault holds the ledger's error taxonomy.
//
// Every rejection the ledger can produce is one of the sentinels below. Callers
// compare with errors.Is; Wrapf adds detail without losing the identity.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding whether and when to retry.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindState
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Error is a classified ledger error.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) Unwrap() error { return e.cause }

func newSentinel(kind Kind, code, msg string, retryable bool) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Retryable: retryable}
}

var (
	ErrInvalidInput          = newSentinel(KindValidation, "invalid_input", "invalid input", false)
	ErrStakeTooLow           = newSentinel(KindValidation, "stake_too_low", "stake below minimum", false)
	ErrInvalidResolutionTime = newSentinel(KindValidation, "invalid_resolution_time", "resolution time must be in the future", false)
	ErrInvalidPolicy         = newSentinel(KindValidation, "invalid_policy", "invalid policy", false)

	ErrUnauthorizedWallet = newSentinel(KindAuthorization, "unauthorized_wallet", "submitter is not the agent's authorized wallet", false)
	ErrForbidden          = newSentinel(KindAuthorization, "forbidden", "operator permission required", false)

	ErrDuplicateClaim     = newSentinel(KindState, "duplicate_claim", "claim already exists", false)
	ErrClaimNotFound      = newSentinel(KindState, "claim_not_found", "claim not found", false)
	ErrAgentNotFound      = newSentinel(KindState, "agent_not_found", "agent not found", false)
	ErrAlreadyResolved    = newSentinel(KindState, "already_resolved", "claim already resolved", false)
	ErrNotYetEligible     = newSentinel(KindState, "not_yet_eligible", "claim not yet eligible for resolution", true)
	ErrAssertionPending   = newSentinel(KindState, "assertion_pending", "assertion already pending", false)
	ErrAssertionSettled   = newSentinel(KindState, "assertion_settled", "assertion already settled", false)
	ErrAssertionNotFound  = newSentinel(KindState, "assertion_not_found", "assertion not found", false)
	ErrOutcomeNotSet      = newSentinel(KindState, "outcome_not_set", "outcome not set", true)
	ErrLivenessNotElapsed = newSentinel(KindState, "liveness_not_elapsed", "liveness window has not elapsed", true)
	ErrInsufficientFunds  = newSentinel(KindState, "insufficient_funds", "insufficient funds", false)

	ErrOracleUnavailable = newSentinel(KindExternal, "oracle_unavailable", "oracle service unavailable", true)
)

// Wrapf returns a copy of sentinel whose message is extended with detail.
func Wrapf(sentinel *Error, format string, args ...any) *Error {
	cp := *sentinel
	cp.Message = sentinel.Message + ": " + fmt.Sprintf(format, args...)
	return &cp
}

// Cause returns a copy of sentinel that wraps an underlying error.
func Cause(sentinel *Error, err error) *Error {
	cp := *sentinel
	cp.cause = err
	return &cp
}

// As extracts the classified error from err, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsRetryable reports whether err is a classified error callers may retry later.
func IsRetryable(err error) bool {
	fe, ok := As(err)
	return ok && fe.Retryable
}
