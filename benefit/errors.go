/*
errors.go - Centralized error types for the benefit engine

PURPOSE:
  All error types used across the engine in one place. Domain packages
  (referral, settlement) wrap these with additional context.

ERROR CATEGORIES:
  1. Authorization - actor lacks a required capability
  2. Not-found - referenced ambassador/settlement/lead missing
  3. Invalid transition - state machine violations (reprocessed payout,
     backward lead transition)
  4. Storage - persistence failures, always retryable-or-surfaced

PROPAGATION POLICY:
  Pure-calculation problems (negative counts, missing fee rows) are
  clamped or defaulted, never returned as errors - a wrong-but-bounded
  figure beats a crashed computation in financial display logic.
  Ledger-mutation problems are always surfaced, distinctly per
  category, so batch administrators can tell skip reasons apart.

USAGE:
  if errors.Is(err, benefit.ErrAlreadyProcessed) {
      // expected in bulk mode: count as skip, continue
  }

SEE ALSO:
  - settlement/payout.go: Maps these to per-item results
  - api/handlers.go: Maps these to HTTP statuses
*/
package benefit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotAuthorized is returned before any read or write when the
	// acting user lacks the required capability.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrAmbassadorNotFound is returned when a referenced ambassador
	// does not exist. Never silently treated as zero.
	ErrAmbassadorNotFound = errors.New("ambassador not found")

	// ErrSettlementNotFound is returned when a referenced settlement
	// does not exist.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrReferralNotFound is returned when a referenced lead does not
	// exist.
	ErrReferralNotFound = errors.New("referral not found")

	// ErrAlreadyProcessed is returned when processing a settlement that
	// has already transitioned to Processed. Expected and recoverable;
	// reported distinctly from storage failures.
	ErrAlreadyProcessed = errors.New("settlement already processed")

	// ErrInvalidTransition is returned on a backward or illegal status
	// transition (e.g. Confirmed lead back to New).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNothingPending is returned when creating a settlement for an
	// ambassador whose pending balance is zero.
	ErrNothingPending = errors.New("no pending balance to settle")

	// ErrStorage wraps transient persistence failures. Retryable; no
	// partial ledger mutation is observable when it is returned.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AuthorizationError reports which capability was missing.
type AuthorizationError struct {
	Actor      string
	Capability string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s lacks capability %s", e.Actor, e.Capability)
}

func (e *AuthorizationError) Unwrap() error { return ErrNotAuthorized }

// AlreadyProcessedError identifies the settlement and its existing
// bank reference, so a rejected retry can show what already happened.
type AlreadyProcessedError struct {
	SettlementID  SettlementID
	BankReference string
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("settlement %s already processed (ref %s)", e.SettlementID, e.BankReference)
}

func (e *AlreadyProcessedError) Unwrap() error { return ErrAlreadyProcessed }

// TransitionError describes an illegal lead status transition.
type TransitionError struct {
	ReferralID ReferralID
	From, To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("referral %s: cannot transition %s -> %s", e.ReferralID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAmbassadorNotFound) ||
		errors.Is(err, ErrSettlementNotFound) ||
		errors.Is(err, ErrReferralNotFound)
}

// IsClientError reports whether err is caused by the caller rather
// than the system (maps to 4xx at the API boundary).
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNothingPending) ||
		IsNotFound(err)
}

// IsRetryable reports whether err might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}
