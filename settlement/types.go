/*
Package settlement provides the authoritative payout ledger for the
referral program: pending-balance computation, settlement creation, and
the exactly-once payout processor.

PURPOSE:
  A Settlement is a snapshot of an ambassador's then-current pending
  benefit, created by an administrator and later paid out exactly once.
  The package computes pending balances (computed benefit minus amounts
  already Processed) and guards the Pending -> Processed transition
  against double payment under concurrent administrative access.

CRITICAL INVARIANTS:
  1. Amount is fixed at creation - a snapshot, never re-derived later
  2. Processed settlements are immutable: amount, bank reference and
     payout date never change
  3. No backward transition from Processed to Pending. EVER.
  4. Concurrent processing of one settlement yields exactly one
     success; the rest are rejected as already-processed

SIDE EFFECTS:
  Audit entries and user notifications are emitted AFTER a successful
  ledger mutation and are best-effort: their failure never rolls the
  mutation back.

SEE ALSO:
  - ledger.go: Pending computation and settlement creation
  - payout.go: Single and bulk payout processing
  - authz.go: Role/capability gating of mutations
*/
package settlement

import (
	"context"
	"time"

	"github.com/warp/referral-engine/benefit"
)

// =============================================================================
// SETTLEMENT - One payout record
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
)

type Settlement struct {
	ID           benefit.SettlementID
	AmbassadorID benefit.AmbassadorID

	// Amount is the pending-benefit snapshot taken at creation time.
	Amount benefit.Amount

	// Percent is the tier percent in effect when the snapshot was
	// taken, recorded for the audit trail.
	Percent string

	Status        Status
	BankReference string // set only on processing
	Remarks       string
	ProcessedBy   string // administrator id
	PayoutDate    *time.Time
	CreatedAt     time.Time
}

// =============================================================================
// STORE - Settlement persistence
// =============================================================================

// ProcessedUpdate carries the fields written by the payout transition.
type ProcessedUpdate struct {
	BankReference string
	Remarks       string
	ProcessedBy   string
	PayoutDate    time.Time
}

// Store persists settlement rows. MarkProcessed is the only mutation
// of an existing row and must be atomic per row: the status check and
// the write happen as one unit, so concurrent callers racing on the
// same settlement get exactly one success.
type Store interface {
	CreateSettlement(ctx context.Context, s Settlement) error
	GetSettlement(ctx context.Context, id benefit.SettlementID) (*Settlement, error)
	ListSettlements(ctx context.Context, ambassadorID benefit.AmbassadorID) ([]Settlement, error)
	ListByStatus(ctx context.Context, status Status) ([]Settlement, error)

	// SumProcessed totals the amounts of Processed settlements for an
	// ambassador. Pending rows are reservations, not completions, and
	// are excluded.
	SumProcessed(ctx context.Context, ambassadorID benefit.AmbassadorID) (benefit.Amount, error)

	// MarkProcessed transitions a Pending settlement to Processed.
	// Returns benefit.ErrSettlementNotFound if the row is missing and
	// benefit.ErrAlreadyProcessed if it is not Pending.
	MarkProcessed(ctx context.Context, id benefit.SettlementID, update ProcessedUpdate) error
}

// =============================================================================
// AUDIT LOG & NOTIFIER - Side-effect boundary interfaces
// =============================================================================

type AuditKind string

const (
	AuditSettlementCreated AuditKind = "settlement_created"
	AuditPayoutProcessed   AuditKind = "payout_processed"
	AuditBulkPayout        AuditKind = "bulk_payout"
	AuditSlabChanged       AuditKind = "slab_changed"
)

// AuditEntry records who did what when. Append-only.
type AuditEntry struct {
	Kind        AuditKind
	Subject     string // ambassador or settlement the action concerns
	Description string
	RefID       string // bank/transaction reference where applicable
	ActorID     string
	Metadata    map[string]string
	At          time.Time
}

type AuditLog interface {
	LogAction(ctx context.Context, entry AuditEntry) error
}

// Notifier delivers a user-facing message. Best-effort: callers log
// failures and move on; delivery mechanics live outside the core.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message, kind string) error
}

// NopAudit and NopNotifier are used when the collaborators are absent.
type NopAudit struct{}

func (NopAudit) LogAction(context.Context, AuditEntry) error { return nil }

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, string, string) error { return nil }
