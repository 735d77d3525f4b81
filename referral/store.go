/*
store.go - Persistence and fee-lookup interfaces for referral data

PURPOSE:
  Defines the boundary between referral domain logic and storage. The
  referral record store is owned externally; these interfaces are how
  the core reads and (for the confirmation transition) writes it.

KEY INTERFACES:
  Store:       Ambassadors, leads, students, derived confirmed counts
  FeeResolver: campus/grade/year/fee-type -> base fee (nil when no row)
  SlabStore:   BenefitSlab override rows per table

FEE LOOKUP CONTRACT:
  ResolveFeeBasis returns nil - NOT zero - when no fee-table row
  exists. The caller decides the fallback-to-zero policy (service.go
  degrades explicitly and tags the basis SourceDefault).

DERIVED COUNTS:
  CountConfirmed queries lead rows directly. Payout-affecting
  computations call it instead of reading the cached counter, so
  concurrent confirmations cannot drift the figure used for money.

IMPLEMENTATIONS:
  - store/sqlite: Durable production store
  - store/memory: In-memory store for tests and demos

SEE ALSO:
  - service.go: Uses these interfaces
  - store/sqlite/sqlite.go: Concrete implementation
*/
package referral

import (
	"context"

	"github.com/warp/referral-engine/benefit"
)

// =============================================================================
// STORE - Referral record persistence
// =============================================================================

type Store interface {
	// Ambassadors
	GetAmbassador(ctx context.Context, id benefit.AmbassadorID) (*Ambassador, error)
	SaveAmbassador(ctx context.Context, a Ambassador) error
	ListAmbassadors(ctx context.Context) ([]Ambassador, error)

	// Leads
	GetLead(ctx context.Context, id benefit.ReferralID) (*ReferralLead, error)
	SaveLead(ctx context.Context, lead ReferralLead) error
	ListLeads(ctx context.Context, ambassadorID benefit.AmbassadorID) ([]ReferralLead, error)

	// CountConfirmed re-derives the confirmed count from lead rows.
	// This, not the cached counter, feeds every monetary computation.
	CountConfirmed(ctx context.Context, ambassadorID benefit.AmbassadorID) (int, error)

	// Students
	GetStudent(ctx context.Context, id benefit.StudentID) (*Student, error)
	SaveStudent(ctx context.Context, s Student) error
}

// =============================================================================
// FEE RESOLVER - External fee-table lookup
// =============================================================================

// FeeResolver looks up the base fee for a campus/grade/year/fee-type
// combination. Returns nil (not zero) when no fee-table row exists;
// the caller owns the degrade-to-default policy.
type FeeResolver interface {
	ResolveFeeBasis(ctx context.Context, campusID, grade, academicYear string, feeType FeeType) (*benefit.Amount, error)
}

// =============================================================================
// SLAB STORE - BenefitSlab override rows
// =============================================================================

// SlabTableName identifies which default table an override row targets.
type SlabTableName string

const (
	TableFeeDiscount  SlabTableName = "fee_discount"
	TableElite        SlabTableName = "elite"
	TableConfirmation SlabTableName = "confirmation"
)

// SlabStore persists BenefitSlab override rows. Missing rows fall back
// to the hardcoded defaults in the benefit package.
type SlabStore interface {
	SlabOverrides(ctx context.Context, table SlabTableName) (benefit.SlabTable, error)
	PutSlabOverride(ctx context.Context, table SlabTableName, count int, percent string) error
}
