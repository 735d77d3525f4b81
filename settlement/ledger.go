/*
ledger.go - Pending-balance computation and settlement creation

PURPOSE:
  Answers "how much does the program still owe this ambassador?" and
  snapshots that figure into a new Pending settlement.

THE PENDING FORMULA:
  totalEarned  = benefit calculator over the ambassador's confirmed
                 referrals for the current academic year (re-derived
                 from lead rows on every call - never the cached
                 counter)
  totalSettled = sum of Processed settlement amounts
  pending      = max(0, totalEarned - totalSettled)

WHY THE FLOOR:
  A later-reversed referral can push settled above re-derived earnings.
  That discrepancy is a reporting concern; pending displays zero, it
  does not go negative and it does not error.

WHY PENDING SETTLEMENTS DON'T COUNT AS SETTLED:
  A Pending settlement is a reservation. Counting it as paid would
  understate the balance if it is never processed; the exactly-once
  payout guard (payout.go) handles the double-payment risk instead.

SEE ALSO:
  - benefit/calculator.go: totalEarned
  - payout.go: Pending -> Processed transition
*/
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/referral"
)

// =============================================================================
// PENDING SUMMARY
// =============================================================================

// PendingSummary is the full accounting picture for one ambassador.
type PendingSummary struct {
	AmbassadorID benefit.AmbassadorID
	Year         string

	TotalEarned    benefit.Amount
	TotalSettled   benefit.Amount
	Pending        benefit.Amount
	BenefitPercent decimal.Decimal

	// Breakdown itemizes TotalEarned for auditability.
	Breakdown []benefit.BreakdownLine
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger computes pending balances and creates settlement snapshots.
type Ledger struct {
	Referrals *referral.Service
	Store     Store
	Audit     AuditLog
	Years     benefit.AcademicYearConfig

	// Carryover rate overrides for the calculator; zero uses defaults.
	CarryoverBasePercent  decimal.Decimal
	CarryoverBonusPercent decimal.Decimal

	// Now and NewID are injected for tests.
	Now   func() time.Time
	NewID func() benefit.SettlementID
}

func NewLedger(referrals *referral.Service, store Store, audit AuditLog) *Ledger {
	if audit == nil {
		audit = NopAudit{}
	}
	return &Ledger{
		Referrals: referrals,
		Store:     store,
		Audit:     audit,
		Years:     benefit.DefaultAcademicYearConfig(),
	}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

func (l *Ledger) newID() benefit.SettlementID {
	if l.NewID != nil {
		return l.NewID()
	}
	return benefit.SettlementID(fmt.Sprintf("stl-%d", time.Now().UnixNano()))
}

// calculator builds a Calculator with slab overrides loaded from the
// slab store, so configured BenefitSlab rows take effect without
// process restarts.
func (l *Ledger) calculator(ctx context.Context) (benefit.Calculator, error) {
	calc := benefit.Calculator{
		CarryoverBasePercent:  l.CarryoverBasePercent,
		CarryoverBonusPercent: l.CarryoverBonusPercent,
	}
	if l.Referrals.Slabs == nil {
		return calc, nil
	}
	feeOverrides, err := l.Referrals.Slabs.SlabOverrides(ctx, referral.TableFeeDiscount)
	if err != nil {
		return calc, fmt.Errorf("load fee-discount slabs: %w", err)
	}
	eliteOverrides, err := l.Referrals.Slabs.SlabOverrides(ctx, referral.TableElite)
	if err != nil {
		return calc, fmt.Errorf("load elite slabs: %w", err)
	}
	calc.Slabs = benefit.SlabResolver{
		FeeDiscountLadder: benefit.DefaultFeeDiscountLadder().Merge(feeOverrides),
		EliteLadder:       benefit.DefaultEliteLadder().Merge(eliteOverrides),
	}
	return calc, nil
}

// CalculatePending computes the pending balance for an ambassador as
// of now. Every figure is re-derived from lead and settlement rows.
func (l *Ledger) CalculatePending(ctx context.Context, ambassadorID benefit.AmbassadorID) (PendingSummary, error) {
	amb, err := l.Referrals.Store.GetAmbassador(ctx, ambassadorID)
	if err != nil {
		return PendingSummary{}, err
	}
	if amb == nil {
		return PendingSummary{}, benefit.ErrAmbassadorNotFound
	}

	year := l.Years.YearFor(l.now())

	bases, err := l.Referrals.ConfirmedBases(ctx, ambassadorID, year, nil)
	if err != nil {
		return PendingSummary{}, fmt.Errorf("list confirmed referrals: %w", err)
	}
	ambCtx, err := l.Referrals.ContextFor(ctx, *amb, year)
	if err != nil {
		return PendingSummary{}, err
	}

	calc, err := l.calculator(ctx)
	if err != nil {
		return PendingSummary{}, err
	}
	result := calc.Calculate(bases, ambCtx)

	settled, err := l.Store.SumProcessed(ctx, ambassadorID)
	if err != nil {
		return PendingSummary{}, fmt.Errorf("sum processed settlements: %w", err)
	}

	return PendingSummary{
		AmbassadorID:   ambassadorID,
		Year:           year,
		TotalEarned:    result.TotalAmount,
		TotalSettled:   settled,
		Pending:        result.TotalAmount.Sub(settled).FloorZero(),
		BenefitPercent: result.Percent,
		Breakdown:      result.Breakdown,
	}, nil
}

// CreateSettlement snapshots the current pending balance into a new
// Pending settlement. Authorization is checked before any read.
func (l *Ledger) CreateSettlement(ctx context.Context, actor Actor, ambassadorID benefit.AmbassadorID, remarks string) (*Settlement, error) {
	if err := Require(actor, CapCreateSettlement); err != nil {
		return nil, err
	}

	summary, err := l.CalculatePending(ctx, ambassadorID)
	if err != nil {
		return nil, err
	}
	if summary.Pending.IsZero() {
		return nil, benefit.ErrNothingPending
	}

	s := Settlement{
		ID:           l.newID(),
		AmbassadorID: ambassadorID,
		Amount:       summary.Pending,
		Percent:      summary.BenefitPercent.String(),
		Status:       StatusPending,
		Remarks:      remarks,
		CreatedAt:    l.now(),
	}
	if err := l.Store.CreateSettlement(ctx, s); err != nil {
		return nil, fmt.Errorf("create settlement: %w", err)
	}

	// Side effect after the successful mutation; failure is non-fatal.
	_ = l.Audit.LogAction(ctx, AuditEntry{
		Kind:        AuditSettlementCreated,
		Subject:     string(ambassadorID),
		Description: fmt.Sprintf("settlement %s created for %s", s.ID, s.Amount.Value),
		ActorID:     actor.ID,
		At:          s.CreatedAt,
	})

	return &s, nil
}
