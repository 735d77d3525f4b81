/*
slab.go - Tier slab resolution

PURPOSE:
  Maps a confirmed-referral count to a benefit percentage. The mapping
  branches on eligibility class (cash vs fee-discount) and on elite
  status carried over from the prior academic year.

THE LADDERS:
  Cash-eligible:       linear, min(count,5) * 20  ->  0/20/40/60/80/100
  Fee-discount:        non-linear with a deliberate jump at count 3
    standard:          {1:5, 2:10, 3:20, 4:30, 5:50}
    elite (last year): {1:5, 2:10, 3:15, 4:20, 5:25}

  The count-3 jump on the standard ladder is the "Silver tier"
  incentive and must not be smoothed. The elite ladder pays LESS at
  high counts; the long-term carryover bonus (calculator.go)
  compensates.

TWO DEFAULT TABLES:
  The confirmation transition records a provisional percent using a
  table that differs from the calculator's ladder at count 3 (25 vs
  20). These are kept as two independently configurable tables
  (DefaultFeeDiscountLadder vs DefaultConfirmationLadder) rather than
  unified - the program owner treats confirmation-time percent as
  provisional and the computed percent as final.

OVERRIDES:
  BenefitSlab rows override individual counts of a ladder. Missing
  rows fall back to the defaults. Overrides are supplied by the
  caller (loaded from the slab store); the resolver itself is pure.

EDGE CASES:
  - count is clamped to [0, 5] before lookup
  - count 0 always yields 0, regardless of elite status or overrides

SEE ALSO:
  - calculator.go: Applies the resolved percent
  - factory/config.go: JSON slab configuration
*/
package benefit

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// SLAB TABLE - Percent per confirmed-referral count (1-5)
// =============================================================================

// SlabTable maps a confirmed-referral count (1-5) to a percentage.
// Count 0 is never stored; it always resolves to zero.
type SlabTable map[int]decimal.Decimal

func slabTable(percents map[int]int) SlabTable {
	t := make(SlabTable, len(percents))
	for count, pct := range percents {
		t[count] = decimal.NewFromInt(int64(pct))
	}
	return t
}

// DefaultFeeDiscountLadder is the calculator's standard fee-discount
// ladder. Note the tier jump at count 3 (10 -> 20).
func DefaultFeeDiscountLadder() SlabTable {
	return slabTable(map[int]int{1: 5, 2: 10, 3: 20, 4: 30, 5: 50})
}

// DefaultEliteLadder applies when the ambassador was a top-tier
// performer last year. Flatter than the standard ladder; the
// carryover bonus makes up the difference.
func DefaultEliteLadder() SlabTable {
	return slabTable(map[int]int{1: 5, 2: 10, 3: 15, 4: 20, 5: 25})
}

// DefaultConfirmationLadder is used by the referral-confirmation
// transition to record a provisional percent. It intentionally
// diverges from DefaultFeeDiscountLadder at count 3 (25 vs 20) and is
// configured independently.
func DefaultConfirmationLadder() SlabTable {
	return slabTable(map[int]int{1: 5, 2: 10, 3: 25, 4: 30, 5: 50})
}

// Merge returns a copy of t with override rows applied. Nil or empty
// overrides return t unchanged.
func (t SlabTable) Merge(overrides SlabTable) SlabTable {
	if len(overrides) == 0 {
		return t
	}
	merged := make(SlabTable, len(t))
	for count, pct := range t {
		merged[count] = pct
	}
	for count, pct := range overrides {
		if count >= 1 && count <= MaxSlabCount {
			merged[count] = pct
		}
	}
	return merged
}

// =============================================================================
// SLAB RESOLVER
// =============================================================================

// MaxSlabCount caps the tier table. Referral counts above this do not
// unlock additional percentage.
const MaxSlabCount = 5

var cashStepPercent = decimal.NewFromInt(20)

// SlabResolver resolves the benefit percentage for a confirmed-referral
// count. Zero value uses the default ladders; set the table fields to
// apply configured overrides.
type SlabResolver struct {
	FeeDiscountLadder SlabTable // nil -> DefaultFeeDiscountLadder
	EliteLadder       SlabTable // nil -> DefaultEliteLadder
}

// ClampCount clamps a referral count into [0, MaxSlabCount].
// Negative counts are data errors upstream; they resolve to zero
// rather than crashing a financial display.
func ClampCount(count int) int {
	if count < 0 {
		return 0
	}
	if count > MaxSlabCount {
		return MaxSlabCount
	}
	return count
}

// ResolvePercent returns the benefit percentage for the given
// confirmed-referral count and ambassador context.
func (r SlabResolver) ResolvePercent(confirmedCount int, ctx AmbassadorContext) decimal.Decimal {
	count := ClampCount(confirmedCount)
	if count == 0 {
		return decimal.Zero
	}

	if ctx.CashEligible() {
		return decimal.NewFromInt(int64(count)).Mul(cashStepPercent)
	}

	ladder := r.FeeDiscountLadder
	if ctx.IsEliteLastYear {
		ladder = r.EliteLadder
		if ladder == nil {
			ladder = DefaultEliteLadder()
		}
	} else if ladder == nil {
		ladder = DefaultFeeDiscountLadder()
	}

	pct, ok := ladder[count]
	if !ok {
		return decimal.Zero
	}
	return pct
}

// ResolveConfirmationPercent returns the provisional percent recorded
// by the referral-confirmation transition, from the confirmation table
// with overrides applied. It does not branch on eligibility or elite
// status - the final figure comes from ResolvePercent at computation
// time.
func ResolveConfirmationPercent(confirmedCount int, overrides SlabTable) decimal.Decimal {
	count := ClampCount(confirmedCount)
	if count == 0 {
		return decimal.Zero
	}
	table := DefaultConfirmationLadder().Merge(overrides)
	pct, ok := table[count]
	if !ok {
		return decimal.Zero
	}
	return pct
}
