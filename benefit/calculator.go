/*
calculator.go - Total benefit computation with itemized breakdown

PURPOSE:
  Converts a set of confirmed referrals plus an ambassador context into
  a total monetary benefit. This is the central calculation that
  answers "how much has this ambassador earned?"

TWO BENEFIT SHAPES:
  Fee-discount eligible (parent, or staff with enrolled child):
    benefit = percent% of the ambassador's OWN baseStudentFee, once.
    Referral count only selects the tier; the discount is not summed
    per referral.

  Cash eligible (everyone else):
    benefit = percent% of EACH referral's fee basis, summed.
    Here the percentage is applied per referral.

LONG-TERM CARRYOVER:
  An ambassador who reached the top tier last year earns an extra
  15% of baseStudentFee (base) + 5% (new-referral bonus) on top of the
  tiered amount - but only if they have at least one confirmed
  referral in the current evaluation year. Zero referrals this year
  means no carryover: activation is per-year.

DETERMINISM:
  Calculate is pure. No clock reads, no storage. The caller pre-filters
  referrals by academic year (see year.go) and supplies prior-year
  counts in the context.

BREAKDOWN:
  Every line of the total is itemized (per-referral contribution,
  carryover base, bonus) so administrators can audit the figure.

SEE ALSO:
  - slab.go: Percentage resolution
  - settlement/ledger.go: Uses TotalAmount to compute pending balance
*/
package benefit

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// BREAKDOWN - Itemized audit trail for a computed total
// =============================================================================

type BreakdownKind string

const (
	LineFeeDiscount   BreakdownKind = "fee_discount"   // single discount against own fee
	LineReferralShare BreakdownKind = "referral_share" // per-referral cash contribution
	LineCarryoverBase BreakdownKind = "carryover_base" // elite base (15% of fee)
	LineCarryoverNew  BreakdownKind = "carryover_new"  // elite new-referral bonus (5% of fee)
)

// BreakdownLine is one itemized contribution to the total.
type BreakdownLine struct {
	Kind       BreakdownKind
	ReferralID ReferralID // set for LineReferralShare only
	Basis      Amount     // the amount the percent was applied to
	Percent    decimal.Decimal
	Amount     Amount
}

// Result is the output of Calculate.
type Result struct {
	TotalAmount Amount
	Percent     decimal.Decimal // resolved tier percent
	Breakdown   []BreakdownLine
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Carryover rates for elite ambassadors, as percentages of
// baseStudentFee. Configurable via factory program config.
var (
	DefaultCarryoverBasePercent  = decimal.NewFromInt(15)
	DefaultCarryoverBonusPercent = decimal.NewFromInt(5)
)

// Calculator computes total benefits. The zero value uses default
// ladders and carryover rates.
type Calculator struct {
	Slabs SlabResolver

	// Carryover rates; zero values fall back to the defaults.
	CarryoverBasePercent  decimal.Decimal
	CarryoverBonusPercent decimal.Decimal
}

func (c Calculator) carryoverRates() (base, bonus decimal.Decimal) {
	base, bonus = c.CarryoverBasePercent, c.CarryoverBonusPercent
	if base.IsZero() {
		base = DefaultCarryoverBasePercent
	}
	if bonus.IsZero() {
		bonus = DefaultCarryoverBonusPercent
	}
	return base, bonus
}

// Calculate computes the total benefit for the given confirmed
// referrals. The referrals slice must already be filtered to the
// current evaluation year's Confirmed leads.
func (c Calculator) Calculate(referrals []ReferralBasis, ctx AmbassadorContext) Result {
	percent := c.Slabs.ResolvePercent(len(referrals), ctx)

	result := Result{
		TotalAmount: ctx.BaseStudentFee.Zero(),
		Percent:     percent,
	}

	if ctx.FeeDiscountEligible() {
		// Single discount rate against the ambassador's own fee.
		if !percent.IsZero() {
			line := BreakdownLine{
				Kind:    LineFeeDiscount,
				Basis:   ctx.BaseStudentFee,
				Percent: percent,
				Amount:  ctx.BaseStudentFee.Percent(percent),
			}
			result.Breakdown = append(result.Breakdown, line)
			result.TotalAmount = result.TotalAmount.Add(line.Amount)
		}
	} else {
		// Percent applied per referral against that referral's basis.
		for _, ref := range referrals {
			line := BreakdownLine{
				Kind:       LineReferralShare,
				ReferralID: ref.ID,
				Basis:      ref.FeeBasisAmount,
				Percent:    percent,
				Amount:     ref.FeeBasisAmount.Percent(percent),
			}
			result.Breakdown = append(result.Breakdown, line)
			result.TotalAmount = result.TotalAmount.Add(line.Amount)
		}
	}

	// Long-term carryover: elite last year AND at least one confirmed
	// referral this year. Activation is per-year.
	if ctx.IsEliteLastYear && len(referrals) > 0 {
		basePct, bonusPct := c.carryoverRates()

		baseLine := BreakdownLine{
			Kind:    LineCarryoverBase,
			Basis:   ctx.BaseStudentFee,
			Percent: basePct,
			Amount:  ctx.BaseStudentFee.Percent(basePct),
		}
		bonusLine := BreakdownLine{
			Kind:    LineCarryoverNew,
			Basis:   ctx.BaseStudentFee,
			Percent: bonusPct,
			Amount:  ctx.BaseStudentFee.Percent(bonusPct),
		}
		result.Breakdown = append(result.Breakdown, baseLine, bonusLine)
		result.TotalAmount = result.TotalAmount.Add(baseLine.Amount).Add(bonusLine.Amount)
	}

	return result
}
