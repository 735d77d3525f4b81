package benefit_test

import (
	"fmt"
	"testing"

	"github.com/warp/referral-engine/benefit"
)

func bases(fees ...int64) []benefit.ReferralBasis {
	out := make([]benefit.ReferralBasis, len(fees))
	for i, fee := range fees {
		out[i] = benefit.ReferralBasis{
			ID:             benefit.ReferralID(fmt.Sprintf("ref-%d", i+1)),
			FeeBasisAmount: benefit.NewAmountFromInt(fee),
			Source:         benefit.SourceExplicitFee,
		}
	}
	return out
}

// =============================================================================
// FEE-DISCOUNT CALCULATION TESTS
// =============================================================================

func TestCalculate_FeeDiscount_AppliedOnceNotPerReferral(t *testing.T) {
	// GIVEN: Parent with fee 60000 and 3 confirmed referrals
	// WHEN: Calculating the benefit
	// THEN: 20% of 60000 = 12000, applied once (not 3x)

	ctx := benefit.AmbassadorContext{
		Role:           benefit.RoleParent,
		BaseStudentFee: benefit.NewAmountFromInt(60000),
	}
	result := benefit.Calculator{}.Calculate(bases(50000, 55000, 70000), ctx)

	if !result.TotalAmount.Equal(benefit.NewAmountFromInt(12000)) {
		t.Errorf("expected 12000, got %s", result.TotalAmount.Value)
	}
	if !result.Percent.Equal(pct(20)) {
		t.Errorf("expected percent 20, got %s", result.Percent)
	}
	if len(result.Breakdown) != 1 {
		t.Fatalf("expected a single fee-discount line, got %d", len(result.Breakdown))
	}
	if result.Breakdown[0].Kind != benefit.LineFeeDiscount {
		t.Errorf("expected fee_discount line, got %s", result.Breakdown[0].Kind)
	}
}

func TestCalculate_StaffWithEnrolledChild_FeeDiscount(t *testing.T) {
	// Staff with an enrolled child is fee-discount eligible, same as a parent.
	ctx := benefit.AmbassadorContext{
		Role:                  benefit.RoleStaff,
		ChildEnrolledAtSchool: true,
		BaseStudentFee:        benefit.NewAmountFromInt(60000),
	}
	result := benefit.Calculator{}.Calculate(bases(50000), ctx)

	// 1 referral -> 5% of 60000 = 3000
	if !result.TotalAmount.Equal(benefit.NewAmountFromInt(3000)) {
		t.Errorf("expected 3000, got %s", result.TotalAmount.Value)
	}
}

// =============================================================================
// CASH CALCULATION TESTS
// =============================================================================

func TestCalculate_Cash_SummedPerReferral(t *testing.T) {
	// GIVEN: Cash-eligible ambassador with 4 referrals at
	//        50000/60000/70000/80000
	// WHEN: Calculating the benefit
	// THEN: 80% applied per referral and summed = 208000

	ctx := benefit.AmbassadorContext{Role: benefit.RoleAlumni}
	result := benefit.Calculator{}.Calculate(bases(50000, 60000, 70000, 80000), ctx)

	if !result.TotalAmount.Equal(benefit.NewAmountFromInt(208000)) {
		t.Errorf("expected 208000, got %s", result.TotalAmount.Value)
	}
	if !result.Percent.Equal(pct(80)) {
		t.Errorf("expected percent 80, got %s", result.Percent)
	}
	if len(result.Breakdown) != 4 {
		t.Fatalf("expected 4 referral-share lines, got %d", len(result.Breakdown))
	}
	for _, line := range result.Breakdown {
		if line.Kind != benefit.LineReferralShare {
			t.Errorf("expected referral_share line, got %s", line.Kind)
		}
		if line.ReferralID == "" {
			t.Error("referral-share line should carry its referral id")
		}
	}
}

func TestCalculate_StaffWithoutEnrolledChild_Cash(t *testing.T) {
	// Staff without an enrolled child is cash eligible.
	ctx := benefit.AmbassadorContext{Role: benefit.RoleStaff}
	result := benefit.Calculator{}.Calculate(bases(50000), ctx)

	// 1 referral -> 20% of 50000 = 10000
	if !result.TotalAmount.Equal(benefit.NewAmountFromInt(10000)) {
		t.Errorf("expected 10000, got %s", result.TotalAmount.Value)
	}
}

func TestCalculate_NoReferrals_ZeroEverything(t *testing.T) {
	ctx := benefit.AmbassadorContext{
		Role:           benefit.RoleParent,
		BaseStudentFee: benefit.NewAmountFromInt(60000),
	}
	result := benefit.Calculator{}.Calculate(nil, ctx)

	if !result.TotalAmount.IsZero() {
		t.Errorf("expected 0, got %s", result.TotalAmount.Value)
	}
	if len(result.Breakdown) != 0 {
		t.Errorf("expected empty breakdown, got %d lines", len(result.Breakdown))
	}
}

// =============================================================================
// CARRYOVER TESTS
// =============================================================================

func TestCalculate_EliteCarryover_WithNewReferral(t *testing.T) {
	// GIVEN: Elite-last-year parent with fee 60000 and 1 confirmed
	//        referral this year
	// WHEN: Calculating the benefit
	// THEN: 5% tier (3000) + 15% base (9000) + 5% bonus (3000) = 15000

	ctx := benefit.AmbassadorContext{
		Role:            benefit.RoleParent,
		BaseStudentFee:  benefit.NewAmountFromInt(60000),
		IsEliteLastYear: true,
	}
	result := benefit.Calculator{}.Calculate(bases(50000), ctx)

	if !result.TotalAmount.Equal(benefit.NewAmountFromInt(15000)) {
		t.Errorf("expected 15000, got %s", result.TotalAmount.Value)
	}

	kinds := map[benefit.BreakdownKind]bool{}
	for _, line := range result.Breakdown {
		kinds[line.Kind] = true
	}
	if !kinds[benefit.LineCarryoverBase] || !kinds[benefit.LineCarryoverNew] {
		t.Errorf("expected carryover base and bonus lines, got %v", kinds)
	}
}

func TestCalculate_EliteCarryover_NoReferralsThisYear_NotPaid(t *testing.T) {
	// GIVEN: Elite-last-year parent with zero confirmed referrals this year
	// WHEN: Calculating the benefit
	// THEN: No carryover - activation is per-year

	ctx := benefit.AmbassadorContext{
		Role:            benefit.RoleParent,
		BaseStudentFee:  benefit.NewAmountFromInt(60000),
		IsEliteLastYear: true,
	}
	result := benefit.Calculator{}.Calculate(nil, ctx)

	if !result.TotalAmount.IsZero() {
		t.Errorf("expected 0 without current-year referrals, got %s", result.TotalAmount.Value)
	}
}

func TestCalculate_CarryoverRates_Configurable(t *testing.T) {
	calc := benefit.Calculator{
		CarryoverBasePercent:  pct(10),
		CarryoverBonusPercent: pct(2),
	}
	ctx := benefit.AmbassadorContext{
		Role:            benefit.RoleParent,
		BaseStudentFee:  benefit.NewAmountFromInt(60000),
		IsEliteLastYear: true,
	}
	result := calc.Calculate(bases(50000), ctx)

	// 5% elite tier (3000) + 10% base (6000) + 2% bonus (1200) = 10200
	if !result.TotalAmount.Equal(benefit.NewAmountFromInt(10200)) {
		t.Errorf("expected 10200, got %s", result.TotalAmount.Value)
	}
}

// =============================================================================
// AMOUNT TESTS
// =============================================================================

func TestAmount_FloorZero(t *testing.T) {
	neg := benefit.NewAmountFromInt(100).Sub(benefit.NewAmountFromInt(250))
	if !neg.IsNegative() {
		t.Fatal("setup: expected negative amount")
	}
	if !neg.FloorZero().IsZero() {
		t.Errorf("expected 0, got %s", neg.FloorZero().Value)
	}

	pos := benefit.NewAmountFromInt(100)
	if !pos.FloorZero().Equal(pos) {
		t.Error("positive amounts should pass through unchanged")
	}
}
