/*
Package benefit provides the core benefit computation engine for the
referral-ambassador program.

PURPOSE:
  This package contains the pure rules that convert a set of confirmed
  referrals into a monetary benefit: tier slab resolution, benefit
  calculation with an auditable breakdown, and academic-year resolution.
  Nothing here touches storage - callers supply the data, the engine
  computes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A currency quantity backed by decimal.Decimal
  - Role: Closed enumeration of ambassador roles
  - AmbassadorContext: Everything the calculator needs to know about
    the person being evaluated
  - ReferralBasis: One confirmed referral reduced to its fee basis
  - Entity IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Purity: Calculation functions are deterministic given their inputs
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Bounded answers: Malformed inputs are clamped/defaulted, never
     panicked on - this is financial-display logic
  4. Auditability: Every computed total carries an itemized breakdown

USAGE:
  ctx := benefit.AmbassadorContext{
      Role:           benefit.RoleParent,
      BaseStudentFee: benefit.NewAmount(60000),
  }
  result := benefit.Calculate(referrals, ctx)

SEE ALSO:
  - slab.go: Tier slab resolution
  - calculator.go: Total benefit computation
  - year.go: Academic-year resolution with tagged fallbacks
*/
package benefit

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Currency quantity
// =============================================================================

// DefaultCurrency is used when no currency code is supplied.
const DefaultCurrency = "INR"

type Amount struct {
	Value    decimal.Decimal
	Currency string
}

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: DefaultCurrency}
}

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value), Currency: DefaultCurrency}
}

func ZeroAmount() Amount {
	return Amount{Value: decimal.Zero, Currency: DefaultCurrency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount {
	return Amount{Value: a.Value.Mul(s), Currency: a.Currency}
}
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Currency: a.Currency} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }

// Percent applies a percentage to the amount (e.g. Percent(20) = 20%).
func (a Amount) Percent(pct decimal.Decimal) Amount {
	return Amount{
		Value:    a.Value.Mul(pct).Div(decimal.NewFromInt(100)),
		Currency: a.Currency,
	}
}

// FloorZero clamps negative amounts to zero. Ledger arithmetic may
// legitimately go negative (settlements exceeding re-derived earnings
// after a reversed referral); the displayed figure never does.
func (a Amount) FloorZero() Amount {
	if a.IsNegative() {
		return a.Zero()
	}
	return a
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AmbassadorID string
type ReferralID string
type StudentID string
type SettlementID string

// =============================================================================
// ROLE - Closed enumeration of ambassador roles
// =============================================================================

// Role is a closed enumeration. The program rules branch on eligibility
// class, which is derived from role plus the child-enrolled flag - never
// from string matching on role labels.
type Role string

const (
	RoleParent Role = "parent"
	RoleStaff  Role = "staff"
	RoleAlumni Role = "alumni"
	RoleOther  Role = "other"
)

// ValidRole reports whether r is a member of the enumeration.
func ValidRole(r Role) bool {
	switch r {
	case RoleParent, RoleStaff, RoleAlumni, RoleOther:
		return true
	}
	return false
}

// =============================================================================
// AMBASSADOR CONTEXT - Calculator input describing the ambassador
// =============================================================================

// AmbassadorContext carries everything the calculator needs about the
// ambassador being evaluated. It is assembled by the caller from the
// referral store; the engine never reads storage itself.
type AmbassadorContext struct {
	Role                  Role
	ChildEnrolledAtSchool bool
	BaseStudentFee        Amount
	IsEliteLastYear       bool

	// PreviousYearConfirmedReferrals is pre-filtered by academic year
	// by the caller (see year.go for the resolution rules).
	PreviousYearConfirmedReferrals int
}

// FeeDiscountEligible reports whether the ambassador earns a fee
// discount against their own student fee rather than cash commission.
// Parents always; staff only when their child is enrolled at the school.
func (c AmbassadorContext) FeeDiscountEligible() bool {
	if c.Role == RoleParent {
		return true
	}
	return c.Role == RoleStaff && c.ChildEnrolledAtSchool
}

// CashEligible is the complement of FeeDiscountEligible.
func (c AmbassadorContext) CashEligible() bool {
	return !c.FeeDiscountEligible()
}

// =============================================================================
// REFERRAL BASIS - One confirmed referral reduced to its fee basis
// =============================================================================

// BasisSource records how a referral's fee basis was obtained, so the
// breakdown can show which referrals carried no fee data.
type BasisSource string

const (
	SourceExplicitFee    BasisSource = "explicit_fee"     // lead carried its own base fee
	SourceFeeTableLookup BasisSource = "fee_table_lookup" // campus/grade/year fee table row
	SourceDefault        BasisSource = "default"          // degraded to caller-supplied default
)

// ReferralBasis is the calculator's view of one confirmed referral.
type ReferralBasis struct {
	ID             ReferralID
	FeeBasisAmount Amount
	Source         BasisSource
}
