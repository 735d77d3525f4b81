/*
Package referral provides the referral-lead lifecycle and the bridge
between stored leads and the pure benefit engine.

PURPOSE:
  Owns the domain model around referrals: ambassadors, leads, admitted
  students, and the confirmation transition. Converts stored leads into
  the fee bases the calculator consumes, applying the academic-year and
  fee-basis fallback chains.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ambassador: A program participant who refers prospective families
  - ReferralLead: One referral attempt with a forward-only status
    machine (New -> Follow-up -> Confirmed, or -> Rejected)
  - Student: The admitted student a confirmed lead links to
  - FeeType: Which fee-table column supplies the base fee (OTP/WOTP)

CACHED COUNTER DISCIPLINE:
  Ambassador.ConfirmedReferralCount is a display cache. Every
  payout-affecting computation re-derives the count from lead rows
  (Store.CountConfirmed) - the cache is written by the confirmation
  transition but never trusted when money depends on it.

SEE ALSO:
  - store.go: Persistence and fee-lookup interfaces
  - service.go: Confirmation transition and basis building
*/
package referral

import (
	"time"

	"github.com/warp/referral-engine/benefit"
)

// =============================================================================
// AMBASSADOR
// =============================================================================

type BenefitStatus string

const (
	BenefitActive   BenefitStatus = "active"
	BenefitInactive BenefitStatus = "inactive"
)

// Ambassador is a person enrolled in the referral program.
// Never deleted; Archived ends participation while preserving history.
type Ambassador struct {
	ID                    benefit.AmbassadorID
	Name                  string
	Role                  benefit.Role
	ChildEnrolledAtSchool bool // only meaningful for staff
	BaseStudentFee        benefit.Amount

	// ConfirmedReferralCount is a denormalized display cache, written
	// by the confirmation transition. See package comment.
	ConfirmedReferralCount int

	IsEliteLastYear bool
	BenefitStatus   BenefitStatus
	Archived        bool
	CreatedAt       time.Time
}

// Context assembles the calculator's view of this ambassador.
// previousYearConfirmed must be derived from lead rows, not the cache.
func (a Ambassador) Context(previousYearConfirmed int) benefit.AmbassadorContext {
	return benefit.AmbassadorContext{
		Role:                           a.Role,
		ChildEnrolledAtSchool:          a.ChildEnrolledAtSchool,
		BaseStudentFee:                 a.BaseStudentFee,
		IsEliteLastYear:                a.IsEliteLastYear,
		PreviousYearConfirmedReferrals: previousYearConfirmed,
	}
}

// =============================================================================
// REFERRAL LEAD
// =============================================================================

type LeadStatus string

const (
	StatusNew       LeadStatus = "new"
	StatusFollowUp  LeadStatus = "follow_up"
	StatusConfirmed LeadStatus = "confirmed"
	StatusRejected  LeadStatus = "rejected"
)

// FeeType selects which fee-table column supplies the base fee.
type FeeType string

const (
	FeeOTP  FeeType = "OTP"  // one-time payment fee column
	FeeWOTP FeeType = "WOTP" // without one-time payment column
)

// ReferralLead is one referral attempt.
type ReferralLead struct {
	ID           benefit.ReferralID
	AmbassadorID benefit.AmbassadorID
	Status       LeadStatus

	// Prospect details captured at creation.
	FamilyName string
	CampusID   string
	Grade      string

	// Set on conversion.
	StudentID    benefit.StudentID // empty until confirmed
	AdmittedYear string            // e.g. "2025-2026"; may stay empty (see year fallback)
	FeeType      FeeType

	// BaseFee, when present, short-circuits the fee-table lookup.
	BaseFee *benefit.Amount

	// ConfirmationPercent is the provisional percent recorded by the
	// confirmation transition (confirmation table, not the calculator
	// ladder).
	ConfirmationPercent string

	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// CanTransition reports whether the forward-only status machine allows
// moving from the lead's current status to target.
func (l ReferralLead) CanTransition(target LeadStatus) bool {
	switch l.Status {
	case StatusNew:
		return target == StatusFollowUp || target == StatusConfirmed || target == StatusRejected
	case StatusFollowUp:
		return target == StatusConfirmed || target == StatusRejected
	default:
		// Confirmed and Rejected are terminal.
		return false
	}
}

// =============================================================================
// STUDENT
// =============================================================================

// Student is the admitted student a confirmed lead links to.
// Owned by the external record store; carried here for year fallback.
type Student struct {
	ID           benefit.StudentID
	Name         string
	AcademicYear string
	CampusID     string
	Grade        string
}
