/*
service.go - Referral lifecycle transitions and calculator input building

PURPOSE:
  Implements the confirmation transition (the only mutation of
  ambassador benefit state) and converts stored leads into the
  ReferralBasis slices the benefit calculator consumes.

CONFIRMATION TRANSITION:
  1. Validate the forward-only status machine
  2. Link the admitted student, admitted year, fee type
  3. Re-derive the confirmed count from lead rows
  4. Write the count cache + activate benefit status on the ambassador
  5. Record the provisional percent from the confirmation table

FEE BASIS FALLBACK (per lead, in order):
  1. Explicit base fee on the lead
  2. Fee-table lookup (campus, grade, resolved year, fee type)
  3. Caller-supplied default (zero when none) - an explicit degrade,
     tagged SourceDefault, never a hard failure

YEAR FILTERING:
  Uses the tagged three-tier resolver in benefit/year.go. A lead whose
  year cannot be matched to the filter is excluded, not guessed.

SEE ALSO:
  - benefit/calculator.go: Consumes the bases built here
  - settlement/ledger.go: Calls ConfirmedBases for totalEarned
*/
package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/referral-engine/benefit"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service owns lead lifecycle transitions and calculator input building.
type Service struct {
	Store Store
	Fees  FeeResolver // may be nil: lookup tier of the fallback is skipped
	Slabs SlabStore   // may be nil: confirmation table defaults apply
	Years benefit.AcademicYearConfig

	// Now is injected for tests. Nil means time.Now.
	Now func() time.Time
}

func NewService(store Store, fees FeeResolver, slabs SlabStore) *Service {
	return &Service{
		Store: store,
		Fees:  fees,
		Slabs: slabs,
		Years: benefit.DefaultAcademicYearConfig(),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// LIFECYCLE TRANSITIONS
// =============================================================================

// ConfirmInput carries the conversion details for a lead.
type ConfirmInput struct {
	StudentID    benefit.StudentID
	AdmittedYear string // optional; year fallback applies when empty
	FeeType      FeeType
	BaseFee      *benefit.Amount // optional explicit fee basis
}

// Confirm transitions a lead to Confirmed and updates the referring
// ambassador's cached count and benefit status. The recorded
// ConfirmationPercent comes from the confirmation table, which is
// provisional - final percentages are resolved at computation time.
func (s *Service) Confirm(ctx context.Context, leadID benefit.ReferralID, in ConfirmInput) (*ReferralLead, error) {
	lead, err := s.Store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, benefit.ErrReferralNotFound
	}
	if !lead.CanTransition(StatusConfirmed) {
		return nil, &benefit.TransitionError{
			ReferralID: lead.ID,
			From:       string(lead.Status),
			To:         string(StatusConfirmed),
		}
	}

	now := s.now()
	lead.Status = StatusConfirmed
	lead.StudentID = in.StudentID
	lead.AdmittedYear = in.AdmittedYear
	if in.FeeType != "" {
		lead.FeeType = in.FeeType
	}
	if in.BaseFee != nil {
		lead.BaseFee = in.BaseFee
	}
	lead.ConfirmedAt = &now

	if err := s.Store.SaveLead(ctx, *lead); err != nil {
		return nil, fmt.Errorf("save confirmed lead: %w", err)
	}

	// Re-derive the count; the cache is written, never incremented.
	count, err := s.Store.CountConfirmed(ctx, lead.AmbassadorID)
	if err != nil {
		return nil, fmt.Errorf("recount confirmed referrals: %w", err)
	}

	var overrides benefit.SlabTable
	if s.Slabs != nil {
		overrides, err = s.Slabs.SlabOverrides(ctx, TableConfirmation)
		if err != nil {
			return nil, fmt.Errorf("load slab overrides: %w", err)
		}
	}
	lead.ConfirmationPercent = benefit.ResolveConfirmationPercent(count, overrides).String()
	if err := s.Store.SaveLead(ctx, *lead); err != nil {
		return nil, fmt.Errorf("record confirmation percent: %w", err)
	}

	amb, err := s.Store.GetAmbassador(ctx, lead.AmbassadorID)
	if err != nil {
		return nil, err
	}
	if amb == nil {
		return nil, benefit.ErrAmbassadorNotFound
	}
	amb.ConfirmedReferralCount = count
	amb.BenefitStatus = BenefitActive
	if err := s.Store.SaveAmbassador(ctx, *amb); err != nil {
		return nil, fmt.Errorf("update ambassador: %w", err)
	}

	return lead, nil
}

// Reject transitions a lead to Rejected.
func (s *Service) Reject(ctx context.Context, leadID benefit.ReferralID) (*ReferralLead, error) {
	return s.transition(ctx, leadID, StatusRejected)
}

// MarkFollowUp transitions a New lead to Follow-up.
func (s *Service) MarkFollowUp(ctx context.Context, leadID benefit.ReferralID) (*ReferralLead, error) {
	return s.transition(ctx, leadID, StatusFollowUp)
}

func (s *Service) transition(ctx context.Context, leadID benefit.ReferralID, target LeadStatus) (*ReferralLead, error) {
	lead, err := s.Store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, benefit.ErrReferralNotFound
	}
	if !lead.CanTransition(target) {
		return nil, &benefit.TransitionError{
			ReferralID: lead.ID,
			From:       string(lead.Status),
			To:         string(target),
		}
	}
	lead.Status = target
	if err := s.Store.SaveLead(ctx, *lead); err != nil {
		return nil, fmt.Errorf("save lead: %w", err)
	}
	return lead, nil
}

// =============================================================================
// CALCULATOR INPUT BUILDING
// =============================================================================

// leadYear resolves a lead's academic year via the tagged fallback
// chain, loading the linked student only when tier 2 is needed.
func (s *Service) leadYear(ctx context.Context, lead ReferralLead) (benefit.ResolvedYear, error) {
	in := benefit.YearInput{
		AdmittedYear: lead.AdmittedYear,
		CreatedAt:    lead.CreatedAt,
	}
	if in.AdmittedYear == "" && lead.StudentID != "" {
		student, err := s.Store.GetStudent(ctx, lead.StudentID)
		if err != nil {
			return benefit.ResolvedYear{}, err
		}
		if student != nil {
			in.StudentYear = student.AcademicYear
		}
	}
	return s.Years.ResolveYear(in), nil
}

// ConfirmedBases returns the calculator bases for an ambassador's
// confirmed leads, optionally filtered to one academic year.
// defaultFee supplies the degrade value when a lead resolves no fee
// basis at all; nil means degrade to zero.
func (s *Service) ConfirmedBases(ctx context.Context, ambassadorID benefit.AmbassadorID, yearFilter string, defaultFee *benefit.Amount) ([]benefit.ReferralBasis, error) {
	leads, err := s.Store.ListLeads(ctx, ambassadorID)
	if err != nil {
		return nil, err
	}

	var bases []benefit.ReferralBasis
	for _, lead := range leads {
		if lead.Status != StatusConfirmed {
			continue
		}
		if yearFilter != "" {
			resolved, err := s.leadYear(ctx, lead)
			if err != nil {
				return nil, err
			}
			if resolved.Year != yearFilter {
				continue
			}
		}
		basis, err := s.resolveBasis(ctx, lead, defaultFee)
		if err != nil {
			return nil, err
		}
		bases = append(bases, basis)
	}
	return bases, nil
}

// CountConfirmedInYear counts an ambassador's confirmed leads in one
// academic year, used for prior-year elite evaluation.
func (s *Service) CountConfirmedInYear(ctx context.Context, ambassadorID benefit.AmbassadorID, year string) (int, error) {
	leads, err := s.Store.ListLeads(ctx, ambassadorID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, lead := range leads {
		if lead.Status != StatusConfirmed {
			continue
		}
		resolved, err := s.leadYear(ctx, lead)
		if err != nil {
			return 0, err
		}
		if resolved.Year == year {
			count++
		}
	}
	return count, nil
}

// ContextFor assembles the calculator context for an ambassador,
// deriving the prior-year confirmed count from lead rows.
func (s *Service) ContextFor(ctx context.Context, amb Ambassador, evaluationYear string) (benefit.AmbassadorContext, error) {
	prevCount := 0
	if prev := benefit.PreviousYear(evaluationYear); prev != "" {
		var err error
		prevCount, err = s.CountConfirmedInYear(ctx, amb.ID, prev)
		if err != nil {
			return benefit.AmbassadorContext{}, err
		}
	}
	return amb.Context(prevCount), nil
}

// resolveBasis applies the three-tier fee fallback for one lead.
func (s *Service) resolveBasis(ctx context.Context, lead ReferralLead, defaultFee *benefit.Amount) (benefit.ReferralBasis, error) {
	if lead.BaseFee != nil {
		return benefit.ReferralBasis{
			ID:             lead.ID,
			FeeBasisAmount: *lead.BaseFee,
			Source:         benefit.SourceExplicitFee,
		}, nil
	}

	if s.Fees != nil && lead.CampusID != "" {
		resolved, err := s.leadYear(ctx, lead)
		if err != nil {
			return benefit.ReferralBasis{}, err
		}
		amount, err := s.Fees.ResolveFeeBasis(ctx, lead.CampusID, lead.Grade, resolved.Year, lead.FeeType)
		if err != nil {
			return benefit.ReferralBasis{}, fmt.Errorf("fee lookup for %s: %w", lead.ID, err)
		}
		if amount != nil {
			return benefit.ReferralBasis{
				ID:             lead.ID,
				FeeBasisAmount: *amount,
				Source:         benefit.SourceFeeTableLookup,
			}, nil
		}
	}

	// Explicit degrade: no fee data anywhere. Zero unless the caller
	// supplied a default. Data-quality condition, not an error.
	fee := benefit.ZeroAmount()
	if defaultFee != nil {
		fee = *defaultFee
	}
	return benefit.ReferralBasis{
		ID:             lead.ID,
		FeeBasisAmount: fee,
		Source:         benefit.SourceDefault,
	}, nil
}
