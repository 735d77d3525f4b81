/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Ambassador:
    AmbassadorDTO, CreateAmbassadorRequest

  Referral:
    LeadDTO, CreateLeadRequest, ConfirmLeadRequest

  Ledger:
    PendingSummaryDTO, BreakdownLineDTO

  Settlement:
    SettlementDTO, CreateSettlementRequest, ProcessPayoutRequest,
    BulkPayoutRequest, BulkResultDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: ConfigJSON type for program configuration
*/
package api

import (
	"time"

	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/referral"
	"github.com/warp/referral-engine/settlement"
)

// =============================================================================
// AMBASSADOR TYPES
// =============================================================================

// AmbassadorDTO represents an ambassador in API responses.
type AmbassadorDTO struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Role                   string `json:"role"`
	ChildEnrolledAtSchool  bool   `json:"child_enrolled_at_school"`
	BaseStudentFee         string `json:"base_student_fee"`
	Currency               string `json:"currency"`
	ConfirmedReferralCount int    `json:"confirmed_referral_count"`
	IsEliteLastYear        bool   `json:"is_elite_last_year"`
	BenefitStatus          string `json:"benefit_status"`
	Archived               bool   `json:"archived"`
	CreatedAt              string `json:"created_at,omitempty"`
}

// CreateAmbassadorRequest is the request to enroll an ambassador.
type CreateAmbassadorRequest struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Role                  string `json:"role"`
	ChildEnrolledAtSchool bool   `json:"child_enrolled_at_school"`
	BaseStudentFee        string `json:"base_student_fee"`
	IsEliteLastYear       bool   `json:"is_elite_last_year"`
}

// =============================================================================
// REFERRAL TYPES
// =============================================================================

// LeadDTO represents a referral lead in API responses.
type LeadDTO struct {
	ID                  string `json:"id"`
	AmbassadorID        string `json:"ambassador_id"`
	Status              string `json:"status"`
	FamilyName          string `json:"family_name,omitempty"`
	CampusID            string `json:"campus_id,omitempty"`
	Grade               string `json:"grade,omitempty"`
	StudentID           string `json:"student_id,omitempty"`
	AdmittedYear        string `json:"admitted_year,omitempty"`
	FeeType             string `json:"fee_type,omitempty"`
	BaseFee             string `json:"base_fee,omitempty"`
	ConfirmationPercent string `json:"confirmation_percent,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
	ConfirmedAt         string `json:"confirmed_at,omitempty"`
}

// CreateLeadRequest is the request to register a referral lead.
type CreateLeadRequest struct {
	ID           string `json:"id"`
	AmbassadorID string `json:"ambassador_id"`
	FamilyName   string `json:"family_name"`
	CampusID     string `json:"campus_id,omitempty"`
	Grade        string `json:"grade,omitempty"`
}

// ConfirmLeadRequest is the request to confirm an admission.
type ConfirmLeadRequest struct {
	StudentID    string `json:"student_id"`
	AdmittedYear string `json:"admitted_year,omitempty"`
	FeeType      string `json:"fee_type,omitempty"`
	BaseFee      string `json:"base_fee,omitempty"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// BreakdownLineDTO itemizes one contribution to a computed total.
type BreakdownLineDTO struct {
	Kind       string `json:"kind"`
	ReferralID string `json:"referral_id,omitempty"`
	Basis      string `json:"basis"`
	Percent    string `json:"percent"`
	Amount     string `json:"amount"`
}

// PendingSummaryDTO is the full accounting picture for one ambassador.
type PendingSummaryDTO struct {
	AmbassadorID   string             `json:"ambassador_id"`
	Year           string             `json:"year"`
	TotalEarned    string             `json:"total_earned"`
	TotalSettled   string             `json:"total_settled"`
	Pending        string             `json:"pending"`
	BenefitPercent string             `json:"benefit_percent"`
	Currency       string             `json:"currency"`
	Breakdown      []BreakdownLineDTO `json:"breakdown"`
}

// =============================================================================
// SETTLEMENT TYPES
// =============================================================================

// SettlementDTO represents a settlement in API responses.
type SettlementDTO struct {
	ID            string `json:"id"`
	AmbassadorID  string `json:"ambassador_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Percent       string `json:"percent,omitempty"`
	Status        string `json:"status"`
	BankReference string `json:"bank_reference,omitempty"`
	Remarks       string `json:"remarks,omitempty"`
	ProcessedBy   string `json:"processed_by,omitempty"`
	PayoutDate    string `json:"payout_date,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// CreateSettlementRequest is the request to snapshot a pending balance.
type CreateSettlementRequest struct {
	AmbassadorID string `json:"ambassador_id"`
	Remarks      string `json:"remarks,omitempty"`
}

// ProcessPayoutRequest is the request to pay out one settlement.
type ProcessPayoutRequest struct {
	BankReference string `json:"bank_reference"`
	Remarks       string `json:"remarks,omitempty"`
}

// BulkPayoutItemRequest is one row of a bulk payout request.
type BulkPayoutItemRequest struct {
	SettlementID  string `json:"settlement_id"`
	BankReference string `json:"bank_reference"`
	Remarks       string `json:"remarks,omitempty"`
}

// BulkPayoutRequest is the request to pay out a batch of settlements.
type BulkPayoutRequest struct {
	Items []BulkPayoutItemRequest `json:"items"`
}

// BulkItemResultDTO is one item's outcome in a bulk payout response.
type BulkItemResultDTO struct {
	SettlementID string `json:"settlement_id"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
}

// BulkResultDTO aggregates a bulk payout batch.
type BulkResultDTO struct {
	SuccessCount int                 `json:"success_count"`
	FailureCount int                 `json:"failure_count"`
	Items        []BulkItemResultDTO `json:"items"`
}

// =============================================================================
// SLAB TYPES
// =============================================================================

// SlabRowDTO is one tier-table row.
type SlabRowDTO struct {
	Count   int    `json:"count"`
	Percent string `json:"percent"`
}

// UpdateSlabsRequest replaces override rows on one tier table.
type UpdateSlabsRequest struct {
	Rows []SlabRowDTO `json:"rows"`
}

// =============================================================================
// SCENARIO & ERROR TYPES
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toAmbassadorDTO(a referral.Ambassador) AmbassadorDTO {
	return AmbassadorDTO{
		ID:                     string(a.ID),
		Name:                   a.Name,
		Role:                   string(a.Role),
		ChildEnrolledAtSchool:  a.ChildEnrolledAtSchool,
		BaseStudentFee:         a.BaseStudentFee.Value.String(),
		Currency:               a.BaseStudentFee.Currency,
		ConfirmedReferralCount: a.ConfirmedReferralCount,
		IsEliteLastYear:        a.IsEliteLastYear,
		BenefitStatus:          string(a.BenefitStatus),
		Archived:               a.Archived,
		CreatedAt:              a.CreatedAt.Format(time.RFC3339),
	}
}

func toLeadDTO(l referral.ReferralLead) LeadDTO {
	dto := LeadDTO{
		ID:                  string(l.ID),
		AmbassadorID:        string(l.AmbassadorID),
		Status:              string(l.Status),
		FamilyName:          l.FamilyName,
		CampusID:            l.CampusID,
		Grade:               l.Grade,
		StudentID:           string(l.StudentID),
		AdmittedYear:        l.AdmittedYear,
		FeeType:             string(l.FeeType),
		ConfirmationPercent: l.ConfirmationPercent,
		CreatedAt:           l.CreatedAt.Format(time.RFC3339),
	}
	if l.BaseFee != nil {
		dto.BaseFee = l.BaseFee.Value.String()
	}
	if l.ConfirmedAt != nil {
		dto.ConfirmedAt = l.ConfirmedAt.Format(time.RFC3339)
	}
	return dto
}

func toSettlementDTO(s settlement.Settlement) SettlementDTO {
	dto := SettlementDTO{
		ID:            string(s.ID),
		AmbassadorID:  string(s.AmbassadorID),
		Amount:        s.Amount.Value.String(),
		Currency:      s.Amount.Currency,
		Percent:       s.Percent,
		Status:        string(s.Status),
		BankReference: s.BankReference,
		Remarks:       s.Remarks,
		ProcessedBy:   s.ProcessedBy,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
	if s.PayoutDate != nil {
		dto.PayoutDate = s.PayoutDate.Format(time.RFC3339)
	}
	return dto
}

func toSettlementDTOs(settlements []settlement.Settlement) []SettlementDTO {
	dtos := make([]SettlementDTO, len(settlements))
	for i, s := range settlements {
		dtos[i] = toSettlementDTO(s)
	}
	return dtos
}

func toPendingSummaryDTO(s settlement.PendingSummary) PendingSummaryDTO {
	dto := PendingSummaryDTO{
		AmbassadorID:   string(s.AmbassadorID),
		Year:           s.Year,
		TotalEarned:    s.TotalEarned.Value.String(),
		TotalSettled:   s.TotalSettled.Value.String(),
		Pending:        s.Pending.Value.String(),
		BenefitPercent: s.BenefitPercent.String(),
		Currency:       s.Pending.Currency,
		Breakdown:      make([]BreakdownLineDTO, 0, len(s.Breakdown)),
	}
	for _, line := range s.Breakdown {
		dto.Breakdown = append(dto.Breakdown, toBreakdownLineDTO(line))
	}
	return dto
}

func toBreakdownLineDTO(line benefit.BreakdownLine) BreakdownLineDTO {
	return BreakdownLineDTO{
		Kind:       string(line.Kind),
		ReferralID: string(line.ReferralID),
		Basis:      line.Basis.Value.String(),
		Percent:    line.Percent.String(),
		Amount:     line.Amount.Value.String(),
	}
}

func toBulkResultDTO(res settlement.BulkResult) BulkResultDTO {
	dto := BulkResultDTO{
		SuccessCount: res.SuccessCount,
		FailureCount: res.FailureCount,
		Items:        make([]BulkItemResultDTO, 0, len(res.Items)),
	}
	for _, item := range res.Items {
		dto.Items = append(dto.Items, BulkItemResultDTO{
			SettlementID: string(item.SettlementID),
			Outcome:      string(item.Outcome),
			Reason:       item.Reason,
		})
	}
	return dto
}
