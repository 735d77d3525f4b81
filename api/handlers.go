/*
handlers.go - HTTP API handlers for the referral benefit engine

PURPOSE:
  Exposes the benefit computation and settlement engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Ambassadors:
    GET    /api/ambassadors               List all ambassadors
    POST   /api/ambassadors               Enroll ambassador
    GET    /api/ambassadors/{id}          Get ambassador details
    GET    /api/ambassadors/{id}/pending  Pending-balance summary
    GET    /api/ambassadors/{id}/leads    Lead history
    GET    /api/ambassadors/{id}/settlements Settlement history
    GET    /api/ambassadors/{id}/audit    Audit trail

  Referrals:
    POST   /api/referrals                 Register lead
    GET    /api/referrals/{id}            Get lead
    POST   /api/referrals/{id}/confirm    Confirm admission
    POST   /api/referrals/{id}/follow-up  Mark follow-up
    POST   /api/referrals/{id}/reject     Reject lead

  Settlements:
    POST   /api/settlements               Snapshot pending into settlement
    GET    /api/settlements               List by status
    GET    /api/settlements/{id}          Get settlement
    POST   /api/settlements/{id}/process  Pay out one settlement
    POST   /api/settlements/bulk-process  Pay out a batch

  Slabs:
    GET    /api/slabs/{table}             Effective tier table
    PUT    /api/slabs/{table}             Override tier rows

ACTOR RESOLUTION:
  The acting administrator is taken from the X-Actor-ID and
  X-Actor-Role headers (authentication is an upstream concern). An
  unknown role value resolves to no capabilities.

ERROR HANDLING:
  Domain errors map to HTTP status by category:
  - 400: Validation errors, invalid input, nothing pending
  - 403: Missing capability
  - 404: Ambassador/lead/settlement not found
  - 409: Already processed, invalid status transition
  - 500: Storage and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/factory"
	"github.com/warp/referral-engine/referral"
	"github.com/warp/referral-engine/settlement"
	"github.com/warp/referral-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Referrals *referral.Service
	Ledger    *settlement.Ledger
	Processor *settlement.Processor

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the domain services around the given store.
func NewHandler(store *sqlite.Store) *Handler {
	referrals := referral.NewService(store, store, store)
	ledger := settlement.NewLedger(referrals, store, store)
	processor := settlement.NewProcessor(store, store, store)
	return &Handler{
		Store:     store,
		Referrals: referrals,
		Ledger:    ledger,
		Processor: processor,
	}
}

// actorFrom resolves the acting administrator from request headers.
// Unknown or missing role values carry no capabilities.
func actorFrom(r *http.Request) settlement.Actor {
	id := r.Header.Get("X-Actor-ID")
	if id == "" {
		id = "anonymous"
	}
	return settlement.Actor{
		ID:   id,
		Role: settlement.ActorRole(r.Header.Get("X-Actor-Role")),
	}
}

// =============================================================================
// AMBASSADOR HANDLERS
// =============================================================================

// ListAmbassadors returns all ambassadors.
func (h *Handler) ListAmbassadors(w http.ResponseWriter, r *http.Request) {
	ambassadors, err := h.Store.ListAmbassadors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list ambassadors", err)
		return
	}

	dtos := make([]AmbassadorDTO, len(ambassadors))
	for i, a := range ambassadors {
		dtos[i] = toAmbassadorDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAmbassador returns a single ambassador.
func (h *Handler) GetAmbassador(w http.ResponseWriter, r *http.Request) {
	id := benefit.AmbassadorID(chi.URLParam(r, "id"))

	amb, err := h.Store.GetAmbassador(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get ambassador", err)
		return
	}
	if amb == nil {
		writeError(w, http.StatusNotFound, "Ambassador not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAmbassadorDTO(*amb))
}

// CreateAmbassador enrolls a new ambassador.
func (h *Handler) CreateAmbassador(w http.ResponseWriter, r *http.Request) {
	var req CreateAmbassadorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	role := benefit.Role(req.Role)
	if !benefit.ValidRole(role) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid role %q (parent, staff, alumni, other)", req.Role), nil)
		return
	}

	fee := benefit.ZeroAmount()
	if req.BaseStudentFee != "" {
		v, err := decimal.NewFromString(req.BaseStudentFee)
		if err != nil || v.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid base_student_fee", err)
			return
		}
		fee = benefit.Amount{Value: v, Currency: benefit.DefaultCurrency}
	}

	amb := referral.Ambassador{
		ID:                    benefit.AmbassadorID(req.ID),
		Name:                  req.Name,
		Role:                  role,
		ChildEnrolledAtSchool: req.ChildEnrolledAtSchool,
		BaseStudentFee:        fee,
		IsEliteLastYear:       req.IsEliteLastYear,
		BenefitStatus:         referral.BenefitInactive,
		CreatedAt:             time.Now().UTC(),
	}
	if err := h.Store.SaveAmbassador(r.Context(), amb); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create ambassador", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAmbassadorDTO(amb))
}

// GetPending returns the pending-balance summary for an ambassador.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	if err := settlement.Require(actorFrom(r), settlement.CapViewLedger); err != nil {
		writeDomainError(w, err)
		return
	}

	id := benefit.AmbassadorID(chi.URLParam(r, "id"))
	summary, err := h.Ledger.CalculatePending(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingSummaryDTO(summary))
}

// ListAmbassadorLeads returns an ambassador's lead history.
func (h *Handler) ListAmbassadorLeads(w http.ResponseWriter, r *http.Request) {
	id := benefit.AmbassadorID(chi.URLParam(r, "id"))
	leads, err := h.Store.ListLeads(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list leads", err)
		return
	}
	dtos := make([]LeadDTO, len(leads))
	for i, l := range leads {
		dtos[i] = toLeadDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAmbassadorSettlements returns an ambassador's settlement history.
func (h *Handler) ListAmbassadorSettlements(w http.ResponseWriter, r *http.Request) {
	if err := settlement.Require(actorFrom(r), settlement.CapViewLedger); err != nil {
		writeDomainError(w, err)
		return
	}

	id := benefit.AmbassadorID(chi.URLParam(r, "id"))
	settlements, err := h.Store.ListSettlements(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTOs(settlements))
}

// GetAuditTrail returns the audit entries recorded for an ambassador.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if err := settlement.Require(actorFrom(r), settlement.CapViewLedger); err != nil {
		writeDomainError(w, err)
		return
	}

	subject := chi.URLParam(r, "id")
	entries, err := h.Store.AuditEntries(r.Context(), subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get audit trail", err)
		return
	}

	type auditDTO struct {
		Kind        string `json:"kind"`
		Subject     string `json:"subject"`
		Description string `json:"description,omitempty"`
		RefID       string `json:"ref_id,omitempty"`
		ActorID     string `json:"actor_id,omitempty"`
		At          string `json:"at"`
	}
	dtos := make([]auditDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, auditDTO{
			Kind:        string(e.Kind),
			Subject:     e.Subject,
			Description: e.Description,
			RefID:       e.RefID,
			ActorID:     e.ActorID,
			At:          e.At.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REFERRAL HANDLERS
// =============================================================================

// CreateLead registers a new referral lead.
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.AmbassadorID == "" {
		writeError(w, http.StatusBadRequest, "id and ambassador_id are required", nil)
		return
	}

	amb, err := h.Store.GetAmbassador(r.Context(), benefit.AmbassadorID(req.AmbassadorID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get ambassador", err)
		return
	}
	if amb == nil {
		writeError(w, http.StatusNotFound, "Ambassador not found", nil)
		return
	}

	lead := referral.ReferralLead{
		ID:           benefit.ReferralID(req.ID),
		AmbassadorID: benefit.AmbassadorID(req.AmbassadorID),
		Status:       referral.StatusNew,
		FamilyName:   req.FamilyName,
		CampusID:     req.CampusID,
		Grade:        req.Grade,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.SaveLead(r.Context(), lead); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create lead", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeadDTO(lead))
}

// GetLead returns a single lead.
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	id := benefit.ReferralID(chi.URLParam(r, "id"))
	lead, err := h.Store.GetLead(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get lead", err)
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "Lead not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(*lead))
}

// ConfirmLead confirms an admission against a lead.
func (h *Handler) ConfirmLead(w http.ResponseWriter, r *http.Request) {
	var req ConfirmLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := referral.ConfirmInput{
		StudentID:    benefit.StudentID(req.StudentID),
		AdmittedYear: req.AdmittedYear,
		FeeType:      referral.FeeType(req.FeeType),
	}
	if req.BaseFee != "" {
		v, err := decimal.NewFromString(req.BaseFee)
		if err != nil || v.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid base_fee", err)
			return
		}
		fee := benefit.Amount{Value: v, Currency: benefit.DefaultCurrency}
		in.BaseFee = &fee
	}

	lead, err := h.Referrals.Confirm(r.Context(), benefit.ReferralID(chi.URLParam(r, "id")), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(*lead))
}

// MarkFollowUp transitions a lead to follow-up.
func (h *Handler) MarkFollowUp(w http.ResponseWriter, r *http.Request) {
	lead, err := h.Referrals.MarkFollowUp(r.Context(), benefit.ReferralID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(*lead))
}

// RejectLead transitions a lead to rejected.
func (h *Handler) RejectLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.Referrals.Reject(r.Context(), benefit.ReferralID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(*lead))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// CreateSettlement snapshots an ambassador's pending balance.
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req CreateSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AmbassadorID == "" {
		writeError(w, http.StatusBadRequest, "ambassador_id is required", nil)
		return
	}

	s, err := h.Ledger.CreateSettlement(r.Context(), actorFrom(r),
		benefit.AmbassadorID(req.AmbassadorID), req.Remarks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementDTO(*s))
}

// ListSettlements returns settlements, filtered by ?status= when given.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	if err := settlement.Require(actorFrom(r), settlement.CapViewLedger); err != nil {
		writeDomainError(w, err)
		return
	}

	status := settlement.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = settlement.StatusPending
	}
	settlements, err := h.Store.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTOs(settlements))
}

// GetSettlement returns a single settlement.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := benefit.SettlementID(chi.URLParam(r, "id"))
	s, err := h.Store.GetSettlement(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get settlement", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "Settlement not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(*s))
}

// ProcessPayout pays out one settlement.
func (h *Handler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	var req ProcessPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.BankReference == "" {
		writeError(w, http.StatusBadRequest, "bank_reference is required", nil)
		return
	}

	s, err := h.Processor.ProcessPayout(r.Context(), actorFrom(r),
		benefit.SettlementID(chi.URLParam(r, "id")), req.BankReference, req.Remarks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(*s))
}

// ProcessBulkPayouts pays out a batch of settlements with
// partial-success semantics.
func (h *Handler) ProcessBulkPayouts(w http.ResponseWriter, r *http.Request) {
	var req BulkPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "At least one item is required", nil)
		return
	}

	items := make([]settlement.PayoutItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = settlement.PayoutItem{
			SettlementID:  benefit.SettlementID(item.SettlementID),
			BankReference: item.BankReference,
			Remarks:       item.Remarks,
		}
	}

	result, err := h.Processor.ProcessBulkPayouts(r.Context(), actorFrom(r), items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkResultDTO(result))
}

// =============================================================================
// SLAB HANDLERS
// =============================================================================

var defaultLadders = map[referral.SlabTableName]func() benefit.SlabTable{
	referral.TableFeeDiscount:  benefit.DefaultFeeDiscountLadder,
	referral.TableElite:        benefit.DefaultEliteLadder,
	referral.TableConfirmation: benefit.DefaultConfirmationLadder,
}

// GetSlabs returns the effective tier table (defaults + overrides).
func (h *Handler) GetSlabs(w http.ResponseWriter, r *http.Request) {
	table := referral.SlabTableName(chi.URLParam(r, "table"))
	defaults, ok := defaultLadders[table]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown slab table %q", table), nil)
		return
	}

	overrides, err := h.Store.SlabOverrides(r.Context(), table)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load slab overrides", err)
		return
	}

	effective := defaults().Merge(overrides)
	rows := make([]SlabRowDTO, 0, benefit.MaxSlabCount)
	for count := 1; count <= benefit.MaxSlabCount; count++ {
		if pct, ok := effective[count]; ok {
			rows = append(rows, SlabRowDTO{Count: count, Percent: pct.String()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": string(table), "rows": rows})
}

// UpdateSlabs writes override rows onto one tier table.
func (h *Handler) UpdateSlabs(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := settlement.Require(actor, settlement.CapManageSlabs); err != nil {
		writeDomainError(w, err)
		return
	}

	table := referral.SlabTableName(chi.URLParam(r, "table"))
	if _, ok := defaultLadders[table]; !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown slab table %q", table), nil)
		return
	}

	var req UpdateSlabsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	for _, row := range req.Rows {
		if row.Count < 1 || row.Count > benefit.MaxSlabCount {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Slab count %d out of range [1, %d]", row.Count, benefit.MaxSlabCount), nil)
			return
		}
		pct, err := decimal.NewFromString(row.Percent)
		if err != nil || pct.IsNegative() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid percent %q", row.Percent), err)
			return
		}
	}
	for _, row := range req.Rows {
		if err := h.Store.PutSlabOverride(r.Context(), table, row.Count, row.Percent); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save slab override", err)
			return
		}
	}

	_ = h.Store.LogAction(r.Context(), settlement.AuditEntry{
		Kind:        settlement.AuditSlabChanged,
		Subject:     string(table),
		Description: fmt.Sprintf("%d slab rows updated", len(req.Rows)),
		ActorID:     actor.ID,
		At:          time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, map[string]any{"updated": len(req.Rows)})
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

// ApplyConfig parses and applies a JSON program configuration.
func (h *Handler) ApplyConfig(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if err := settlement.Require(actor, settlement.CapManageSlabs); err != nil {
		writeDomainError(w, err)
		return
	}

	var cj factory.ConfigJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := factory.FromJSON(cj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid program configuration", err)
		return
	}
	if err := factory.Apply(r.Context(), cfg, h.Store, h.Store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to apply configuration", err)
		return
	}

	h.Referrals.Years = cfg.Years
	h.Ledger.Years = cfg.Years
	if cfg.Carryover.Set {
		h.Ledger.CarryoverBasePercent = cfg.Carryover.BasePercent
		h.Ledger.CarryoverBonusPercent = cfg.Carryover.BonusPercent
	}

	writeJSON(w, http.StatusOK, factory.ToJSON(cfg))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain error categories to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, benefit.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "Not authorized", err)
	case benefit.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, benefit.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "Settlement already processed", err)
	case errors.Is(err, benefit.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Invalid status transition", err)
	case errors.Is(err, benefit.ErrNothingPending):
		writeError(w, http.StatusBadRequest, "No pending balance to settle", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
