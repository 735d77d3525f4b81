/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates ambassadors, leads,
	fee rows and settlements that demonstrate specific program behaviors.

AVAILABLE SCENARIOS:

	parent-fee-discount: Parent with 3 confirmed referrals (single discount)
	alumni-cash:         Cash-eligible alumni with 4 referrals (summed)
	elite-carryover:     Last year's top performer earning the carryover
	settlement-cycle:    Created, processed and pending settlements
	fee-fallback:        Leads exercising the three-tier fee fallback

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create ambassadors
 3. Create leads and confirm admissions via the service
 4. Seed fee-table rows where the scenario needs lookups
 5. Optionally create and process settlements

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "parent-fee-discount"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/config.go: Program configuration JSON
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/referral"
	"github.com/warp/referral-engine/settlement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "parent-fee-discount",
		Name:        "Parent Fee Discount",
		Description: "Parent with 3 confirmed referrals: tier percent applied once to their own fee",
	},
	{
		ID:          "alumni-cash",
		Name:        "Alumni Cash Commission",
		Description: "Cash-eligible alumni with 4 referrals: percent applied per referral and summed",
	},
	{
		ID:          "elite-carryover",
		Name:        "Elite Carryover",
		Description: "Last year's top performer earning the 15% + 5% carryover on one new referral",
	},
	{
		ID:          "settlement-cycle",
		Name:        "Settlement Cycle",
		Description: "Pending balance snapshot, one processed payout, one still pending",
	},
	{
		ID:          "fee-fallback",
		Name:        "Fee Basis Fallback",
		Description: "Leads resolving fees via explicit value, fee-table lookup, and default degrade",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the selected scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "parent-fee-discount":
		err = loadParentFeeDiscountScenario(ctx, h)
	case "alumni-cash":
		err = loadAlumniCashScenario(ctx, h)
	case "elite-carryover":
		err = loadEliteCarryoverScenario(ctx, h)
	case "settlement-cycle":
		err = loadSettlementCycleScenario(ctx, h)
	case "fee-fallback":
		err = loadFeeFallbackScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]any{"loaded": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var scenarioAdmin = settlement.Actor{ID: "demo-admin", Role: settlement.RoleAdmin}

func seedAmbassador(ctx context.Context, h *Handler, amb referral.Ambassador) error {
	if amb.BenefitStatus == "" {
		amb.BenefitStatus = referral.BenefitInactive
	}
	amb.CreatedAt = time.Now().UTC()
	return h.Store.SaveAmbassador(ctx, amb)
}

// seedConfirmedLead creates a lead and confirms it through the service,
// so counts, percent recording and benefit activation run for real.
func seedConfirmedLead(ctx context.Context, h *Handler, lead referral.ReferralLead, in referral.ConfirmInput) error {
	lead.Status = referral.StatusNew
	lead.CreatedAt = time.Now().UTC()
	if err := h.Store.SaveLead(ctx, lead); err != nil {
		return err
	}
	_, err := h.Referrals.Confirm(ctx, lead.ID, in)
	return err
}

// loadParentFeeDiscountScenario: parent with fee 60000 and 3 confirmed
// referrals lands on the 20% tier, a 12000 discount applied once.
func loadParentFeeDiscountScenario(ctx context.Context, h *Handler) error {
	amb := referral.Ambassador{
		ID:             "amb-priya",
		Name:           "Priya Sharma",
		Role:           benefit.RoleParent,
		BaseStudentFee: benefit.NewAmountFromInt(60000),
	}
	if err := seedAmbassador(ctx, h, amb); err != nil {
		return err
	}

	for i := 1; i <= 3; i++ {
		lead := referral.ReferralLead{
			ID:           benefit.ReferralID(fmt.Sprintf("ref-priya-%d", i)),
			AmbassadorID: amb.ID,
			FamilyName:   fmt.Sprintf("Family %d", i),
		}
		in := referral.ConfirmInput{
			StudentID:    benefit.StudentID(fmt.Sprintf("stu-priya-%d", i)),
			AdmittedYear: h.Referrals.Years.YearFor(time.Now()),
			FeeType:      referral.FeeOTP,
		}
		if err := seedConfirmedLead(ctx, h, lead, in); err != nil {
			return err
		}
	}
	return nil
}

// loadAlumniCashScenario: cash-eligible alumni with 4 referrals at
// fees 50000/60000/70000/80000 earns 80% of each, summed.
func loadAlumniCashScenario(ctx context.Context, h *Handler) error {
	amb := referral.Ambassador{
		ID:   "amb-ravi",
		Name: "Ravi Menon",
		Role: benefit.RoleAlumni,
	}
	if err := seedAmbassador(ctx, h, amb); err != nil {
		return err
	}

	year := h.Referrals.Years.YearFor(time.Now())
	fees := []int64{50000, 60000, 70000, 80000}
	for i, feeValue := range fees {
		fee := benefit.NewAmountFromInt(feeValue)
		lead := referral.ReferralLead{
			ID:           benefit.ReferralID(fmt.Sprintf("ref-ravi-%d", i+1)),
			AmbassadorID: amb.ID,
			FamilyName:   fmt.Sprintf("Family %d", i+1),
		}
		in := referral.ConfirmInput{
			StudentID:    benefit.StudentID(fmt.Sprintf("stu-ravi-%d", i+1)),
			AdmittedYear: year,
			FeeType:      referral.FeeOTP,
			BaseFee:      &fee,
		}
		if err := seedConfirmedLead(ctx, h, lead, in); err != nil {
			return err
		}
	}
	return nil
}

// loadEliteCarryoverScenario: elite parent with one new confirmed
// referral this year earns 5% tier + 15% base + 5% bonus of their fee.
func loadEliteCarryoverScenario(ctx context.Context, h *Handler) error {
	amb := referral.Ambassador{
		ID:              "amb-anita",
		Name:            "Anita Desai",
		Role:            benefit.RoleParent,
		BaseStudentFee:  benefit.NewAmountFromInt(60000),
		IsEliteLastYear: true,
	}
	if err := seedAmbassador(ctx, h, amb); err != nil {
		return err
	}

	lead := referral.ReferralLead{
		ID:           "ref-anita-1",
		AmbassadorID: amb.ID,
		FamilyName:   "Kapoor",
	}
	in := referral.ConfirmInput{
		StudentID:    "stu-anita-1",
		AdmittedYear: h.Referrals.Years.YearFor(time.Now()),
		FeeType:      referral.FeeOTP,
	}
	return seedConfirmedLead(ctx, h, lead, in)
}

// loadSettlementCycleScenario: one settlement processed, a fresh
// confirmed referral creating a new pending balance.
func loadSettlementCycleScenario(ctx context.Context, h *Handler) error {
	amb := referral.Ambassador{
		ID:   "amb-vikram",
		Name: "Vikram Rao",
		Role: benefit.RoleStaff, // no enrolled child: cash eligible
	}
	if err := seedAmbassador(ctx, h, amb); err != nil {
		return err
	}

	year := h.Referrals.Years.YearFor(time.Now())
	fee := benefit.NewAmountFromInt(50000)
	for i := 1; i <= 2; i++ {
		lead := referral.ReferralLead{
			ID:           benefit.ReferralID(fmt.Sprintf("ref-vikram-%d", i)),
			AmbassadorID: amb.ID,
			FamilyName:   fmt.Sprintf("Family %d", i),
		}
		in := referral.ConfirmInput{
			StudentID:    benefit.StudentID(fmt.Sprintf("stu-vikram-%d", i)),
			AdmittedYear: year,
			FeeType:      referral.FeeOTP,
			BaseFee:      &fee,
		}
		if err := seedConfirmedLead(ctx, h, lead, in); err != nil {
			return err
		}
	}

	s, err := h.Ledger.CreateSettlement(ctx, scenarioAdmin, amb.ID, "first quarterly payout")
	if err != nil {
		return err
	}
	if _, err := h.Processor.ProcessPayout(ctx, scenarioAdmin, s.ID, "UTR-2025-000123", ""); err != nil {
		return err
	}

	// A third referral after the payout leaves a fresh pending balance.
	lead := referral.ReferralLead{
		ID:           "ref-vikram-3",
		AmbassadorID: amb.ID,
		FamilyName:   "Family 3",
	}
	in := referral.ConfirmInput{
		StudentID:    "stu-vikram-3",
		AdmittedYear: year,
		FeeType:      referral.FeeOTP,
		BaseFee:      &fee,
	}
	return seedConfirmedLead(ctx, h, lead, in)
}

// loadFeeFallbackScenario: three referrals resolving their fee basis
// by explicit value, fee-table lookup, and default degrade.
func loadFeeFallbackScenario(ctx context.Context, h *Handler) error {
	amb := referral.Ambassador{
		ID:   "amb-meera",
		Name: "Meera Iyer",
		Role: benefit.RoleOther,
	}
	if err := seedAmbassador(ctx, h, amb); err != nil {
		return err
	}

	year := h.Referrals.Years.YearFor(time.Now())
	if err := h.Store.SetFee(ctx, "campus-north", "5", year, referral.FeeOTP,
		benefit.NewAmountFromInt(55000)); err != nil {
		return err
	}

	explicit := benefit.NewAmountFromInt(48000)
	leads := []struct {
		lead referral.ReferralLead
		in   referral.ConfirmInput
	}{
		{
			// Tier 1: explicit fee on the lead.
			lead: referral.ReferralLead{ID: "ref-meera-1", AmbassadorID: amb.ID, FamilyName: "Explicit"},
			in:   referral.ConfirmInput{StudentID: "stu-meera-1", AdmittedYear: year, FeeType: referral.FeeOTP, BaseFee: &explicit},
		},
		{
			// Tier 2: fee-table lookup by campus/grade/year.
			lead: referral.ReferralLead{ID: "ref-meera-2", AmbassadorID: amb.ID, FamilyName: "Lookup", CampusID: "campus-north", Grade: "5"},
			in:   referral.ConfirmInput{StudentID: "stu-meera-2", AdmittedYear: year, FeeType: referral.FeeOTP},
		},
		{
			// Tier 3: no fee anywhere; degrades to the default.
			lead: referral.ReferralLead{ID: "ref-meera-3", AmbassadorID: amb.ID, FamilyName: "Degrade"},
			in:   referral.ConfirmInput{StudentID: "stu-meera-3", AdmittedYear: year, FeeType: referral.FeeOTP},
		},
	}
	for _, item := range leads {
		if err := seedConfirmedLead(ctx, h, item.lead, item.in); err != nil {
			return err
		}
	}
	return nil
}
