package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/referral-engine/api"
	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return api.NewRouter(api.NewHandler(store))
}

// do issues a request with the actor headers set and returns the recorder.
func do(t *testing.T, h http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Actor-ID", role+"-1")
		req.Header.Set("X-Actor-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), "body: %s", rec.Body.String())
}

// currentYear matches the engine's default boundary, so confirmed
// leads land in the year the pending computation looks at.
func currentYear() string {
	return benefit.DefaultAcademicYearConfig().YearFor(time.Now().UTC())
}

// enrollParent creates a parent ambassador with n confirmed referrals.
func enrollParent(t *testing.T, h http.Handler, id string, fee string, confirmed int) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/ambassadors", "admin", api.CreateAmbassadorRequest{
		ID: id, Name: "Test Parent", Role: "parent", BaseStudentFee: fee,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for i := 1; i <= confirmed; i++ {
		leadID := fmt.Sprintf("%s-ref-%d", id, i)
		rec = do(t, h, http.MethodPost, "/api/referrals", "admin", api.CreateLeadRequest{
			ID: leadID, AmbassadorID: id, FamilyName: "Family",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = do(t, h, http.MethodPost, "/api/referrals/"+leadID+"/confirm", "admin", api.ConfirmLeadRequest{
			StudentID: leadID + "-stu", AdmittedYear: currentYear(),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

// =============================================================================
// AMBASSADOR ENDPOINT TESTS
// =============================================================================

func TestCreateAmbassador_AndGet(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPost, "/api/ambassadors", "admin", api.CreateAmbassadorRequest{
		ID: "amb-1", Name: "Priya", Role: "parent", BaseStudentFee: "60000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/ambassadors/amb-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var amb api.AmbassadorDTO
	decode(t, rec, &amb)
	assert.Equal(t, "Priya", amb.Name)
	assert.Equal(t, "parent", amb.Role)
	assert.Equal(t, "60000", amb.BaseStudentFee)
	assert.Equal(t, "inactive", amb.BenefitStatus)
}

func TestCreateAmbassador_InvalidRole(t *testing.T) {
	h := newTestAPI(t)
	rec := do(t, h, http.MethodPost, "/api/ambassadors", "admin", api.CreateAmbassadorRequest{
		ID: "amb-1", Name: "X", Role: "superadmin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAmbassador_Missing(t *testing.T) {
	h := newTestAPI(t)
	rec := do(t, h, http.MethodGet, "/api/ambassadors/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CONFIRMATION FLOW TESTS
// =============================================================================

func TestConfirmFlow_PendingSummary(t *testing.T) {
	// GIVEN: A parent with fee 60000 and 3 confirmed referrals
	// WHEN: Fetching the pending summary
	// THEN: 20% of the fee once = 12000, benefit active

	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 3)

	rec := do(t, h, http.MethodGet, "/api/ambassadors/amb-1/pending", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary api.PendingSummaryDTO
	decode(t, rec, &summary)
	assert.Equal(t, "12000", summary.TotalEarned)
	assert.Equal(t, "0", summary.TotalSettled)
	assert.Equal(t, "12000", summary.Pending)
	assert.Equal(t, "20", summary.BenefitPercent)
	assert.Len(t, summary.Breakdown, 1, "fee discount is one line, never per referral")

	rec = do(t, h, http.MethodGet, "/api/ambassadors/amb-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var amb api.AmbassadorDTO
	decode(t, rec, &amb)
	assert.Equal(t, 3, amb.ConfirmedReferralCount)
	assert.Equal(t, "active", amb.BenefitStatus)
}

func TestPendingSummary_NoRole_Forbidden(t *testing.T) {
	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 1)

	rec := do(t, h, http.MethodGet, "/api/ambassadors/amb-1/pending", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLeadTransitions_TerminalConflict(t *testing.T) {
	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 0)

	rec := do(t, h, http.MethodPost, "/api/referrals", "admin", api.CreateLeadRequest{
		ID: "ref-1", AmbassadorID: "amb-1", FamilyName: "Family",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/referrals/ref-1/follow-up", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/referrals/ref-1/reject", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Rejected is terminal.
	rec = do(t, h, http.MethodPost, "/api/referrals/ref-1/follow-up", "admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateLead_UnknownAmbassador(t *testing.T) {
	h := newTestAPI(t)
	rec := do(t, h, http.MethodPost, "/api/referrals", "admin", api.CreateLeadRequest{
		ID: "ref-1", AmbassadorID: "ghost", FamilyName: "Family",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SETTLEMENT & PAYOUT TESTS
// =============================================================================

func createSettlement(t *testing.T, h http.Handler, ambassadorID string) api.SettlementDTO {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/settlements", "finance", api.CreateSettlementRequest{
		AmbassadorID: ambassadorID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s api.SettlementDTO
	decode(t, rec, &s)
	return s
}

func TestSettlementCycle_CreateProcessReprocess(t *testing.T) {
	// GIVEN: A pending settlement snapshotting 12000
	// WHEN: Processing it, then processing it again
	// THEN: First call pays out, second is a 409 - never two transfers

	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 3)
	s := createSettlement(t, h, "amb-1")
	assert.Equal(t, "12000", s.Amount)
	assert.Equal(t, "pending", s.Status)

	rec := do(t, h, http.MethodPost, "/api/settlements/"+s.ID+"/process", "finance",
		api.ProcessPayoutRequest{BankReference: "UTR-2025-000123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var processed api.SettlementDTO
	decode(t, rec, &processed)
	assert.Equal(t, "processed", processed.Status)
	assert.Equal(t, "UTR-2025-000123", processed.BankReference)
	assert.NotEmpty(t, processed.PayoutDate)

	rec = do(t, h, http.MethodPost, "/api/settlements/"+s.ID+"/process", "finance",
		api.ProcessPayoutRequest{BankReference: "UTR-2025-000999"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The processed amount now reduces pending.
	rec = do(t, h, http.MethodGet, "/api/ambassadors/amb-1/pending", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary api.PendingSummaryDTO
	decode(t, rec, &summary)
	assert.Equal(t, "12000", summary.TotalSettled)
	assert.Equal(t, "0", summary.Pending)
}

func TestProcessPayout_MissingBankReference(t *testing.T) {
	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 1)
	s := createSettlement(t, h, "amb-1")

	rec := do(t, h, http.MethodPost, "/api/settlements/"+s.ID+"/process", "finance",
		api.ProcessPayoutRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPayout_ViewerForbidden(t *testing.T) {
	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 1)
	s := createSettlement(t, h, "amb-1")

	rec := do(t, h, http.MethodPost, "/api/settlements/"+s.ID+"/process", "viewer",
		api.ProcessPayoutRequest{BankReference: "UTR-001"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSettlement_NothingPending(t *testing.T) {
	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 0)

	rec := do(t, h, http.MethodPost, "/api/settlements", "finance", api.CreateSettlementRequest{
		AmbassadorID: "amb-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkProcess_PartialSuccess(t *testing.T) {
	// GIVEN: A batch with one payable item, one already-paid item and
	//        one unknown id
	// WHEN: Posting the bulk request
	// THEN: 200 with per-item outcomes in input order

	h := newTestAPI(t)
	enrollParent(t, h, "amb-1", "60000", 3)
	paid := createSettlement(t, h, "amb-1")
	rec := do(t, h, http.MethodPost, "/api/settlements/"+paid.ID+"/process", "finance",
		api.ProcessPayoutRequest{BankReference: "UTR-FIRST"})
	require.Equal(t, http.StatusOK, rec.Code)

	enrollParent(t, h, "amb-2", "60000", 1)
	open := createSettlement(t, h, "amb-2")

	rec = do(t, h, http.MethodPost, "/api/settlements/bulk-process", "finance", api.BulkPayoutRequest{
		Items: []api.BulkPayoutItemRequest{
			{SettlementID: open.ID, BankReference: "UTR-1"},
			{SettlementID: paid.ID, BankReference: "UTR-2"},
			{SettlementID: "ghost", BankReference: "UTR-3"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result api.BulkResultDTO
	decode(t, rec, &result)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "processed", result.Items[0].Outcome)
	assert.Equal(t, "already_processed", result.Items[1].Outcome)
	assert.Equal(t, "not_found", result.Items[2].Outcome)
}

func TestBulkProcess_EmptyBatch(t *testing.T) {
	h := newTestAPI(t)
	rec := do(t, h, http.MethodPost, "/api/settlements/bulk-process", "finance",
		api.BulkPayoutRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SLAB ENDPOINT TESTS
// =============================================================================

func TestSlabs_EffectiveTableAndOverride(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodGet, "/api/slabs/fee_discount", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Table string           `json:"table"`
		Rows  []api.SlabRowDTO `json:"rows"`
	}
	decode(t, rec, &view)
	require.Len(t, view.Rows, 5)
	assert.Equal(t, "20", view.Rows[2].Percent, "default count-3 tier")

	rec = do(t, h, http.MethodPut, "/api/slabs/fee_discount", "campus_admin", api.UpdateSlabsRequest{
		Rows: []api.SlabRowDTO{{Count: 3, Percent: "25"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/slabs/fee_discount", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &view)
	assert.Equal(t, "25", view.Rows[2].Percent, "override shadows the default")
	assert.Equal(t, "30", view.Rows[3].Percent, "other tiers untouched")
}

func TestSlabs_UpdateViewerForbidden(t *testing.T) {
	h := newTestAPI(t)
	rec := do(t, h, http.MethodPut, "/api/slabs/fee_discount", "viewer", api.UpdateSlabsRequest{
		Rows: []api.SlabRowDTO{{Count: 3, Percent: "25"}},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSlabs_UnknownTable(t *testing.T) {
	h := newTestAPI(t)
	rec := do(t, h, http.MethodGet, "/api/slabs/bogus", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlabs_InvalidRows(t *testing.T) {
	h := newTestAPI(t)

	rec := do(t, h, http.MethodPut, "/api/slabs/fee_discount", "admin", api.UpdateSlabsRequest{
		Rows: []api.SlabRowDTO{{Count: 9, Percent: "25"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "count above the cap")

	rec = do(t, h, http.MethodPut, "/api/slabs/fee_discount", "admin", api.UpdateSlabsRequest{
		Rows: []api.SlabRowDTO{{Count: 2, Percent: "-5"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "negative percent")
}
