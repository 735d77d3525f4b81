package settlement_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/referral"
	"github.com/warp/referral-engine/settlement"
	"github.com/warp/referral-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testNow  = time.Date(2025, time.September, 15, 12, 0, 0, 0, time.UTC)
	testYear = "2025-2026"

	admin   = settlement.Actor{ID: "admin-1", Role: settlement.RoleAdmin}
	finance = settlement.Actor{ID: "finance-1", Role: settlement.RoleFinance}
	viewer  = settlement.Actor{ID: "viewer-1", Role: settlement.RoleViewer}
)

func newTestLedger(t *testing.T) (*settlement.Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	referrals := referral.NewService(store, store, store)
	ledger := settlement.NewLedger(referrals, store, store)
	ledger.Now = func() time.Time { return testNow }

	seq := 0
	ledger.NewID = func() benefit.SettlementID {
		seq++
		return benefit.SettlementID(fmt.Sprintf("stl-%d", seq))
	}
	return ledger, store
}

func seedAmbassador(t *testing.T, store *memory.Store, id string, role benefit.Role, elite bool) {
	t.Helper()
	require.NoError(t, store.SaveAmbassador(context.Background(), referral.Ambassador{
		ID:              benefit.AmbassadorID(id),
		Name:            "Test Ambassador",
		Role:            role,
		BaseStudentFee:  benefit.NewAmountFromInt(60000),
		IsEliteLastYear: elite,
		BenefitStatus:   referral.BenefitActive,
		CreatedAt:       testNow,
	}))
}

func seedConfirmed(t *testing.T, store *memory.Store, ambID string, n int, fee int64) {
	t.Helper()
	for i := 1; i <= n; i++ {
		lead := referral.ReferralLead{
			ID:           benefit.ReferralID(fmt.Sprintf("ref-%s-%d", ambID, i)),
			AmbassadorID: benefit.AmbassadorID(ambID),
			Status:       referral.StatusConfirmed,
			AdmittedYear: testYear,
			CreatedAt:    testNow,
		}
		if fee > 0 {
			amount := benefit.NewAmountFromInt(fee)
			lead.BaseFee = &amount
		}
		require.NoError(t, store.SaveLead(context.Background(), lead))
	}
}

// =============================================================================
// PENDING COMPUTATION TESTS
// =============================================================================

func TestCalculatePending_NothingSettled(t *testing.T) {
	// GIVEN: Parent with 3 confirmed referrals, fee 60000, no settlements
	// WHEN: Computing the pending balance
	// THEN: Earned 12000 (20% tier), settled 0, pending 12000

	ledger, store := newTestLedger(t)
	seedAmbassador(t, store, "amb-1", benefit.RoleParent, false)
	seedConfirmed(t, store, "amb-1", 3, 0)

	summary, err := ledger.CalculatePending(context.Background(), "amb-1")
	require.NoError(t, err)

	assert.True(t, summary.TotalEarned.Equal(benefit.NewAmountFromInt(12000)),
		"earned %s", summary.TotalEarned.Value)
	assert.True(t, summary.TotalSettled.IsZero())
	assert.True(t, summary.Pending.Equal(benefit.NewAmountFromInt(12000)))
	assert.Equal(t, testYear, summary.Year)
	assert.NotEmpty(t, summary.Breakdown)
}

func TestCalculatePending_ProcessedSettlementsSubtracted(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAmbassador(t, store, "amb-1", benefit.RoleParent, false)
	seedConfirmed(t, store, "amb-1", 3, 0)

	require.NoError(t, store.CreateSettlement(ctx, settlement.Settlement{
		ID: "stl-old", AmbassadorID: "amb-1",
		Amount: benefit.NewAmountFromInt(5000),
		Status: settlement.StatusProcessed, CreatedAt: testNow,
	}))

	summary, err := ledger.CalculatePending(ctx, "amb-1")
	require.NoError(t, err)
	assert.True(t, summary.Pending.Equal(benefit.NewAmountFromInt(7000)),
		"pending %s", summary.Pending.Value)
}

func TestCalculatePending_NeverNegative(t *testing.T) {
	// GIVEN: Settled amounts exceeding re-derived earnings (a referral
	//        was reversed after payout)
	// WHEN: Computing the pending balance
	// THEN: Pending floors at zero - no negative figure, no error

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAmbassador(t, store, "amb-1", benefit.RoleParent, false)
	seedConfirmed(t, store, "amb-1", 1, 0) // earned: 5% of 60000 = 3000

	require.NoError(t, store.CreateSettlement(ctx, settlement.Settlement{
		ID: "stl-big", AmbassadorID: "amb-1",
		Amount: benefit.NewAmountFromInt(10000),
		Status: settlement.StatusProcessed, CreatedAt: testNow,
	}))

	summary, err := ledger.CalculatePending(ctx, "amb-1")
	require.NoError(t, err)
	assert.True(t, summary.Pending.IsZero(), "pending %s", summary.Pending.Value)
	assert.True(t, summary.TotalEarned.Equal(benefit.NewAmountFromInt(3000)))
}

func TestCalculatePending_PendingSettlementsAreNotSettled(t *testing.T) {
	// A Pending settlement is a reservation; it does not reduce pending.
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAmbassador(t, store, "amb-1", benefit.RoleParent, false)
	seedConfirmed(t, store, "amb-1", 3, 0)

	require.NoError(t, store.CreateSettlement(ctx, settlement.Settlement{
		ID: "stl-open", AmbassadorID: "amb-1",
		Amount: benefit.NewAmountFromInt(12000),
		Status: settlement.StatusPending, CreatedAt: testNow,
	}))

	summary, err := ledger.CalculatePending(ctx, "amb-1")
	require.NoError(t, err)
	assert.True(t, summary.Pending.Equal(benefit.NewAmountFromInt(12000)))
}

func TestCalculatePending_UnknownAmbassador(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.CalculatePending(context.Background(), "ghost")
	assert.ErrorIs(t, err, benefit.ErrAmbassadorNotFound)
}

func TestCalculatePending_SlabOverridesApplied(t *testing.T) {
	// GIVEN: A configured override raising the count-3 tier to 22%
	// WHEN: Computing the pending balance
	// THEN: The override drives the figure without a restart

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAmbassador(t, store, "amb-1", benefit.RoleParent, false)
	seedConfirmed(t, store, "amb-1", 3, 0)
	require.NoError(t, store.PutSlabOverride(ctx, referral.TableFeeDiscount, 3, "22"))

	summary, err := ledger.CalculatePending(ctx, "amb-1")
	require.NoError(t, err)
	assert.True(t, summary.TotalEarned.Equal(benefit.NewAmountFromInt(13200)),
		"earned %s", summary.TotalEarned.Value)
}

// =============================================================================
// SETTLEMENT CREATION TESTS
// =============================================================================

func TestCreateSettlement_SnapshotsPending(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedAmbassador(t, store, "amb-1", benefit.RoleParent, false)
	seedConfirmed(t, store, "amb-1", 3, 0)

	s, err := ledger.CreateSettlement(ctx, finance, "amb-1", "quarterly run")
	require.NoError(t, err)

	assert.Equal(t, settlement.StatusPending, s.Status)
	assert.True(t, s.Amount.Equal(benefit.NewAmountFromInt(12000)))
	assert.Equal(t, "20", s.Percent)
	assert.Equal(t, "quarterly run", s.Remarks)

	// Audit entry recorded after the mutation.
	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, settlement.AuditSettlementCreated, entries[0].Kind)
	assert.Equal(t, finance.ID, entries[0].ActorID)
}

func TestCreateSettlement_ZeroPending_Rejected(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedAmbassador(t, store, "amb-1", benefit.RoleParent, false)

	_, err := ledger.CreateSettlement(context.Background(), admin, "amb-1", "")
	assert.ErrorIs(t, err, benefit.ErrNothingPending)
}

func TestCreateSettlement_ViewerDenied_BeforeAnyRead(t *testing.T) {
	// GIVEN: A viewer-role actor
	// WHEN: Creating a settlement for a nonexistent ambassador
	// THEN: Authorization fails first - not-found is never reached

	ledger, _ := newTestLedger(t)
	_, err := ledger.CreateSettlement(context.Background(), viewer, "ghost", "")
	assert.ErrorIs(t, err, benefit.ErrNotAuthorized)
}
