package settlement_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/settlement"
	"github.com/warp/referral-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestProcessor(t *testing.T) (*settlement.Processor, *memory.Store) {
	t.Helper()
	store := memory.New()
	p := settlement.NewProcessor(store, store, store)
	p.Now = func() time.Time { return testNow }
	return p, store
}

func seedPending(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	require.NoError(t, store.CreateSettlement(context.Background(), settlement.Settlement{
		ID:           benefit.SettlementID(id),
		AmbassadorID: "amb-1",
		Amount:       benefit.NewAmountFromInt(12000),
		Status:       settlement.StatusPending,
		CreatedAt:    testNow,
	}))
}

// =============================================================================
// SINGLE PAYOUT TESTS
// =============================================================================

func TestProcessPayout_PendingToProcessed(t *testing.T) {
	// GIVEN: A pending settlement
	// WHEN: Processing it with a bank reference
	// THEN: Status, reference, processor and payout date are recorded,
	//       and the ambassador is notified once

	p, store := newTestProcessor(t)
	ctx := context.Background()
	seedPending(t, store, "stl-1")

	s, err := p.ProcessPayout(ctx, finance, "stl-1", "UTR-001", "first run")
	require.NoError(t, err)

	assert.Equal(t, settlement.StatusProcessed, s.Status)
	assert.Equal(t, "UTR-001", s.BankReference)
	assert.Equal(t, finance.ID, s.ProcessedBy)
	require.NotNil(t, s.PayoutDate)
	assert.Equal(t, testNow, *s.PayoutDate)

	notifications := store.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "amb-1", notifications[0].UserID)

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, settlement.AuditPayoutProcessed, entries[0].Kind)
	assert.Equal(t, "UTR-001", entries[0].RefID)
}

func TestProcessPayout_SecondAttempt_RejectedWithOriginalReference(t *testing.T) {
	// GIVEN: A settlement already paid with UTR-001
	// WHEN: Processing it again with a different reference
	// THEN: Rejected as already-processed carrying the original
	//       reference; amount and reference are unchanged and no
	//       second notification goes out

	p, store := newTestProcessor(t)
	ctx := context.Background()
	seedPending(t, store, "stl-1")

	_, err := p.ProcessPayout(ctx, finance, "stl-1", "UTR-001", "")
	require.NoError(t, err)

	_, err = p.ProcessPayout(ctx, finance, "stl-1", "UTR-002", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, benefit.ErrAlreadyProcessed)

	var processed *benefit.AlreadyProcessedError
	require.ErrorAs(t, err, &processed)
	assert.Equal(t, "UTR-001", processed.BankReference)

	s, err := store.GetSettlement(ctx, "stl-1")
	require.NoError(t, err)
	assert.Equal(t, "UTR-001", s.BankReference)
	assert.Len(t, store.Notifications(), 1, "no duplicate notification")
}

func TestProcessPayout_MissingSettlement(t *testing.T) {
	p, _ := newTestProcessor(t)
	_, err := p.ProcessPayout(context.Background(), finance, "ghost", "UTR-001", "")
	assert.ErrorIs(t, err, benefit.ErrSettlementNotFound)
}

func TestProcessPayout_ViewerDenied(t *testing.T) {
	p, store := newTestProcessor(t)
	seedPending(t, store, "stl-1")

	_, err := p.ProcessPayout(context.Background(), viewer, "stl-1", "UTR-001", "")
	assert.ErrorIs(t, err, benefit.ErrNotAuthorized)

	s, err := store.GetSettlement(context.Background(), "stl-1")
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusPending, s.Status, "denied call must not mutate")
}

func TestProcessPayout_Concurrent_ExactlyOneSuccess(t *testing.T) {
	// GIVEN: Ten goroutines racing to process the same settlement
	// WHEN: All call ProcessPayout
	// THEN: Exactly one succeeds; the rest see already-processed

	p, store := newTestProcessor(t)
	seedPending(t, store, "stl-1")

	const workers = 10
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = p.ProcessPayout(context.Background(), finance, "stl-1",
				fmt.Sprintf("UTR-%03d", i), "")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, benefit.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, successes)
}

// =============================================================================
// BULK PAYOUT TESTS
// =============================================================================

func TestProcessBulkPayouts_PartialSuccess(t *testing.T) {
	// GIVEN: 5 items where item 3 is already processed
	// WHEN: Processing the batch
	// THEN: 4 succeed, 1 fails with its reason, results in input order,
	//       and the already-processed row is untouched

	p, store := newTestProcessor(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		seedPending(t, store, fmt.Sprintf("stl-%d", i))
	}
	_, err := p.ProcessPayout(ctx, finance, "stl-3", "UTR-FIRST", "")
	require.NoError(t, err)

	items := make([]settlement.PayoutItem, 5)
	for i := range items {
		items[i] = settlement.PayoutItem{
			SettlementID:  benefit.SettlementID(fmt.Sprintf("stl-%d", i+1)),
			BankReference: fmt.Sprintf("UTR-BULK-%d", i+1),
		}
	}

	result, err := p.ProcessBulkPayouts(ctx, finance, items)
	require.NoError(t, err)

	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	require.Len(t, result.Items, 5)

	for i, item := range result.Items {
		assert.Equal(t, benefit.SettlementID(fmt.Sprintf("stl-%d", i+1)), item.SettlementID,
			"results keep input order")
	}
	assert.Equal(t, settlement.OutcomeAlreadyProcessed, result.Items[2].Outcome)
	assert.NotEmpty(t, result.Items[2].Reason)
	assert.Equal(t, settlement.OutcomeProcessed, result.Items[0].Outcome)

	// The earlier payout is untouched.
	s, err := store.GetSettlement(ctx, "stl-3")
	require.NoError(t, err)
	assert.Equal(t, "UTR-FIRST", s.BankReference)
}

func TestProcessBulkPayouts_MissingItem_BatchContinues(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()
	seedPending(t, store, "stl-1")
	seedPending(t, store, "stl-2")

	result, err := p.ProcessBulkPayouts(ctx, finance, []settlement.PayoutItem{
		{SettlementID: "stl-1", BankReference: "UTR-1"},
		{SettlementID: "ghost", BankReference: "UTR-X"},
		{SettlementID: "stl-2", BankReference: "UTR-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, settlement.OutcomeNotFound, result.Items[1].Outcome)
	assert.Equal(t, settlement.OutcomeProcessed, result.Items[2].Outcome,
		"a bad row never blocks the rest of the batch")
}

func TestProcessBulkPayouts_EachSuccessNotified_PlusBatchAudit(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()
	seedPending(t, store, "stl-1")
	seedPending(t, store, "stl-2")

	_, err := p.ProcessBulkPayouts(ctx, finance, []settlement.PayoutItem{
		{SettlementID: "stl-1", BankReference: "UTR-1"},
		{SettlementID: "stl-2", BankReference: "UTR-2"},
	})
	require.NoError(t, err)

	assert.Len(t, store.Notifications(), 2)

	kinds := map[settlement.AuditKind]int{}
	for _, e := range store.AuditEntries() {
		kinds[e.Kind]++
	}
	assert.Equal(t, 2, kinds[settlement.AuditPayoutProcessed])
	assert.Equal(t, 1, kinds[settlement.AuditBulkPayout])
}

func TestProcessBulkPayouts_ViewerDenied(t *testing.T) {
	p, store := newTestProcessor(t)
	seedPending(t, store, "stl-1")

	_, err := p.ProcessBulkPayouts(context.Background(), viewer, []settlement.PayoutItem{
		{SettlementID: "stl-1", BankReference: "UTR-1"},
	})
	assert.ErrorIs(t, err, benefit.ErrNotAuthorized)
}

// =============================================================================
// AUTHORIZATION MATRIX TESTS
// =============================================================================

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role settlement.ActorRole
		cap  settlement.Capability
		want bool
	}{
		{settlement.RoleAdmin, settlement.CapProcessPayout, true},
		{settlement.RoleAdmin, settlement.CapManageSlabs, true},
		{settlement.RoleFinance, settlement.CapCreateSettlement, true},
		{settlement.RoleFinance, settlement.CapManageSlabs, false},
		{settlement.RoleCampusAdmin, settlement.CapManageSlabs, true},
		{settlement.RoleCampusAdmin, settlement.CapProcessPayout, false},
		{settlement.RoleViewer, settlement.CapViewLedger, true},
		{settlement.RoleViewer, settlement.CapProcessPayout, false},
		// Unknown roles carry no capabilities - there is no substring
		// matching on role labels.
		{settlement.ActorRole("super_admin_finance"), settlement.CapProcessPayout, false},
	}
	for _, c := range cases {
		actor := settlement.Actor{ID: "x", Role: c.role}
		assert.Equal(t, c.want, actor.Can(c.cap), "%s / %s", c.role, c.cap)
	}
}
