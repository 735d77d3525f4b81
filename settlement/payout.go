/*
payout.go - Exactly-once payout processing, single and bulk

PURPOSE:
  Transitions Pending settlements to Processed, recording the bank
  reference and payout date, with a hard guarantee against double
  payment.

EXACTLY-ONCE:
  The status check and the Processed write happen as one atomic unit
  per settlement row (Store.MarkProcessed - a conditional update in
  SQL terms). Two administrators racing on the same settlement get
  one success and one ErrAlreadyProcessed, never two bank transfers.

BULK SEMANTICS:
  Items are processed independently in input order. A missing or
  already-processed item is counted as a failure with its reason and
  the batch continues - one bad row never rolls back the others.
  Each successful item triggers its own notification.

SIDE-EFFECT POLICY:
  Audit and notification run AFTER the ledger mutation and are
  best-effort. A notification failure is logged via the audit trail
  metadata at most; it never unwinds the payout.

SEE ALSO:
  - types.go: Store.MarkProcessed contract
  - ledger.go: Where the settlement amounts come from
*/
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/warp/referral-engine/benefit"
)

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor executes payout transitions.
type Processor struct {
	Store  Store
	Audit  AuditLog
	Notify Notifier

	// Now is injected for tests. Nil means time.Now.
	Now func() time.Time
}

func NewProcessor(store Store, audit AuditLog, notify Notifier) *Processor {
	if audit == nil {
		audit = NopAudit{}
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Processor{Store: store, Audit: audit, Notify: notify}
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// SINGLE PAYOUT
// =============================================================================

// ProcessPayout transitions one settlement to Processed. Reprocessing
// an already-Processed settlement is rejected with the existing bank
// reference attached, so the administrator can see what happened.
func (p *Processor) ProcessPayout(ctx context.Context, actor Actor, id benefit.SettlementID, bankReference, remarks string) (*Settlement, error) {
	if err := Require(actor, CapProcessPayout); err != nil {
		return nil, err
	}

	existing, err := p.Store.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, benefit.ErrSettlementNotFound
	}
	if existing.Status == StatusProcessed {
		return nil, &benefit.AlreadyProcessedError{
			SettlementID:  id,
			BankReference: existing.BankReference,
		}
	}

	payoutDate := p.now()
	update := ProcessedUpdate{
		BankReference: bankReference,
		Remarks:       remarks,
		ProcessedBy:   actor.ID,
		PayoutDate:    payoutDate,
	}
	// The atomic guard: MarkProcessed re-checks status inside the
	// store. The read above only improves the error detail; a
	// concurrent processor is still caught here.
	if err := p.Store.MarkProcessed(ctx, id, update); err != nil {
		return nil, err
	}

	processed, err := p.Store.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}

	p.emitSideEffects(ctx, actor, processed, bankReference)
	return processed, nil
}

// =============================================================================
// BULK PAYOUT - Partial-success batch
// =============================================================================

// PayoutItem is one row of a bulk payout request.
type PayoutItem struct {
	SettlementID  benefit.SettlementID
	BankReference string
	Remarks       string
}

// ItemOutcome tags one item's result so administrators can tell skip
// reasons apart.
type ItemOutcome string

const (
	OutcomeProcessed        ItemOutcome = "processed"
	OutcomeNotFound         ItemOutcome = "not_found"
	OutcomeAlreadyProcessed ItemOutcome = "already_processed"
	OutcomeStorageError     ItemOutcome = "storage_error"
)

type ItemResult struct {
	SettlementID benefit.SettlementID
	Outcome      ItemOutcome
	Reason       string
}

// BulkResult aggregates a batch.
type BulkResult struct {
	SuccessCount int
	FailureCount int
	Items        []ItemResult
}

// ProcessBulkPayouts processes items independently in input order.
// Each item re-fetches and re-checks its settlement; failures are
// recorded and the batch continues.
func (p *Processor) ProcessBulkPayouts(ctx context.Context, actor Actor, items []PayoutItem) (BulkResult, error) {
	if err := Require(actor, CapProcessPayout); err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{Items: make([]ItemResult, 0, len(items))}
	for _, item := range items {
		outcome := p.processItem(ctx, actor, item)
		result.Items = append(result.Items, outcome)
		if outcome.Outcome == OutcomeProcessed {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	_ = p.Audit.LogAction(ctx, AuditEntry{
		Kind:        AuditBulkPayout,
		Subject:     actor.ID,
		Description: fmt.Sprintf("bulk payout: %d processed, %d failed", result.SuccessCount, result.FailureCount),
		ActorID:     actor.ID,
		At:          p.now(),
	})

	return result, nil
}

func (p *Processor) processItem(ctx context.Context, actor Actor, item PayoutItem) ItemResult {
	res := ItemResult{SettlementID: item.SettlementID}

	existing, err := p.Store.GetSettlement(ctx, item.SettlementID)
	if err != nil {
		res.Outcome = OutcomeStorageError
		res.Reason = err.Error()
		return res
	}
	if existing == nil {
		res.Outcome = OutcomeNotFound
		res.Reason = "settlement does not exist"
		return res
	}
	if existing.Status == StatusProcessed {
		res.Outcome = OutcomeAlreadyProcessed
		res.Reason = fmt.Sprintf("already paid with reference %s", existing.BankReference)
		return res
	}

	err = p.Store.MarkProcessed(ctx, item.SettlementID, ProcessedUpdate{
		BankReference: item.BankReference,
		Remarks:       item.Remarks,
		ProcessedBy:   actor.ID,
		PayoutDate:    p.now(),
	})
	switch {
	case err == nil:
		res.Outcome = OutcomeProcessed
	case errors.Is(err, benefit.ErrAlreadyProcessed):
		// Lost a race between the read and the write.
		res.Outcome = OutcomeAlreadyProcessed
		res.Reason = "already paid"
		return res
	case errors.Is(err, benefit.ErrSettlementNotFound):
		res.Outcome = OutcomeNotFound
		res.Reason = "settlement does not exist"
		return res
	default:
		res.Outcome = OutcomeStorageError
		res.Reason = err.Error()
		return res
	}

	if processed, err := p.Store.GetSettlement(ctx, item.SettlementID); err == nil && processed != nil {
		p.emitSideEffects(ctx, actor, processed, item.BankReference)
	}
	return res
}

// emitSideEffects records the audit entry and notifies the ambassador.
// Both are best-effort; the ledger mutation is already durable.
func (p *Processor) emitSideEffects(ctx context.Context, actor Actor, s *Settlement, bankReference string) {
	if s == nil {
		return
	}
	_ = p.Audit.LogAction(ctx, AuditEntry{
		Kind:        AuditPayoutProcessed,
		Subject:     string(s.AmbassadorID),
		Description: fmt.Sprintf("settlement %s paid: %s", s.ID, s.Amount.Value),
		RefID:       bankReference,
		ActorID:     actor.ID,
		At:          p.now(),
	})
	if err := p.Notify.Notify(ctx,
		string(s.AmbassadorID),
		"Payout processed",
		fmt.Sprintf("Your settlement of %s %s has been paid (ref %s).", s.Amount.Currency, s.Amount.Value, bankReference),
		"payout",
	); err != nil {
		log.Printf("payout notification for %s failed: %v", s.ID, err)
	}
}
