/*
Package memory provides an in-memory implementation of every storage
interface in the engine, for tests and demo scenarios.

PURPOSE:
  Fast, dependency-free storage with the same semantics as the SQLite
  store - including the atomic MarkProcessed guard, which is what the
  concurrency tests exercise.

THREAD SAFETY:
  A single RWMutex guards all maps. MarkProcessed performs its
  check-then-write under the write lock, matching the conditional
  UPDATE in the SQLite store.

SEE ALSO:
  - store/sqlite: Durable implementation
  - referral/store.go, settlement/types.go: Interface contracts
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/referral"
	"github.com/warp/referral-engine/settlement"
)

// Store implements referral.Store, referral.FeeResolver,
// referral.SlabStore, settlement.Store, settlement.AuditLog and
// settlement.Notifier in memory.
type Store struct {
	mu sync.RWMutex

	ambassadors map[benefit.AmbassadorID]referral.Ambassador
	leads       map[benefit.ReferralID]referral.ReferralLead
	students    map[benefit.StudentID]referral.Student
	settlements map[benefit.SettlementID]settlement.Settlement
	slabs       map[referral.SlabTableName]map[int]string
	fees        map[feeKey]benefit.Amount

	auditEntries  []settlement.AuditEntry
	notifications []Notification
}

type feeKey struct {
	CampusID string
	Grade    string
	Year     string
	FeeType  referral.FeeType
}

// Notification is a recorded Notify call, inspectable by tests.
type Notification struct {
	UserID  string
	Title   string
	Message string
	Kind    string
}

func New() *Store {
	return &Store{
		ambassadors: make(map[benefit.AmbassadorID]referral.Ambassador),
		leads:       make(map[benefit.ReferralID]referral.ReferralLead),
		students:    make(map[benefit.StudentID]referral.Student),
		settlements: make(map[benefit.SettlementID]settlement.Settlement),
		slabs:       make(map[referral.SlabTableName]map[int]string),
		fees:        make(map[feeKey]benefit.Amount),
	}
}

// =============================================================================
// REFERRAL STORE (referral.Store interface)
// =============================================================================

func (s *Store) GetAmbassador(_ context.Context, id benefit.AmbassadorID) (*referral.Ambassador, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.ambassadors[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) SaveAmbassador(_ context.Context, a referral.Ambassador) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambassadors[a.ID] = a
	return nil
}

func (s *Store) ListAmbassadors(_ context.Context) ([]referral.Ambassador, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]referral.Ambassador, 0, len(s.ambassadors))
	for _, a := range s.ambassadors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetLead(_ context.Context, id benefit.ReferralID) (*referral.ReferralLead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (s *Store) SaveLead(_ context.Context, lead referral.ReferralLead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID] = lead
	return nil
}

func (s *Store) ListLeads(_ context.Context, ambassadorID benefit.AmbassadorID) ([]referral.ReferralLead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []referral.ReferralLead
	for _, l := range s.leads {
		if l.AmbassadorID == ambassadorID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountConfirmed(_ context.Context, ambassadorID benefit.AmbassadorID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, l := range s.leads {
		if l.AmbassadorID == ambassadorID && l.Status == referral.StatusConfirmed {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetStudent(_ context.Context, id benefit.StudentID) (*referral.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) SaveStudent(_ context.Context, st referral.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
	return nil
}

// =============================================================================
// FEE RESOLVER (referral.FeeResolver interface)
// =============================================================================

// SetFee seeds a fee-table row.
func (s *Store) SetFee(_ context.Context, campusID, grade, year string, feeType referral.FeeType, amount benefit.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[feeKey{campusID, grade, year, feeType}] = amount
	return nil
}

func (s *Store) ResolveFeeBasis(_ context.Context, campusID, grade, academicYear string, feeType referral.FeeType) (*benefit.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, ok := s.fees[feeKey{campusID, grade, academicYear, feeType}]
	if !ok {
		return nil, nil // no row: nil, not zero
	}
	return &amount, nil
}

// =============================================================================
// SLAB STORE (referral.SlabStore interface)
// =============================================================================

func (s *Store) SlabOverrides(_ context.Context, table referral.SlabTableName) (benefit.SlabTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.slabs[table]
	if len(rows) == 0 {
		return nil, nil
	}
	out := make(benefit.SlabTable, len(rows))
	for count, pct := range rows {
		out[count] = benefit.MustParseDecimal(pct)
	}
	return out, nil
}

func (s *Store) PutSlabOverride(_ context.Context, table referral.SlabTableName, count int, percent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slabs[table] == nil {
		s.slabs[table] = make(map[int]string)
	}
	s.slabs[table][count] = percent
	return nil
}

// =============================================================================
// SETTLEMENT STORE (settlement.Store interface)
// =============================================================================

func (s *Store) CreateSettlement(_ context.Context, stl settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[stl.ID] = stl
	return nil
}

func (s *Store) GetSettlement(_ context.Context, id benefit.SettlementID) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stl, ok := s.settlements[id]
	if !ok {
		return nil, nil
	}
	return &stl, nil
}

func (s *Store) ListSettlements(_ context.Context, ambassadorID benefit.AmbassadorID) ([]settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []settlement.Settlement
	for _, stl := range s.settlements {
		if stl.AmbassadorID == ambassadorID {
			out = append(out, stl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListByStatus(_ context.Context, status settlement.Status) ([]settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []settlement.Settlement
	for _, stl := range s.settlements {
		if stl.Status == status {
			out = append(out, stl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SumProcessed(_ context.Context, ambassadorID benefit.AmbassadorID) (benefit.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := benefit.ZeroAmount()
	for _, stl := range s.settlements {
		if stl.AmbassadorID == ambassadorID && stl.Status == settlement.StatusProcessed {
			sum = sum.Add(stl.Amount)
		}
	}
	return sum, nil
}

// MarkProcessed performs check-then-write under the write lock,
// matching the SQLite store's conditional UPDATE.
func (s *Store) MarkProcessed(_ context.Context, id benefit.SettlementID, update settlement.ProcessedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stl, ok := s.settlements[id]
	if !ok {
		return benefit.ErrSettlementNotFound
	}
	if stl.Status == settlement.StatusProcessed {
		return &benefit.AlreadyProcessedError{SettlementID: id, BankReference: stl.BankReference}
	}
	stl.Status = settlement.StatusProcessed
	stl.BankReference = update.BankReference
	if update.Remarks != "" {
		stl.Remarks = update.Remarks
	}
	stl.ProcessedBy = update.ProcessedBy
	payout := update.PayoutDate
	stl.PayoutDate = &payout
	s.settlements[id] = stl
	return nil
}

// =============================================================================
// AUDIT LOG & NOTIFIER (settlement.AuditLog / settlement.Notifier)
// =============================================================================

func (s *Store) LogAction(_ context.Context, entry settlement.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEntries = append(s.auditEntries, entry)
	return nil
}

// AuditEntries returns a copy of the recorded audit trail.
func (s *Store) AuditEntries() []settlement.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]settlement.AuditEntry, len(s.auditEntries))
	copy(out, s.auditEntries)
	return out
}

func (s *Store) Notify(_ context.Context, userID, title, message, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, Notification{
		UserID: userID, Title: title, Message: message, Kind: kind,
	})
	return nil
}

// Notifications returns a copy of the recorded notifications.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// Compile-time interface checks.
var (
	_ referral.Store       = (*Store)(nil)
	_ referral.FeeResolver = (*Store)(nil)
	_ referral.SlabStore   = (*Store)(nil)
	_ settlement.Store     = (*Store)(nil)
	_ settlement.AuditLog  = (*Store)(nil)
	_ settlement.Notifier  = (*Store)(nil)
)
