/*
Package sqlite provides the SQLite-backed implementation of the
engine's storage interfaces.

PURPOSE:
  Implements referral.Store, referral.FeeResolver, referral.SlabStore,
  settlement.Store, settlement.AuditLog and settlement.Notifier using
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  ambassadors:     Program participants (archived, never deleted)
  referral_leads:  Lead lifecycle rows; Confirmed rows feed the
                   calculator
  students:        Admitted students the confirmed leads link to
  fee_table:       campus/grade/year/fee-type -> base fee
  benefit_slabs:   Tier-table override rows, keyed (table, count)
  settlements:     The durable payout ledger
  audit_log:       Append-only administrative audit trail
  notifications:   Outbox of user-facing messages

EXACTLY-ONCE PAYOUT:
  MarkProcessed is a conditional UPDATE guarded by status = 'pending'.
  RowsAffected distinguishes "won the race" from "already processed";
  a follow-up existence check distinguishes the latter from "not
  found". Two administrators racing on the same settlement id get
  exactly one success.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time,
  better crash recovery.

USAGE:
  store, err := sqlite.New("./data/referrals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - referral/store.go, settlement/types.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/referral"
	"github.com/warp/referral-engine/settlement"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ambassadors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		child_enrolled BOOLEAN NOT NULL DEFAULT FALSE,
		base_fee TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT 'INR',
		confirmed_count INTEGER NOT NULL DEFAULT 0,
		elite_last_year BOOLEAN NOT NULL DEFAULT FALSE,
		benefit_status TEXT NOT NULL DEFAULT 'inactive',
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS referral_leads (
		id TEXT PRIMARY KEY,
		ambassador_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'new',
		family_name TEXT,
		campus_id TEXT,
		grade TEXT,
		student_id TEXT,
		admitted_year TEXT,
		fee_type TEXT,
		base_fee TEXT,
		confirmation_percent TEXT,
		created_at TEXT NOT NULL,
		confirmed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leads_ambassador
		ON referral_leads(ambassador_id);
	-- Hot path: CountConfirmed re-derives the confirmed count on every
	-- monetary computation.
	CREATE INDEX IF NOT EXISTS idx_leads_ambassador_status
		ON referral_leads(ambassador_id, status);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT,
		academic_year TEXT,
		campus_id TEXT,
		grade TEXT
	);

	CREATE TABLE IF NOT EXISTS fee_table (
		campus_id TEXT NOT NULL,
		grade TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		fee_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		UNIQUE(campus_id, grade, academic_year, fee_type)
	);

	CREATE TABLE IF NOT EXISTS benefit_slabs (
		table_name TEXT NOT NULL,
		referral_count INTEGER NOT NULL,
		percent TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(table_name, referral_count)
	);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		ambassador_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'INR',
		percent TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		bank_reference TEXT,
		remarks TEXT,
		processed_by TEXT,
		payout_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_ambassador
		ON settlements(ambassador_id);
	CREATE INDEX IF NOT EXISTS idx_settlements_status
		ON settlements(status);
	-- Hot path: SumProcessed per ambassador.
	CREATE INDEX IF NOT EXISTS idx_settlements_ambassador_status
		ON settlements(ambassador_id, status);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		description TEXT,
		ref_id TEXT,
		actor_id TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_subject
		ON audit_log(subject);

	CREATE TABLE IF NOT EXISTS notifications (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		kind TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// AMBASSADORS (referral.Store interface)
// =============================================================================

func (s *Store) SaveAmbassador(ctx context.Context, a referral.Ambassador) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO ambassadors
		(id, name, role, child_enrolled, base_fee, currency, confirmed_count,
		 elite_last_year, benefit_status, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			child_enrolled = excluded.child_enrolled,
			base_fee = excluded.base_fee,
			currency = excluded.currency,
			confirmed_count = excluded.confirmed_count,
			elite_last_year = excluded.elite_last_year,
			benefit_status = excluded.benefit_status,
			archived = excluded.archived
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Role, a.ChildEnrolledAtSchool,
		a.BaseStudentFee.Value.String(), a.BaseStudentFee.Currency,
		a.ConfirmedReferralCount, a.IsEliteLastYear, a.BenefitStatus,
		a.Archived, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save ambassador: %w", err)
	}
	return nil
}

func (s *Store) GetAmbassador(ctx context.Context, id benefit.AmbassadorID) (*referral.Ambassador, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, child_enrolled, base_fee, currency, confirmed_count,
		       elite_last_year, benefit_status, archived, created_at
		FROM ambassadors WHERE id = ?`, id)

	a, err := scanAmbassador(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) ListAmbassadors(ctx context.Context) ([]referral.Ambassador, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, child_enrolled, base_fee, currency, confirmed_count,
		       elite_last_year, benefit_status, archived, created_at
		FROM ambassadors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ambassadors: %w", err)
	}
	defer rows.Close()

	var out []referral.Ambassador
	for rows.Next() {
		a, err := scanAmbassador(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// rowScanner lets scan helpers work with both Row and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAmbassador(row rowScanner) (*referral.Ambassador, error) {
	var (
		a         referral.Ambassador
		baseFee   string
		currency  string
		createdAt string
	)
	err := row.Scan(&a.ID, &a.Name, &a.Role, &a.ChildEnrolledAtSchool,
		&baseFee, &currency, &a.ConfirmedReferralCount,
		&a.IsEliteLastYear, &a.BenefitStatus, &a.Archived, &createdAt)
	if err != nil {
		return nil, err
	}
	a.BaseStudentFee = benefit.Amount{Value: benefit.MustParseDecimal(baseFee), Currency: currency}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

// =============================================================================
// REFERRAL LEADS (referral.Store interface)
// =============================================================================

func (s *Store) SaveLead(ctx context.Context, lead referral.ReferralLead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := lead.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var baseFee sql.NullString
	if lead.BaseFee != nil {
		baseFee = sql.NullString{String: lead.BaseFee.Value.String(), Valid: true}
	}
	var confirmedAt sql.NullString
	if lead.ConfirmedAt != nil {
		confirmedAt = sql.NullString{String: lead.ConfirmedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	query := `
		INSERT INTO referral_leads
		(id, ambassador_id, status, family_name, campus_id, grade, student_id,
		 admitted_year, fee_type, base_fee, confirmation_percent, created_at, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			family_name = excluded.family_name,
			campus_id = excluded.campus_id,
			grade = excluded.grade,
			student_id = excluded.student_id,
			admitted_year = excluded.admitted_year,
			fee_type = excluded.fee_type,
			base_fee = excluded.base_fee,
			confirmation_percent = excluded.confirmation_percent,
			confirmed_at = excluded.confirmed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		lead.ID, lead.AmbassadorID, lead.Status,
		nullString(lead.FamilyName), nullString(lead.CampusID), nullString(lead.Grade),
		nullString(string(lead.StudentID)), nullString(lead.AdmittedYear),
		nullString(string(lead.FeeType)), baseFee,
		nullString(lead.ConfirmationPercent),
		createdAt.Format(time.RFC3339), confirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, id benefit.ReferralID) (*referral.ReferralLead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, leadSelect+` WHERE id = ?`, id)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *Store) ListLeads(ctx context.Context, ambassadorID benefit.AmbassadorID) ([]referral.ReferralLead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, leadSelect+`
		WHERE ambassador_id = ? ORDER BY created_at ASC`, ambassadorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var out []referral.ReferralLead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lead)
	}
	return out, rows.Err()
}

func (s *Store) CountConfirmed(ctx context.Context, ambassadorID benefit.AmbassadorID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referral_leads
		WHERE ambassador_id = ? AND status = ?`,
		ambassadorID, referral.StatusConfirmed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed leads: %w", err)
	}
	return count, nil
}

const leadSelect = `
	SELECT id, ambassador_id, status, family_name, campus_id, grade, student_id,
	       admitted_year, fee_type, base_fee, confirmation_percent, created_at, confirmed_at
	FROM referral_leads`

func scanLead(row rowScanner) (*referral.ReferralLead, error) {
	var (
		lead        referral.ReferralLead
		familyName  sql.NullString
		campusID    sql.NullString
		grade       sql.NullString
		studentID   sql.NullString
		admitted    sql.NullString
		feeType     sql.NullString
		baseFee     sql.NullString
		confirmPct  sql.NullString
		createdAt   string
		confirmedAt sql.NullString
	)
	err := row.Scan(&lead.ID, &lead.AmbassadorID, &lead.Status,
		&familyName, &campusID, &grade, &studentID, &admitted, &feeType,
		&baseFee, &confirmPct, &createdAt, &confirmedAt)
	if err != nil {
		return nil, err
	}

	lead.FamilyName = familyName.String
	lead.CampusID = campusID.String
	lead.Grade = grade.String
	lead.StudentID = benefit.StudentID(studentID.String)
	lead.AdmittedYear = admitted.String
	lead.FeeType = referral.FeeType(feeType.String)
	lead.ConfirmationPercent = confirmPct.String
	if baseFee.Valid {
		fee := benefit.Amount{Value: benefit.MustParseDecimal(baseFee.String), Currency: benefit.DefaultCurrency}
		lead.BaseFee = &fee
	}
	lead.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if confirmedAt.Valid {
		t, _ := time.Parse(time.RFC3339, confirmedAt.String)
		lead.ConfirmedAt = &t
	}
	return &lead, nil
}

// =============================================================================
// STUDENTS (referral.Store interface)
// =============================================================================

func (s *Store) SaveStudent(ctx context.Context, st referral.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name, academic_year, campus_id, grade)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			academic_year = excluded.academic_year,
			campus_id = excluded.campus_id,
			grade = excluded.grade`,
		st.ID, st.Name, nullString(st.AcademicYear), nullString(st.CampusID), nullString(st.Grade))
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id benefit.StudentID) (*referral.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		st       referral.Student
		year     sql.NullString
		campusID sql.NullString
		grade    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, academic_year, campus_id, grade FROM students WHERE id = ?`, id).
		Scan(&st.ID, &st.Name, &year, &campusID, &grade)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.AcademicYear = year.String
	st.CampusID = campusID.String
	st.Grade = grade.String
	return &st, nil
}

// =============================================================================
// FEE TABLE (referral.FeeResolver interface)
// =============================================================================

// SetFee upserts a fee-table row.
func (s *Store) SetFee(ctx context.Context, campusID, grade, academicYear string, feeType referral.FeeType, amount benefit.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fee_table (campus_id, grade, academic_year, fee_type, amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(campus_id, grade, academic_year, fee_type) DO UPDATE SET
			amount = excluded.amount`,
		campusID, grade, academicYear, feeType, amount.Value.String())
	if err != nil {
		return fmt.Errorf("failed to save fee row: %w", err)
	}
	return nil
}

// ResolveFeeBasis returns nil (not zero) when no fee-table row exists,
// so callers can tell "no data" apart from "fee of zero".
func (s *Store) ResolveFeeBasis(ctx context.Context, campusID, grade, academicYear string, feeType referral.FeeType) (*benefit.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var amount string
	err := s.db.QueryRowContext(ctx, `
		SELECT amount FROM fee_table
		WHERE campus_id = ? AND grade = ? AND academic_year = ? AND fee_type = ?`,
		campusID, grade, academicYear, feeType).Scan(&amount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fee basis: %w", err)
	}
	fee := benefit.Amount{Value: benefit.MustParseDecimal(amount), Currency: benefit.DefaultCurrency}
	return &fee, nil
}

// =============================================================================
// BENEFIT SLABS (referral.SlabStore interface)
// =============================================================================

func (s *Store) PutSlabOverride(ctx context.Context, table referral.SlabTableName, count int, percent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO benefit_slabs (table_name, referral_count, percent, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(table_name, referral_count) DO UPDATE SET
			percent = excluded.percent,
			updated_at = excluded.updated_at`,
		table, count, percent, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save slab override: %w", err)
	}
	return nil
}

func (s *Store) SlabOverrides(ctx context.Context, table referral.SlabTableName) (benefit.SlabTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT referral_count, percent FROM benefit_slabs WHERE table_name = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to load slab overrides: %w", err)
	}
	defer rows.Close()

	var out benefit.SlabTable
	for rows.Next() {
		var (
			count   int
			percent string
		)
		if err := rows.Scan(&count, &percent); err != nil {
			return nil, err
		}
		if out == nil {
			out = make(benefit.SlabTable)
		}
		out[count] = benefit.MustParseDecimal(percent)
	}
	return out, rows.Err()
}

// =============================================================================
// SETTLEMENTS (settlement.Store interface)
// =============================================================================

func (s *Store) CreateSettlement(ctx context.Context, stl settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payoutDate sql.NullString
	if stl.PayoutDate != nil {
		payoutDate = sql.NullString{String: stl.PayoutDate.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlements
		(id, ambassador_id, amount, currency, percent, status, bank_reference,
		 remarks, processed_by, payout_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stl.ID, stl.AmbassadorID, stl.Amount.Value.String(), stl.Amount.Currency,
		nullString(stl.Percent), stl.Status, nullString(stl.BankReference),
		nullString(stl.Remarks), nullString(stl.ProcessedBy), payoutDate,
		stl.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("settlement %s already exists: %w", stl.ID, err)
		}
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id benefit.SettlementID) (*settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, settlementSelect+` WHERE id = ?`, id)
	stl, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stl, nil
}

func (s *Store) ListSettlements(ctx context.Context, ambassadorID benefit.AmbassadorID) ([]settlement.Settlement, error) {
	return s.querySettlements(ctx, settlementSelect+`
		WHERE ambassador_id = ? ORDER BY created_at ASC`, ambassadorID)
}

func (s *Store) ListByStatus(ctx context.Context, status settlement.Status) ([]settlement.Settlement, error) {
	return s.querySettlements(ctx, settlementSelect+`
		WHERE status = ? ORDER BY created_at ASC`, status)
}

func (s *Store) querySettlements(ctx context.Context, query string, args ...any) ([]settlement.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var out []settlement.Settlement
	for rows.Next() {
		stl, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *stl)
	}
	return out, rows.Err()
}

func (s *Store) SumProcessed(ctx context.Context, ambassadorID benefit.AmbassadorID) (benefit.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT amount FROM settlements
		WHERE ambassador_id = ? AND status = ?`,
		ambassadorID, settlement.StatusProcessed)
	if err != nil {
		return benefit.Amount{}, fmt.Errorf("failed to sum settlements: %w", err)
	}
	defer rows.Close()

	// Summed in decimal, not SQL, to keep the arithmetic exact.
	sum := benefit.ZeroAmount()
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return benefit.Amount{}, err
		}
		sum = sum.Add(benefit.Amount{Value: benefit.MustParseDecimal(amount), Currency: sum.Currency})
	}
	return sum, rows.Err()
}

// MarkProcessed is the exactly-once payout guard: a conditional UPDATE
// on status = 'pending'. RowsAffected == 0 means the row was missing
// or already processed; a follow-up read tells the two apart.
func (s *Store) MarkProcessed(ctx context.Context, id benefit.SettlementID, update settlement.ProcessedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE settlements
		SET status = ?, bank_reference = ?, remarks = COALESCE(NULLIF(?, ''), remarks),
		    processed_by = ?, payout_date = ?
		WHERE id = ? AND status = ?`,
		settlement.StatusProcessed, update.BankReference, update.Remarks,
		update.ProcessedBy, update.PayoutDate.UTC().Format(time.RFC3339),
		id, settlement.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to process settlement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check settlement update: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var bankRef sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT bank_reference FROM settlements WHERE id = ?`, id).Scan(&bankRef)
	if err == sql.ErrNoRows {
		return benefit.ErrSettlementNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect settlement: %w", err)
	}
	return &benefit.AlreadyProcessedError{SettlementID: id, BankReference: bankRef.String}
}

const settlementSelect = `
	SELECT id, ambassador_id, amount, currency, percent, status, bank_reference,
	       remarks, processed_by, payout_date, created_at
	FROM settlements`

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var (
		stl         settlement.Settlement
		amount      string
		currency    string
		percent     sql.NullString
		bankRef     sql.NullString
		remarks     sql.NullString
		processedBy sql.NullString
		payoutDate  sql.NullString
		createdAt   string
	)
	err := row.Scan(&stl.ID, &stl.AmbassadorID, &amount, &currency, &percent,
		&stl.Status, &bankRef, &remarks, &processedBy, &payoutDate, &createdAt)
	if err != nil {
		return nil, err
	}
	stl.Amount = benefit.Amount{Value: benefit.MustParseDecimal(amount), Currency: currency}
	stl.Percent = percent.String
	stl.BankReference = bankRef.String
	stl.Remarks = remarks.String
	stl.ProcessedBy = processedBy.String
	if payoutDate.Valid {
		t, _ := time.Parse(time.RFC3339, payoutDate.String)
		stl.PayoutDate = &t
	}
	stl.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &stl, nil
}

// =============================================================================
// AUDIT LOG & NOTIFICATIONS
// =============================================================================

func (s *Store) LogAction(ctx context.Context, entry settlement.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (kind, subject, description, ref_id, actor_id, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Kind, entry.Subject, nullString(entry.Description),
		nullString(entry.RefID), nullString(entry.ActorID),
		at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns entries for a subject, oldest first.
func (s *Store) AuditEntries(ctx context.Context, subject string) ([]settlement.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, subject, description, ref_id, actor_id, at
		FROM audit_log WHERE subject = ? ORDER BY seq ASC`, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []settlement.AuditEntry
	for rows.Next() {
		var (
			entry       settlement.AuditEntry
			description sql.NullString
			refID       sql.NullString
			actorID     sql.NullString
			at          string
		)
		if err := rows.Scan(&entry.Kind, &entry.Subject, &description, &refID, &actorID, &at); err != nil {
			return nil, err
		}
		entry.Description = description.String
		entry.RefID = refID.String
		entry.ActorID = actorID.String
		entry.At, _ = time.Parse(time.RFC3339, at)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Notify appends to the notification outbox. Delivery is external.
func (s *Store) Notify(ctx context.Context, userID, title, message, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, title, message, kind, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, title, nullString(message), nullString(kind),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// Reset clears all tables. For demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"ambassadors", "referral_leads", "students", "fee_table",
		"benefit_slabs", "settlements", "audit_log", "notifications",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
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
