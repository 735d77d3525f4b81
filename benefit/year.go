/*
year.go - Academic-year resolution with tagged fallbacks

PURPOSE:
  Referral source data is inconsistently populated: some leads carry an
  explicit admitted academic year, some only link a student whose year
  is recorded, and the oldest rows carry nothing but a creation
  timestamp. Year filtering (current-year vs prior-year referrals)
  must work across all three, in a fixed order.

RESOLUTION ORDER (must be preserved exactly):
  1. Explicit admitted-year field on the lead
  2. The admitted student's recorded academic year
  3. The lead's creation timestamp compared against the academic-year
     boundary dates

TAGGED RESULT:
  The resolver returns WHICH rule fired, so tests (and data-quality
  reports) can assert the fallback behavior instead of inferring it
  from the output year.

YEAR LABELS:
  Academic years are labelled "2025-2026": the year containing the
  boundary start date, dash, the following year.

SEE ALSO:
  - referral/store.go: Uses the resolver to filter confirmed leads
  - factory/config.go: Configures the boundary month/day
*/
package benefit

import (
	"fmt"
	"time"
)

// =============================================================================
// ACADEMIC YEAR - Boundary configuration and labels
// =============================================================================

// AcademicYearConfig defines when the academic year rolls over.
// The default (June 1) matches the admissions calendar.
type AcademicYearConfig struct {
	StartMonth time.Month
	StartDay   int
}

func DefaultAcademicYearConfig() AcademicYearConfig {
	return AcademicYearConfig{StartMonth: time.June, StartDay: 1}
}

// YearFor returns the academic-year label containing t.
func (c AcademicYearConfig) YearFor(t time.Time) string {
	boundary := time.Date(t.Year(), c.StartMonth, c.StartDay, 0, 0, 0, 0, t.Location())
	startYear := t.Year()
	if t.Before(boundary) {
		startYear--
	}
	return YearLabel(startYear)
}

// YearLabel formats an academic-year label from its starting year.
func YearLabel(startYear int) string {
	return fmt.Sprintf("%d-%d", startYear, startYear+1)
}

// PreviousYear returns the label of the academic year before the given
// label. Malformed labels return "" rather than failing.
func PreviousYear(label string) string {
	var start, end int
	if _, err := fmt.Sscanf(label, "%d-%d", &start, &end); err != nil {
		return ""
	}
	return YearLabel(start - 1)
}

// =============================================================================
// YEAR RESOLVER - Ordered fallback with a tagged source
// =============================================================================

// YearSource tags which resolution rule supplied the year.
type YearSource string

const (
	ResolvedByAdmittedYear YearSource = "admitted_year"
	ResolvedByStudentYear  YearSource = "student_year"
	ResolvedByDateFallback YearSource = "date_fallback"
)

// ResolvedYear is the tagged result of year resolution.
type ResolvedYear struct {
	Year   string
	Source YearSource
}

// YearInput carries the three candidate signals for one lead.
type YearInput struct {
	AdmittedYear string    // explicit field on the lead; "" when absent
	StudentYear  string    // admitted student's recorded year; "" when absent
	CreatedAt    time.Time // lead creation timestamp (always present)
}

// ResolveYear applies the three-tier fallback in order. The date
// fallback always succeeds, so every lead resolves to some year.
func (c AcademicYearConfig) ResolveYear(in YearInput) ResolvedYear {
	if in.AdmittedYear != "" {
		return ResolvedYear{Year: in.AdmittedYear, Source: ResolvedByAdmittedYear}
	}
	if in.StudentYear != "" {
		return ResolvedYear{Year: in.StudentYear, Source: ResolvedByStudentYear}
	}
	return ResolvedYear{Year: c.YearFor(in.CreatedAt), Source: ResolvedByDateFallback}
}
