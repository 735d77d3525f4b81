/*
Package factory provides JSON to Go program-configuration conversion.

PURPOSE:
  Converts JSON program definitions into slab tables, academic-year
  settings and fee-table rows. This enables program configuration
  without code changes - the program owner can adjust tier percentages
  in JSON, and the factory applies them to the running system.

WHY JSON?
  - Non-developers can modify slab percentages
  - Easy integration with admin UI
  - Version control for program definitions
  - Database storage of program configs

JSON SCHEMA:
  {
    "name": "Referral Program 2025",
    "academic_year": {"start_month": 6, "start_day": 1},
    "carryover": {"base_percent": "15", "bonus_percent": "5"},
    "slabs": [
      {"table": "fee_discount", "count": 3, "percent": "20"},
      {"table": "elite", "count": 5, "percent": "25"},
      {"table": "confirmation", "count": 3, "percent": "25"}
    ],
    "fees": [
      {"campus_id": "north", "grade": "5", "academic_year": "2025-2026",
       "fee_type": "OTP", "amount": "60000"}
    ]
  }

KEY FEATURES:
  - Validates table names and count ranges
  - Missing slab rows fall back to the hardcoded defaults
  - Applies slab and fee rows to the stores in one call

USAGE:
  cfg, err := factory.ParseConfig(jsonStr)
  if err != nil {
      log.Fatal(err)
  }
  if err := factory.Apply(ctx, cfg, store, store); err != nil {
      log.Fatal(err)
  }

SEE ALSO:
  - benefit/slab.go: Default ladders the overrides apply to
  - benefit/year.go: Academic-year boundary the config sets
  - referral/store.go: SlabStore interface the rows are written to
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/referral-engine/benefit"
	"github.com/warp/referral-engine/referral"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the JSON representation of a program configuration.
type ConfigJSON struct {
	Name         string            `json:"name"`
	AcademicYear *AcademicYearJSON `json:"academic_year,omitempty"`
	Carryover    *CarryoverJSON    `json:"carryover,omitempty"`
	Slabs        []SlabRowJSON     `json:"slabs,omitempty"`
	Fees         []FeeRowJSON      `json:"fees,omitempty"`
}

// AcademicYearJSON sets the year boundary. Defaults to June 1.
type AcademicYearJSON struct {
	StartMonth int `json:"start_month"`
	StartDay   int `json:"start_day"`
}

// CarryoverJSON sets the elite carryover rates as decimal strings.
type CarryoverJSON struct {
	BasePercent  string `json:"base_percent"`
	BonusPercent string `json:"bonus_percent"`
}

// SlabRowJSON is one tier-table override row.
type SlabRowJSON struct {
	Table   string `json:"table"` // fee_discount, elite, confirmation
	Count   int    `json:"count"`
	Percent string `json:"percent"`
}

// FeeRowJSON is one fee-table row.
type FeeRowJSON struct {
	CampusID     string `json:"campus_id"`
	Grade        string `json:"grade"`
	AcademicYear string `json:"academic_year"`
	FeeType      string `json:"fee_type"` // OTP or WOTP
	Amount       string `json:"amount"`
}

// =============================================================================
// PARSED CONFIG
// =============================================================================

// Config is the validated program configuration.
type Config struct {
	Name      string
	Years     benefit.AcademicYearConfig
	Carryover CarryoverRates
	Slabs     []SlabRow
	Fees      []FeeRow
}

// CarryoverRates carries the elite carryover percentages. Nil decimals
// mean "use the calculator defaults".
type CarryoverRates struct {
	BasePercent  decimal.Decimal
	BonusPercent decimal.Decimal
	Set          bool
}

type SlabRow struct {
	Table   referral.SlabTableName
	Count   int
	Percent decimal.Decimal
}

type FeeRow struct {
	CampusID     string
	Grade        string
	AcademicYear string
	FeeType      referral.FeeType
	Amount       benefit.Amount
}

// ParseConfig parses a JSON string into a validated Config.
func ParseConfig(jsonStr string) (*Config, error) {
	var cj ConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return FromJSON(cj)
}

// FromJSON converts ConfigJSON to a validated Config.
func FromJSON(cj ConfigJSON) (*Config, error) {
	cfg := &Config{
		Name:  cj.Name,
		Years: benefit.DefaultAcademicYearConfig(),
	}

	if cj.AcademicYear != nil {
		years, err := parseAcademicYear(*cj.AcademicYear)
		if err != nil {
			return nil, err
		}
		cfg.Years = years
	}

	if cj.Carryover != nil {
		rates, err := parseCarryover(*cj.Carryover)
		if err != nil {
			return nil, err
		}
		cfg.Carryover = rates
	}

	for _, sj := range cj.Slabs {
		row, err := parseSlabRow(sj)
		if err != nil {
			return nil, err
		}
		cfg.Slabs = append(cfg.Slabs, row)
	}

	for _, fj := range cj.Fees {
		row, err := parseFeeRow(fj)
		if err != nil {
			return nil, err
		}
		cfg.Fees = append(cfg.Fees, row)
	}

	return cfg, nil
}

// ToJSON converts a Config back to its JSON representation.
func ToJSON(cfg *Config) ConfigJSON {
	cj := ConfigJSON{
		Name: cfg.Name,
		AcademicYear: &AcademicYearJSON{
			StartMonth: int(cfg.Years.StartMonth),
			StartDay:   cfg.Years.StartDay,
		},
	}
	if cfg.Carryover.Set {
		cj.Carryover = &CarryoverJSON{
			BasePercent:  cfg.Carryover.BasePercent.String(),
			BonusPercent: cfg.Carryover.BonusPercent.String(),
		}
	}
	for _, row := range cfg.Slabs {
		cj.Slabs = append(cj.Slabs, SlabRowJSON{
			Table:   string(row.Table),
			Count:   row.Count,
			Percent: row.Percent.String(),
		})
	}
	for _, row := range cfg.Fees {
		cj.Fees = append(cj.Fees, FeeRowJSON{
			CampusID:     row.CampusID,
			Grade:        row.Grade,
			AcademicYear: row.AcademicYear,
			FeeType:      string(row.FeeType),
			Amount:       row.Amount.Value.String(),
		})
	}
	return cj
}

// =============================================================================
// APPLY - Write config rows to the stores
// =============================================================================

// FeeWriter seeds fee-table rows. Implemented by both stores.
type FeeWriter interface {
	SetFee(ctx context.Context, campusID, grade, academicYear string, feeType referral.FeeType, amount benefit.Amount) error
}

// Apply writes the config's slab and fee rows to the given stores.
// Either store may be nil to skip that section.
func Apply(ctx context.Context, cfg *Config, slabs referral.SlabStore, fees FeeWriter) error {
	if slabs != nil {
		for _, row := range cfg.Slabs {
			if err := slabs.PutSlabOverride(ctx, row.Table, row.Count, row.Percent.String()); err != nil {
				return fmt.Errorf("apply slab row %s/%d: %w", row.Table, row.Count, err)
			}
		}
	}
	if fees != nil {
		for _, row := range cfg.Fees {
			if err := fees.SetFee(ctx, row.CampusID, row.Grade, row.AcademicYear, row.FeeType, row.Amount); err != nil {
				return fmt.Errorf("apply fee row %s/%s: %w", row.CampusID, row.Grade, err)
			}
		}
	}
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAcademicYear(aj AcademicYearJSON) (benefit.AcademicYearConfig, error) {
	cfg := benefit.DefaultAcademicYearConfig()
	if aj.StartMonth != 0 {
		if aj.StartMonth < 1 || aj.StartMonth > 12 {
			return cfg, fmt.Errorf("invalid academic year start_month: %d", aj.StartMonth)
		}
		cfg.StartMonth = time.Month(aj.StartMonth)
	}
	if aj.StartDay != 0 {
		if aj.StartDay < 1 || aj.StartDay > 31 {
			return cfg, fmt.Errorf("invalid academic year start_day: %d", aj.StartDay)
		}
		cfg.StartDay = aj.StartDay
	}
	return cfg, nil
}

func parseCarryover(cj CarryoverJSON) (CarryoverRates, error) {
	base, err := decimal.NewFromString(cj.BasePercent)
	if err != nil {
		return CarryoverRates{}, fmt.Errorf("invalid carryover base_percent %q: %w", cj.BasePercent, err)
	}
	bonus, err := decimal.NewFromString(cj.BonusPercent)
	if err != nil {
		return CarryoverRates{}, fmt.Errorf("invalid carryover bonus_percent %q: %w", cj.BonusPercent, err)
	}
	return CarryoverRates{BasePercent: base, BonusPercent: bonus, Set: true}, nil
}

func parseSlabRow(sj SlabRowJSON) (SlabRow, error) {
	table, err := parseTableName(sj.Table)
	if err != nil {
		return SlabRow{}, err
	}
	if sj.Count < 1 || sj.Count > benefit.MaxSlabCount {
		return SlabRow{}, fmt.Errorf("slab count %d out of range [1, %d]", sj.Count, benefit.MaxSlabCount)
	}
	pct, err := decimal.NewFromString(sj.Percent)
	if err != nil {
		return SlabRow{}, fmt.Errorf("invalid slab percent %q: %w", sj.Percent, err)
	}
	if pct.IsNegative() {
		return SlabRow{}, fmt.Errorf("slab percent %s is negative", pct)
	}
	return SlabRow{Table: table, Count: sj.Count, Percent: pct}, nil
}

func parseTableName(s string) (referral.SlabTableName, error) {
	switch referral.SlabTableName(s) {
	case referral.TableFeeDiscount, referral.TableElite, referral.TableConfirmation:
		return referral.SlabTableName(s), nil
	default:
		return "", fmt.Errorf("unknown slab table: %q", s)
	}
}

func parseFeeRow(fj FeeRowJSON) (FeeRow, error) {
	if fj.CampusID == "" || fj.Grade == "" || fj.AcademicYear == "" {
		return FeeRow{}, fmt.Errorf("fee row requires campus_id, grade and academic_year")
	}
	feeType, err := parseFeeType(fj.FeeType)
	if err != nil {
		return FeeRow{}, err
	}
	amount, err := decimal.NewFromString(fj.Amount)
	if err != nil {
		return FeeRow{}, fmt.Errorf("invalid fee amount %q: %w", fj.Amount, err)
	}
	if amount.IsNegative() {
		return FeeRow{}, fmt.Errorf("fee amount %s is negative", amount)
	}
	return FeeRow{
		CampusID:     fj.CampusID,
		Grade:        fj.Grade,
		AcademicYear: fj.AcademicYear,
		FeeType:      feeType,
		Amount:       benefit.Amount{Value: amount, Currency: benefit.DefaultCurrency},
	}, nil
}

func parseFeeType(s string) (referral.FeeType, error) {
	switch referral.FeeType(s) {
	case referral.FeeOTP, referral.FeeWOTP:
		return referral.FeeType(s), nil
	case "":
		return referral.FeeOTP, nil
	default:
		return "", fmt.Errorf("unknown fee type: %q", s)
	}
}

// =============================================================================
// PRESET CONFIGS
// =============================================================================

// DefaultProgramJSON returns the stock program configuration as JSON:
// default ladders, June 1 year boundary, 15/5 carryover.
func DefaultProgramJSON(name string) string {
	cj := ConfigJSON{
		Name:         name,
		AcademicYear: &AcademicYearJSON{StartMonth: 6, StartDay: 1},
		Carryover:    &CarryoverJSON{BasePercent: "15", BonusPercent: "5"},
	}
	data, _ := json.MarshalIndent(cj, "", "  ")
	return string(data)
}
