// Package matcher proposes groupings of bank entries and ledger records that
// settle each other. It never records anything: proposals are handed back to
// the caller, who confirms them and creates the matches on the ledger.
//
// Candidates are found in three passes:
//  1. one bank entry whose amount equals one open record (one-to-one)
//  2. one bank entry covering several records of its entity (one-to-many)
//  3. several bank entries of one entity paying one record (many-to-one)
//
// Each candidate is scored on amount and date closeness and the best
// non-overlapping candidates win.
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	config.DateToleranceDays = 45
//
//	engine, err := matcher.NewEngine(config)
//	set := engine.Propose(resolvedEntries, openRecords)
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quality classifies how much review a proposal needs
type Quality int

const (
	// QualityExact is an exact amount on close dates
	QualityExact Quality = iota

	// QualityClose is within tolerance and scores well
	QualityClose

	// QualityPossible meets the minimum score only
	QualityPossible

	// QualityNone is below the minimum score
	QualityNone
)

// String returns the string representation of Quality
func (q Quality) String() string {
	switch q {
	case QualityExact:
		return "exact"
	case QualityClose:
		return "close"
	case QualityPossible:
		return "possible"
	case QualityNone:
		return "none"
	default:
		return "unknown"
	}
}

// MarshalText encodes the quality by name
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// Config holds the tolerances and weights of the proposal engine.
//
// Use the provided factory functions for common scenarios:
//   - DefaultConfig(): payments within a month of the order, exact amounts
//   - StrictConfig(): same-week payments, single-member proposals only
//   - RelaxedConfig(): late payments and small bank fees tolerated
type Config struct {
	// DateToleranceDays is the largest gap between a bank entry and a record
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days"`

	// AmountPrecision is the number of decimal places tolerances round to
	AmountPrecision int `json:"amount_precision" mapstructure:"amount_precision"`

	// AmountTolerancePercent allows totals to differ by this share (0.0 to 100.0)
	AmountTolerancePercent float64 `json:"amount_tolerance_percent" mapstructure:"amount_tolerance_percent"`

	// MaxCandidates limits the proposals kept per bank entry or record
	MaxCandidates int `json:"max_candidates" mapstructure:"max_candidates"`

	// MaxGroupSize limits the members on the "many" side of a proposal.
	// 1 disables one-to-many and many-to-one proposals.
	MaxGroupSize int `json:"max_group_size" mapstructure:"max_group_size"`

	// MinScore is the lowest score a proposal may have
	MinScore float64 `json:"min_score" mapstructure:"min_score"`

	// CreditsOnly skips debit bank entries
	CreditsOnly bool `json:"credits_only" mapstructure:"credits_only"`

	// IgnoreWeekends counts business days only when checking date tolerance
	IgnoreWeekends bool `json:"ignore_weekends" mapstructure:"ignore_weekends"`

	Weights Weights `json:"weights" mapstructure:"weights"`
}

// Weights defines the relative importance of amount and date closeness
type Weights struct {
	Amount float64 `json:"amount" mapstructure:"amount"`
	Date   float64 `json:"date" mapstructure:"date"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DateToleranceDays:      30,
		AmountPrecision:        2,
		AmountTolerancePercent: 0.0,
		MaxCandidates:          5,
		MaxGroupSize:           4,
		MinScore:               0.8,
		CreditsOnly:            true,
		IgnoreWeekends:         false,
		Weights: Weights{
			Amount: 0.7,
			Date:   0.3,
		},
	}
}

// StrictConfig returns a configuration for strict matching
func StrictConfig() *Config {
	return &Config{
		DateToleranceDays:      7,
		AmountPrecision:        2,
		AmountTolerancePercent: 0.0,
		MaxCandidates:          3,
		MaxGroupSize:           1,
		MinScore:               0.95,
		CreditsOnly:            true,
		IgnoreWeekends:         false,
		Weights: Weights{
			Amount: 0.8,
			Date:   0.2,
		},
	}
}

// RelaxedConfig returns a configuration for relaxed matching
func RelaxedConfig() *Config {
	return &Config{
		DateToleranceDays:      90,
		AmountPrecision:        2,
		AmountTolerancePercent: 1.0,
		MaxCandidates:          10,
		MaxGroupSize:           6,
		MinScore:               0.6,
		CreditsOnly:            false,
		IgnoreWeekends:         true,
		Weights: Weights{
			Amount: 0.6,
			Date:   0.4,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", c.DateToleranceDays)
	}

	if c.AmountPrecision < 0 || c.AmountPrecision > 10 {
		return fmt.Errorf("amount precision must be between 0 and 10: %d", c.AmountPrecision)
	}

	if c.AmountTolerancePercent < 0.0 || c.AmountTolerancePercent > 100.0 {
		return fmt.Errorf("amount tolerance percent must be between 0.0 and 100.0: %f", c.AmountTolerancePercent)
	}

	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive: %d", c.MaxCandidates)
	}

	if c.MaxGroupSize < 1 || c.MaxGroupSize > 10 {
		return fmt.Errorf("max group size must be between 1 and 10: %d", c.MaxGroupSize)
	}

	if c.MinScore < 0.0 || c.MinScore > 1.0 {
		return fmt.Errorf("minimum score must be between 0.0 and 1.0: %f", c.MinScore)
	}

	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Validate checks if the weights are valid
func (w *Weights) Validate() error {
	if w.Amount < 0.0 || w.Amount > 1.0 {
		return fmt.Errorf("amount weight must be between 0.0 and 1.0: %f", w.Amount)
	}

	if w.Date < 0.0 || w.Date > 1.0 {
		return fmt.Errorf("date weight must be between 0.0 and 1.0: %f", w.Date)
	}

	// Weights should sum to approximately 1.0
	total := w.Amount + w.Date
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// AmountTolerance calculates the allowed difference for a given amount
func (c *Config) AmountTolerance(amount decimal.Decimal) decimal.Decimal {
	if c.AmountTolerancePercent == 0.0 {
		return decimal.Zero
	}

	percentage := decimal.NewFromFloat(c.AmountTolerancePercent / 100.0)
	return amount.Abs().Mul(percentage).Round(int32(c.AmountPrecision))
}

// WithinDateTolerance reports whether two dates are within the configured
// tolerance. An unknown (zero) date is never out of tolerance.
func (c *Config) WithinDateTolerance(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}

	a, b = dateOnly(a), dateOnly(b)
	if c.IgnoreWeekends {
		return businessDaysBetween(a, b) <= c.DateToleranceDays
	}
	return daysBetween(a, b) <= c.DateToleranceDays
}

// String returns a human-readable description of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("matcher.Config{DateTolerance: %d days, AmountTolerance: %.2f%%, MaxGroupSize: %d, MinScore: %.2f}",
		c.DateToleranceDays, c.AmountTolerancePercent, c.MaxGroupSize, c.MinScore)
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// businessDaysBetween counts the weekdays stepped over going from the earlier
// date to the later one
func businessDaysBetween(a, b time.Time) int {
	if a.After(b) {
		a, b = b, a
	}
	days := 0
	for current := a; current.Before(b); current = current.AddDate(0, 0, 1) {
		if current.Weekday() != time.Saturday && current.Weekday() != time.Sunday {
			days++
		}
	}
	return days
}
