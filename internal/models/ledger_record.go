package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind distinguishes orders from other recorded transactions
type RecordKind string

const (
	RecordKindOrder       RecordKind = "order"
	RecordKindTransaction RecordKind = "transaction"
)

// LedgerRecord is an internally recorded amount owed by or to an entity.
// OrderTotal carries the full order value for orders when it differs from
// Amount because of partial payments applied elsewhere.
type LedgerRecord struct {
	ID          string              `json:"id"`
	EntityID    string              `json:"entity_id"`
	Kind        RecordKind          `json:"kind,omitempty"`
	Amount      decimal.Decimal     `json:"amount"`
	OrderTotal  decimal.NullDecimal `json:"order_total"`
	Date        time.Time           `json:"date"`
	Description string              `json:"description,omitempty"`
}

// Validate checks the fields the ledger relies on
func (r *LedgerRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("ledger record id cannot be empty")
	}
	return nil
}

// Equals compares two records by value
func (r *LedgerRecord) Equals(other *LedgerRecord) bool {
	if other == nil {
		return false
	}
	if r.OrderTotal.Valid != other.OrderTotal.Valid ||
		(r.OrderTotal.Valid && !r.OrderTotal.Decimal.Equal(other.OrderTotal.Decimal)) {
		return false
	}
	return r.ID == other.ID &&
		r.EntityID == other.EntityID &&
		r.Kind == other.Kind &&
		r.Amount.Equal(other.Amount) &&
		r.Date.Equal(other.Date) &&
		r.Description == other.Description
}

// String returns a string representation of the LedgerRecord
func (r *LedgerRecord) String() string {
	return fmt.Sprintf("LedgerRecord{ID: %s, Entity: %s, Amount: %s}", r.ID, r.EntityID, r.Amount.String())
}

// SumLedgerRecords adds up the amounts of the given records
func SumLedgerRecords(records []LedgerRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}
