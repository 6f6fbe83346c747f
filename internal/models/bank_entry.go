// Package models defines the value objects exchanged between the alias index,
// the match ledger, the balance calculator and their collaborators.
//
// Bank entries and ledger records are supplied by importers and order managers
// and are treated as immutable snapshots. Matches and history entries are owned
// by the ledger; aliases are owned by the alias index.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether money arrived on or left the account
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// ParseDirection accepts the spellings commonly found in statement exports.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREDIT", "C", "CR", "IN", "收入", "贷":
		return DirectionCredit, nil
	case "DEBIT", "D", "DR", "OUT", "支出", "借":
		return DirectionDebit, nil
	default:
		return "", fmt.Errorf("invalid direction '%s': must be CREDIT or DEBIT", s)
	}
}

// BankEntry is one line of an imported bank statement
type BankEntry struct {
	ID               string          `json:"id"`
	Date             time.Time       `json:"date"`
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	RunningBalance   decimal.Decimal `json:"running_balance"`
	Direction        Direction       `json:"direction"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
}

// Validate checks the fields the ledger relies on
func (b *BankEntry) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("bank entry id cannot be empty")
	}
	if b.Direction != "" && !b.Direction.IsValid() {
		return fmt.Errorf("invalid bank entry direction: %s", b.Direction)
	}
	return nil
}

// IsCredit returns true if the entry is incoming money
func (b *BankEntry) IsCredit() bool {
	return b.Direction == DirectionCredit
}

// Equals compares two entries by value
func (b *BankEntry) Equals(other *BankEntry) bool {
	if other == nil {
		return false
	}
	return b.ID == other.ID &&
		b.Date.Equal(other.Date) &&
		b.Description == other.Description &&
		b.Amount.Equal(other.Amount) &&
		b.RunningBalance.Equal(other.RunningBalance) &&
		b.Direction == other.Direction &&
		b.CounterpartyName == other.CounterpartyName
}

// String returns a string representation of the BankEntry
func (b *BankEntry) String() string {
	return fmt.Sprintf("BankEntry{ID: %s, Amount: %s, Date: %s, Counterparty: %s}",
		b.ID, b.Amount.String(), b.Date.Format("2006-01-02"), b.CounterpartyName)
}

// SumBankEntries adds up the amounts of the given entries
func SumBankEntries(entries []BankEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
