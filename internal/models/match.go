package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchKind records the cardinality a match was opened with
type MatchKind string

const (
	MatchOneToOne  MatchKind = "one_to_one"
	MatchOneToMany MatchKind = "one_to_many"
	MatchManyToOne MatchKind = "many_to_one"
)

// IsValid checks if the kind is one of the known cardinalities
func (k MatchKind) IsValid() bool {
	switch k {
	case MatchOneToOne, MatchOneToMany, MatchManyToOne:
		return true
	default:
		return false
	}
}

// MatchStatus classifies the sign of a match balance
type MatchStatus string

const (
	StatusReconciled MatchStatus = "reconciled"
	StatusOverpaid   MatchStatus = "overpaid"
	StatusUnderpaid  MatchStatus = "underpaid"
)

// FlexibleMatch groups bank entries and ledger records that settle against
// each other. Members are full snapshots, so old matches stay readable after
// the source rows change or disappear.
//
// Balance is TotalBankAmount - TotalLedgerAmount and is only ever produced by
// Recalculate.
type FlexibleMatch struct {
	ID                string          `json:"id"`
	Kind              MatchKind       `json:"kind"`
	BankEntries       []BankEntry     `json:"bank_entries"`
	LedgerRecords     []LedgerRecord  `json:"ledger_records"`
	TotalBankAmount   decimal.Decimal `json:"total_bank_amount"`
	TotalLedgerAmount decimal.Decimal `json:"total_ledger_amount"`
	Balance           decimal.Decimal `json:"balance"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CreatedBy         string          `json:"created_by"`
	Notes             string          `json:"notes,omitempty"`
}

// Recalculate re-derives both totals and the balance from the full member lists
func (m *FlexibleMatch) Recalculate() {
	m.TotalBankAmount = SumBankEntries(m.BankEntries)
	m.TotalLedgerAmount = SumLedgerRecords(m.LedgerRecords)
	m.Balance = m.TotalBankAmount.Sub(m.TotalLedgerAmount)
}

// IsReconciled reports a zero balance
func (m *FlexibleMatch) IsReconciled() bool {
	return m.Balance.IsZero()
}

// Status classifies the balance: positive means the bank side paid more
// than was recorded.
func (m *FlexibleMatch) Status() MatchStatus {
	switch m.Balance.Sign() {
	case 0:
		return StatusReconciled
	case 1:
		return StatusOverpaid
	default:
		return StatusUnderpaid
	}
}

// BankEntryIDs returns the member bank entry ids in order
func (m *FlexibleMatch) BankEntryIDs() []string {
	ids := make([]string, len(m.BankEntries))
	for i, e := range m.BankEntries {
		ids[i] = e.ID
	}
	return ids
}

// LedgerRecordIDs returns the member ledger record ids in order
func (m *FlexibleMatch) LedgerRecordIDs() []string {
	ids := make([]string, len(m.LedgerRecords))
	for i, r := range m.LedgerRecords {
		ids[i] = r.ID
	}
	return ids
}

// Clone returns a deep copy that shares no slices with m
func (m *FlexibleMatch) Clone() *FlexibleMatch {
	if m == nil {
		return nil
	}
	c := *m
	c.BankEntries = append([]BankEntry(nil), m.BankEntries...)
	c.LedgerRecords = append([]LedgerRecord(nil), m.LedgerRecords...)
	return &c
}

// Equals compares two matches by value, members included
func (m *FlexibleMatch) Equals(other *FlexibleMatch) bool {
	if other == nil {
		return false
	}
	if m.ID != other.ID || m.Kind != other.Kind || m.Notes != other.Notes || m.CreatedBy != other.CreatedBy {
		return false
	}
	if !m.CreatedAt.Equal(other.CreatedAt) || !m.UpdatedAt.Equal(other.UpdatedAt) {
		return false
	}
	if !m.TotalBankAmount.Equal(other.TotalBankAmount) ||
		!m.TotalLedgerAmount.Equal(other.TotalLedgerAmount) ||
		!m.Balance.Equal(other.Balance) {
		return false
	}
	if len(m.BankEntries) != len(other.BankEntries) || len(m.LedgerRecords) != len(other.LedgerRecords) {
		return false
	}
	for i := range m.BankEntries {
		if !m.BankEntries[i].Equals(&other.BankEntries[i]) {
			return false
		}
	}
	for i := range m.LedgerRecords {
		if !m.LedgerRecords[i].Equals(&other.LedgerRecords[i]) {
			return false
		}
	}
	return true
}

// String returns a string representation of the FlexibleMatch
func (m *FlexibleMatch) String() string {
	return fmt.Sprintf("FlexibleMatch{ID: %s, Kind: %s, Bank: %s, Ledger: %s, Balance: %s}",
		m.ID, m.Kind, m.TotalBankAmount.String(), m.TotalLedgerAmount.String(), m.Balance.String())
}

// HistoryAction tags an audit trail entry
type HistoryAction string

const (
	ActionCreate HistoryAction = "create"
	ActionExtend HistoryAction = "extend"
	ActionUndo   HistoryAction = "undo"
)

// HistorySnapshot captures the parameters of one ledger action. For extend
// entries the id lists hold only what the call added.
type HistorySnapshot struct {
	Kind              MatchKind       `json:"kind,omitempty"`
	BankEntryIDs      []string        `json:"bank_entry_ids"`
	LedgerRecordIDs   []string        `json:"ledger_record_ids"`
	TotalBankAmount   decimal.Decimal `json:"total_bank_amount"`
	TotalLedgerAmount decimal.Decimal `json:"total_ledger_amount"`
	Balance           decimal.Decimal `json:"balance"`
	Notes             string          `json:"notes,omitempty"`
}

// HistoryEntry is one append-only audit record for a match
type HistoryEntry struct {
	ID        string          `json:"id"`
	MatchID   string          `json:"match_id"`
	Action    HistoryAction   `json:"action"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor"`
	Snapshot  HistorySnapshot `json:"snapshot"`
}

// Equals compares two history entries by value
func (h *HistoryEntry) Equals(other *HistoryEntry) bool {
	if other == nil {
		return false
	}
	if h.ID != other.ID || h.MatchID != other.MatchID || h.Action != other.Action ||
		h.Actor != other.Actor || !h.Timestamp.Equal(other.Timestamp) {
		return false
	}
	a, b := h.Snapshot, other.Snapshot
	return a.Kind == b.Kind && a.Notes == b.Notes &&
		equalStrings(a.BankEntryIDs, b.BankEntryIDs) &&
		equalStrings(a.LedgerRecordIDs, b.LedgerRecordIDs) &&
		a.TotalBankAmount.Equal(b.TotalBankAmount) &&
		a.TotalLedgerAmount.Equal(b.TotalLedgerAmount) &&
		a.Balance.Equal(b.Balance)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
