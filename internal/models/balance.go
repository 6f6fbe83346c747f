package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CounterpartyBalance is a derived view of how much of an entity's recorded
// amount has been matched against bank money. It is never persisted.
type CounterpartyBalance struct {
	EntityID            string          `json:"entity_id"`
	EntityName          string          `json:"entity_name"`
	TotalLedgerAmount   decimal.Decimal `json:"total_ledger_amount"`
	TotalReceivedAmount decimal.Decimal `json:"total_received_amount"`
	UnreconciledBalance decimal.Decimal `json:"unreconciled_balance"`
	MatchCount          int             `json:"match_count"`
	ComputedAt          time.Time       `json:"computed_at"`
}

// IsSettled reports whether nothing remains open for the entity
func (b *CounterpartyBalance) IsSettled() bool {
	return b.UnreconciledBalance.IsZero()
}
