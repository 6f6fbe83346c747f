// Package balance derives per-counterparty balances from the active matches
// of the ledger and the caller's ledger records. Nothing here is persisted.
package balance

import (
	"time"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// MatchSource supplies the matches to allocate from. *ledger.Ledger
// satisfies it.
type MatchSource interface {
	ActiveMatches() []models.FlexibleMatch
}

// EntityLedger is the caller-supplied record set of one entity
type EntityLedger struct {
	EntityID   string                `json:"entity_id"`
	EntityName string                `json:"entity_name"`
	Records    []models.LedgerRecord `json:"records"`
}

// Calculator computes CounterpartyBalance views
type Calculator struct {
	source MatchSource
	clock  func() time.Time
	logger logger.Logger
}

// NewCalculator creates a calculator reading matches from source
func NewCalculator(source MatchSource) *Calculator {
	return &Calculator{
		source: source,
		clock:  time.Now,
		logger: logger.WithComponent("balance_calculator"),
	}
}

// SetClock replaces the clock used for ComputedAt
func (c *Calculator) SetClock(clock func() time.Time) {
	c.clock = clock
}

// GetBalance computes how much of the entity's recorded amount has been
// matched against bank money.
//
// Each matched record of the entity receives record.Amount / match ledger
// total of the match's bank total. The denominator is the whole ledger side
// of the match, other entities included, so the shares of one match add up
// to its bank total. A match with a zero ledger total allocates nothing.
func (c *Calculator) GetBalance(entityID, entityName string, records []models.LedgerRecord) *models.CounterpartyBalance {
	return c.compute(c.source.ActiveMatches(), EntityLedger{
		EntityID:   entityID,
		EntityName: entityName,
		Records:    records,
	})
}

// GetBalances computes balances for several entities against one snapshot
// of the active matches
func (c *Calculator) GetBalances(entities []EntityLedger) []models.CounterpartyBalance {
	matches := c.source.ActiveMatches()

	out := make([]models.CounterpartyBalance, 0, len(entities))
	for _, e := range entities {
		out = append(out, *c.compute(matches, e))
	}

	c.logger.WithFields(logger.Fields{
		"entities": len(entities),
		"matches":  len(matches),
	}).Debug("Balances computed")
	return out
}

func (c *Calculator) compute(matches []models.FlexibleMatch, entity EntityLedger) *models.CounterpartyBalance {
	received := decimal.Zero
	matchCount := 0

	for _, m := range matches {
		involved := false
		for _, r := range m.LedgerRecords {
			if r.EntityID != entity.EntityID {
				continue
			}
			involved = true
			received = received.Add(proRataShare(r.Amount, m.TotalLedgerAmount, m.TotalBankAmount))
		}
		if involved {
			matchCount++
		}
	}

	total := models.SumLedgerRecords(entity.Records)
	return &models.CounterpartyBalance{
		EntityID:            entity.EntityID,
		EntityName:          entity.EntityName,
		TotalLedgerAmount:   total,
		TotalReceivedAmount: received,
		UnreconciledBalance: total.Sub(received),
		MatchCount:          matchCount,
		ComputedAt:          c.clock(),
	}
}

// proRataShare returns amount/ledgerTotal of bankTotal, or zero when the
// ledger total is zero
func proRataShare(amount, ledgerTotal, bankTotal decimal.Decimal) decimal.Decimal {
	if ledgerTotal.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(bankTotal).Div(ledgerTotal)
}
