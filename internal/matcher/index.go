package matcher

import (
	"sort"

	"counterparty-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

const dateKeyLayout = "2006-01-02"

// RecordIndex provides lookups of open ledger records by amount, date and
// entity. Lookups return records in the order they were added.
type RecordIndex struct {
	// exactAmount maps normalized amounts to records
	exactAmount map[string][]*indexedRecord

	// byDate maps dates (YYYY-MM-DD) to records, counted in Stats
	byDate map[string][]*indexedRecord

	// byEntity maps entity ids to records
	byEntity map[string][]*indexedRecord

	// amounts holds the distinct amounts sorted ascending for range lookups
	amounts []*amountEntry

	all []*indexedRecord
}

type indexedRecord struct {
	record models.LedgerRecord
	seq    int
}

type amountEntry struct {
	amount  decimal.Decimal
	records []*indexedRecord
}

// IndexStats describes the content of an index
type IndexStats struct {
	Records       int
	UniqueAmounts int
	UniqueDates   int
	Entities      int
}

// NewRecordIndex indexes the given records
func NewRecordIndex(records []models.LedgerRecord) *RecordIndex {
	ix := &RecordIndex{
		exactAmount: make(map[string][]*indexedRecord),
		byDate:      make(map[string][]*indexedRecord),
		byEntity:    make(map[string][]*indexedRecord),
	}
	for _, r := range records {
		ix.insert(r)
	}
	ix.buildAmountRange()
	return ix
}

func (ix *RecordIndex) insert(record models.LedgerRecord) {
	ir := &indexedRecord{record: record, seq: len(ix.all)}
	ix.all = append(ix.all, ir)

	amountKey := record.Amount.String()
	ix.exactAmount[amountKey] = append(ix.exactAmount[amountKey], ir)

	if !record.Date.IsZero() {
		dateKey := record.Date.Format(dateKeyLayout)
		ix.byDate[dateKey] = append(ix.byDate[dateKey], ir)
	}

	ix.byEntity[record.EntityID] = append(ix.byEntity[record.EntityID], ir)
}

// buildAmountRange rebuilds the sorted amount slice from the exact index
func (ix *RecordIndex) buildAmountRange() {
	ix.amounts = make([]*amountEntry, 0, len(ix.exactAmount))
	for _, records := range ix.exactAmount {
		ix.amounts = append(ix.amounts, &amountEntry{amount: records[0].record.Amount, records: records})
	}
	sort.Slice(ix.amounts, func(i, j int) bool {
		return ix.amounts[i].amount.LessThan(ix.amounts[j].amount)
	})
}

func (ix *RecordIndex) amountRange(min, max decimal.Decimal) []*indexedRecord {
	start := sort.Search(len(ix.amounts), func(i int) bool {
		return ix.amounts[i].amount.GreaterThanOrEqual(min)
	})

	var out []*indexedRecord
	for i := start; i < len(ix.amounts); i++ {
		if ix.amounts[i].amount.GreaterThan(max) {
			break
		}
		out = append(out, ix.amounts[i].records...)
	}
	sortBySeq(out)
	return out
}

// ByEntity returns the records of one entity
func (ix *RecordIndex) ByEntity(entityID string) []models.LedgerRecord {
	return values(ix.byEntity[entityID])
}

// Candidates returns the records of entityID a bank entry of this amount and
// date could settle on its own, at most config.MaxCandidates of them
func (ix *RecordIndex) Candidates(entry models.BankEntry, entityID string, config *Config) []models.LedgerRecord {
	tolerance := config.AmountTolerance(entry.Amount)
	inRange := ix.amountRange(entry.Amount.Sub(tolerance), entry.Amount.Add(tolerance))

	var out []models.LedgerRecord
	for _, ir := range inRange {
		if ir.record.EntityID != entityID {
			continue
		}
		if !config.WithinDateTolerance(entry.Date, ir.record.Date) {
			continue
		}
		out = append(out, ir.record)
		if len(out) == config.MaxCandidates {
			break
		}
	}
	return out
}

// Stats returns statistics about the index
func (ix *RecordIndex) Stats() IndexStats {
	return IndexStats{
		Records:       len(ix.all),
		UniqueAmounts: len(ix.amounts),
		UniqueDates:   len(ix.byDate),
		Entities:      len(ix.byEntity),
	}
}

func sortBySeq(records []*indexedRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].seq < records[j].seq
	})
}

func values(records []*indexedRecord) []models.LedgerRecord {
	out := make([]models.LedgerRecord, 0, len(records))
	for _, ir := range records {
		out = append(out, ir.record)
	}
	return out
}
