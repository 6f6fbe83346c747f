package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
)

// Logical column names of a ledger record export
const (
	ColumnRecordID   = "id"
	ColumnEntityID   = "entity_id"
	ColumnKind       = "kind"
	ColumnOrderTotal = "order_total"
)

// LedgerRecordColumns are the headers accepted for ledger record files
var LedgerRecordColumns = []ColumnSpec{
	{Name: ColumnRecordID, Headers: []string{"record_id", "order_id", "单号", "订单号"}, Required: true},
	{Name: ColumnEntityID, Headers: []string{"customer_id", "supplier_id", "客户编号", "供应商编号"}, Required: true},
	{Name: ColumnAmount, Headers: []string{"交易金额", "金额", "应收金额"}, Required: true},
	{Name: ColumnKind, Headers: []string{"record_type", "类型"}},
	{Name: ColumnOrderTotal, Headers: []string{"total", "订单总额"}},
	{Name: ColumnDate, Headers: []string{"order_date", "日期", "下单日期"}},
	{Name: ColumnDescription, Headers: []string{"memo", "备注", "摘要"}},
}

// LedgerRecordParser reads ledger record exports into LedgerRecord values.
// Records without a kind are orders.
type LedgerRecordParser struct {
	*BaseParser
}

// NewLedgerRecordParser creates a parser for ledger record files
func NewLedgerRecordParser(config *ParseConfig) *LedgerRecordParser {
	return &LedgerRecordParser{BaseParser: NewBaseParser(config, "ledger_record_parser")}
}

// ParseFile parses the ledger records at path
func (p *LedgerRecordParser) ParseFile(ctx context.Context, path string) ([]models.LedgerRecord, *ParseStats, error) {
	var records []models.LedgerRecord
	stats, err := p.parseFile(ctx, path, LedgerRecordColumns, p.collect(&records, make(map[string]int)))
	return records, stats, err
}

// Parse parses ledger records from r; source names the input in errors
func (p *LedgerRecordParser) Parse(ctx context.Context, r io.Reader, source string) ([]models.LedgerRecord, *ParseStats, error) {
	var records []models.LedgerRecord
	stats, err := p.parseReader(ctx, r, source, LedgerRecordColumns, p.collect(&records, make(map[string]int)))
	return records, stats, err
}

func (p *LedgerRecordParser) collect(records *[]models.LedgerRecord, seen map[string]int) func(*Row) error {
	return func(row *Row) error {
		record, err := parseLedgerRow(row)
		if err != nil {
			return err
		}
		if first, dup := seen[record.ID]; dup {
			return errors.ParseError(errors.CodeDuplicateID, row.Source, row.Line, ColumnRecordID, record.ID,
				fmt.Errorf("record id already used on line %d", first))
		}
		seen[record.ID] = row.Line
		*records = append(*records, *record)
		return nil
	}
}

func parseLedgerRow(row *Row) (*models.LedgerRecord, error) {
	record := &models.LedgerRecord{
		ID:          row.Get(ColumnRecordID),
		EntityID:    row.Get(ColumnEntityID),
		Kind:        models.RecordKindOrder,
		Description: row.Get(ColumnDescription),
	}
	if record.EntityID == "" {
		return nil, row.InvalidField(ColumnEntityID, fmt.Errorf("entity id cannot be empty"))
	}

	amount, err := models.ParseDecimalFromString(row.Get(ColumnAmount))
	if err != nil {
		return nil, row.InvalidField(ColumnAmount, err)
	}
	record.Amount = amount

	if raw := row.Get(ColumnKind); raw != "" {
		switch kind := models.RecordKind(strings.ToLower(raw)); kind {
		case models.RecordKindOrder, models.RecordKindTransaction:
			record.Kind = kind
		default:
			return nil, row.InvalidField(ColumnKind, fmt.Errorf("unknown record kind %q", raw))
		}
	}

	if raw := row.Get(ColumnOrderTotal); raw != "" {
		total, err := models.ParseDecimalFromString(raw)
		if err != nil {
			return nil, row.InvalidField(ColumnOrderTotal, err)
		}
		record.OrderTotal = decimal.NewNullDecimal(total)
	}

	if raw := row.Get(ColumnDate); raw != "" {
		date, err := models.ParseTimeWithFormats(raw)
		if err != nil {
			return nil, row.InvalidField(ColumnDate, err)
		}
		record.Date = date
	}

	if err := record.Validate(); err != nil {
		return nil, row.InvalidField(ColumnRecordID, err)
	}
	return record, nil
}
