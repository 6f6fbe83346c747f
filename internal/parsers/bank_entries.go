package parsers

import (
	"context"
	"fmt"
	"io"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"
)

// Logical column names of a bank statement export
const (
	ColumnEntryID      = "id"
	ColumnDate         = "date"
	ColumnDescription  = "description"
	ColumnAmount       = "amount"
	ColumnBalance      = "balance"
	ColumnDirection    = "direction"
	ColumnCounterparty = "counterparty"
)

// BankEntryColumns are the headers accepted for bank statement files
var BankEntryColumns = []ColumnSpec{
	{Name: ColumnEntryID, Headers: []string{"entry_id", "transaction_id", "流水号", "交易流水号"}, Required: true},
	{Name: ColumnDate, Headers: []string{"transaction_date", "value_date", "交易日期", "日期"}, Required: true},
	{Name: ColumnAmount, Headers: []string{"交易金额", "金额"}, Required: true},
	{Name: ColumnDescription, Headers: []string{"memo", "remark", "摘要", "用途"}},
	{Name: ColumnBalance, Headers: []string{"running_balance", "余额", "账户余额"}},
	{Name: ColumnDirection, Headers: []string{"type", "dc", "借贷标志", "收支"}},
	{Name: ColumnCounterparty, Headers: []string{"counterparty_name", "payer", "对方户名", "对方名称"}},
}

// BankEntryParser reads bank statement exports into BankEntry values.
// A negative amount without a direction column is read as a debit of the
// absolute amount.
type BankEntryParser struct {
	*BaseParser
}

// NewBankEntryParser creates a parser for bank statement files
func NewBankEntryParser(config *ParseConfig) *BankEntryParser {
	return &BankEntryParser{BaseParser: NewBaseParser(config, "bank_entry_parser")}
}

// ParseFile parses the statement at path
func (p *BankEntryParser) ParseFile(ctx context.Context, path string) ([]models.BankEntry, *ParseStats, error) {
	var entries []models.BankEntry
	seen := make(map[string]int)
	stats, err := p.parseFile(ctx, path, BankEntryColumns, p.collect(&entries, seen))
	return entries, stats, err
}

// Parse parses a statement from r; source names the input in errors
func (p *BankEntryParser) Parse(ctx context.Context, r io.Reader, source string) ([]models.BankEntry, *ParseStats, error) {
	var entries []models.BankEntry
	seen := make(map[string]int)
	stats, err := p.parseReader(ctx, r, source, BankEntryColumns, p.collect(&entries, seen))
	return entries, stats, err
}

func (p *BankEntryParser) collect(entries *[]models.BankEntry, seen map[string]int) func(*Row) error {
	return func(row *Row) error {
		entry, err := p.parseRow(row)
		if err != nil {
			return err
		}
		if first, dup := seen[entry.ID]; dup {
			return errors.ParseError(errors.CodeDuplicateID, row.Source, row.Line, ColumnEntryID, entry.ID,
				fmt.Errorf("entry id already used on line %d", first))
		}
		seen[entry.ID] = row.Line
		*entries = append(*entries, *entry)
		return nil
	}
}

func (p *BankEntryParser) parseRow(row *Row) (*models.BankEntry, error) {
	entry := &models.BankEntry{
		ID:               row.Get(ColumnEntryID),
		Description:      row.Get(ColumnDescription),
		CounterpartyName: row.Get(ColumnCounterparty),
	}

	date, err := models.ParseTimeWithFormats(row.Get(ColumnDate))
	if err != nil {
		return nil, row.InvalidField(ColumnDate, err)
	}
	entry.Date = date

	amount, err := models.ParseDecimalFromString(row.Get(ColumnAmount))
	if err != nil {
		return nil, row.InvalidField(ColumnAmount, err)
	}

	if raw := row.Get(ColumnDirection); raw != "" {
		direction, err := models.ParseDirection(raw)
		if err != nil {
			return nil, row.InvalidField(ColumnDirection, err)
		}
		entry.Direction = direction
	} else if amount.IsNegative() {
		entry.Direction = models.DirectionDebit
	} else {
		entry.Direction = models.DirectionCredit
	}
	entry.Amount = amount.Abs()

	if raw := row.Get(ColumnBalance); raw != "" {
		balance, err := models.ParseDecimalFromString(raw)
		if err != nil {
			return nil, row.InvalidField(ColumnBalance, err)
		}
		entry.RunningBalance = balance
	}

	if err := entry.Validate(); err != nil {
		return nil, row.InvalidField(ColumnEntryID, err)
	}
	return entry, nil
}
