package parsers

import (
	"context"
	"io"

	"counterparty-reconciliation/internal/aliases"
)

// Logical column names of an alias batch file
const (
	ColumnEntityName = "entity_name"
	ColumnAlias      = "alias"
)

// AliasBatchColumns are the headers accepted for alias batch files. They
// include the headers written by the alias export.
var AliasBatchColumns = []ColumnSpec{
	{Name: ColumnEntityID, Headers: []string{"entity id", "customer_id", "客户编号", "实体编号"}, Required: true},
	{Name: ColumnEntityName, Headers: []string{"entity name", "name", "customer_name", "客户名称", "实体名称"}, Required: true},
	{Name: ColumnAlias, Headers: []string{"别名", "对方户名"}, Required: true},
}

// AliasBatchParser reads alias batch files. Row values are passed through
// untouched so the index reports invalid items in its batch result.
type AliasBatchParser struct {
	*BaseParser
}

// NewAliasBatchParser creates a parser for alias batch files
func NewAliasBatchParser(config *ParseConfig) *AliasBatchParser {
	return &AliasBatchParser{BaseParser: NewBaseParser(config, "alias_batch_parser")}
}

// ParseFile parses the alias batch at path
func (p *AliasBatchParser) ParseFile(ctx context.Context, path string) ([]aliases.BatchItem, *ParseStats, error) {
	var items []aliases.BatchItem
	stats, err := p.parseFile(ctx, path, AliasBatchColumns, collectAliases(&items))
	return items, stats, err
}

// Parse parses an alias batch from r; source names the input in errors
func (p *AliasBatchParser) Parse(ctx context.Context, r io.Reader, source string) ([]aliases.BatchItem, *ParseStats, error) {
	var items []aliases.BatchItem
	stats, err := p.parseReader(ctx, r, source, AliasBatchColumns, collectAliases(&items))
	return items, stats, err
}

func collectAliases(items *[]aliases.BatchItem) func(*Row) error {
	return func(row *Row) error {
		*items = append(*items, aliases.BatchItem{
			EntityID:   row.Get(ColumnEntityID),
			EntityName: row.Get(ColumnEntityName),
			Alias:      row.Get(ColumnAlias),
		})
		return nil
	}
}
