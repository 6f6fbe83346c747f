// Package parsers loads the CSV files the command line works with: bank
// statement exports, ledger record lists from the order system and alias
// batch files.
//
// Headers are matched by name, case-insensitively, against a list of
// accepted spellings per column, so English and Chinese exports both work.
// A UTF-8 byte order mark on the header row is ignored.
//
// Rows that fail to parse are collected in ParseStats and skipped unless
// StrictMode is set, in which case the first bad row aborts the load.
//
// Example usage:
//
//	parser := parsers.NewBankEntryParser(nil)
//	entries, stats, err := parser.ParseFile(ctx, "statement.csv")
//	if stats.HasErrors() {
//		log.Warn(stats.String())
//	}
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"
)

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
	StrictMode       bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
	}
}

// Validate checks if the parse configuration is usable
func (c *ParseConfig) Validate() error {
	if c.Delimiter == 0 || c.Delimiter == '\r' || c.Delimiter == '\n' || c.Delimiter == utf8.RuneError {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	if c.Comment != 0 && c.Comment == c.Delimiter {
		return fmt.Errorf("comment character must differ from delimiter")
	}
	if c.MaxFieldSize < 0 {
		return fmt.Errorf("max field size cannot be negative: %d", c.MaxFieldSize)
	}
	return nil
}

// ColumnSpec names a logical column and the header spellings accepted for it
type ColumnSpec struct {
	Name     string
	Headers  []string
	Required bool
}

// Row is one data row with access by logical column name
type Row struct {
	Line    int
	Source  string
	fields  []string
	columns map[string]int
}

// Get returns the trimmed value of a logical column, or "" when the column
// is absent from the file or the row is short
func (r *Row) Get(column string) string {
	i, ok := r.columns[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// Has reports whether the file carries the logical column
func (r *Row) Has(column string) bool {
	_, ok := r.columns[column]
	return ok
}

// InvalidField builds the error for a bad value in this row
func (r *Row) InvalidField(column string, err error) *errors.ReconcilerError {
	return errors.ParseError(errors.CodeInvalidData, r.Source, r.Line, column, r.Get(column), err)
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.WithComponent(component)
	log.WithFields(logger.Fields{
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
		"strict":            config.StrictMode,
	}).Debug("Created parser")

	return &BaseParser{config: config, logger: log}
}

// parseFile opens path, validates its encoding and hands every row to fn
func (bp *BaseParser) parseFile(ctx context.Context, path string, specs []ColumnSpec, fn func(*Row) error) (*ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open CSV file")
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeInvalidFormat, path, err)
	}
	defer file.Close()

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, path); err != nil {
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, errors.FileError(errors.CodeInvalidFormat, path, err)
		}
	}

	return bp.parseReader(ctx, file, path, specs, fn)
}

// parseReader reads CSV from r; source names the input in errors
func (bp *BaseParser) parseReader(ctx context.Context, r io.Reader, source string, specs []ColumnSpec, fn func(*Row) error) (*ParseStats, error) {
	if err := bp.config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", bp.config.Delimiter, err)
	}

	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1, "headers", "", fmt.Errorf("file is empty")).
			WithSuggestion("ensure the file contains a header row")
	}
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1, "headers", "", err)
	}

	columns, missing := resolveColumns(headers, specs)
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_columns": missing,
			"headers":         headers,
		}).Error("Required columns are missing")
		return nil, errors.ParseError(errors.CodeMissingColumn, source, 1, strings.Join(missing, ", "), "", nil).
			WithSuggestion(fmt.Sprintf("accepted headers: %s", describeSpecs(specs, missing)))
	}

	stats := NewParseStats()
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return stats, errors.InternalError("csv parsing", err)
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.TotalLines++
		if err == nil {
			line, _ = reader.FieldPos(0)
		} else if perr, ok := err.(*csv.ParseError); ok {
			line = perr.Line
		} else {
			line++
		}
		if err != nil {
			perr := errors.ParseError(errors.CodeInvalidFormat, source, line, "", "", err)
			if bp.config.StrictMode {
				return stats, perr
			}
			stats.AddError(perr)
			continue
		}

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		if perr := bp.checkFieldSizes(record, source, line); perr != nil {
			if bp.config.StrictMode {
				return stats, perr
			}
			stats.AddError(perr)
			continue
		}

		stats.RecordsParsed++
		if err := fn(&Row{Line: line, Source: source, fields: record, columns: columns}); err != nil {
			rerr := errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeInvalidData,
				fmt.Sprintf("invalid row at line %d", line))
			if bp.config.StrictMode {
				return stats, rerr
			}
			stats.AddError(rerr)
			continue
		}
		stats.RecordsValid++
	}

	bp.logger.WithFields(logger.Fields{
		"source":  source,
		"records": stats.RecordsValid,
		"errors":  stats.ErrorCount,
	}).Debug("CSV parsed")
	return stats, nil
}

func (bp *BaseParser) checkFieldSizes(record []string, source string, line int) *errors.ReconcilerError {
	if bp.config.MaxFieldSize <= 0 {
		return nil
	}
	for i, field := range record {
		if len(field) > bp.config.MaxFieldSize {
			return errors.ParseError(errors.CodeInvalidData, source, line, fmt.Sprintf("field_%d", i),
				truncate(field, 50), fmt.Errorf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize))
		}
	}
	return nil
}

// validateEncoding checks the first lines of the file for valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), bp.config.MaxFieldSize+64*1024)

	lineNum := 0
	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeInvalidFormat, path, lineNum, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("save the file as UTF-8; GBK exports need converting first")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeInvalidFormat, path, err)
	}
	return nil
}

// resolveColumns maps logical column names to header positions
func resolveColumns(headers []string, specs []ColumnSpec) (map[string]int, []string) {
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := positions[h]; !seen {
			positions[h] = i
		}
	}

	columns := make(map[string]int, len(specs))
	var missing []string
	for _, spec := range specs {
		found := false
		for _, candidate := range append([]string{spec.Name}, spec.Headers...) {
			if i, ok := positions[strings.ToLower(candidate)]; ok {
				columns[spec.Name] = i
				found = true
				break
			}
		}
		if !found && spec.Required {
			missing = append(missing, spec.Name)
		}
	}
	return columns, missing
}

func describeSpecs(specs []ColumnSpec, names []string) string {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var parts []string
	for _, spec := range specs {
		if wanted[spec.Name] {
			parts = append(parts, fmt.Sprintf("%s (%s)", spec.Name, strings.Join(spec.Headers, "/")))
		}
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*errors.ReconcilerError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*errors.ReconcilerError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *errors.ReconcilerError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// Summary groups the row errors by category and code
func (ps *ParseStats) Summary() *errors.ErrorSummary {
	return errors.NewErrorSummary(ps.Errors)
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}
