// Package reporter renders alias, match, history, balance and resolution
// listings for the command line.
//
// Every listing is first turned into a Report: a titled table plus summary
// lines for console and CSV output, and the untouched domain values for JSON.
//
// Supported output formats:
//   - Console: aligned columns for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one header row and one row per item for spreadsheets
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatCSV})
//	report := generator.AliasReport(index.ExportAliases())
//	err = generator.Write(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"counterparty-reconciliation/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseOutputFormat converts a flag value into an OutputFormat
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s (must be console, json or csv)", s)
	}
	return f, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// Console rows beyond MaxRows are elided; 0 prints everything
	MaxRows int `json:"max_rows"`

	TimeFormat string `json:"time_format"`

	// AliasColumns replaces the alias export labels, e.g. with localized ones.
	// It must have one label per export column.
	AliasColumns []string `json:"alias_columns,omitempty"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		CSVDelimiter: ',',
		CSVHeaders:   true,
		MaxRows:      0,
		TimeFormat:   "2006-01-02 15:04:05",
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return fmt.Errorf("invalid CSV delimiter: %q", c.CSVDelimiter)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("max rows cannot be negative: %d", c.MaxRows)
	}
	if c.TimeFormat == "" {
		return fmt.Errorf("time format cannot be empty")
	}
	if len(c.AliasColumns) > 0 && len(c.AliasColumns) != len(models.ExportColumns) {
		return fmt.Errorf("alias columns need %d labels, got %d", len(models.ExportColumns), len(c.AliasColumns))
	}
	return nil
}

// SummaryLine is one labelled figure printed under a console table
type SummaryLine struct {
	Label string
	Value string
}

// Report is a rendered listing. Columns and Rows feed console and CSV
// output; Data is what JSON output encodes.
type Report struct {
	Title   string
	Columns []string
	Rows    [][]string
	Summary []SummaryLine
	Data    interface{}
}

// ReportGenerator writes reports in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// Write renders the report to writer
func (rg *ReportGenerator) Write(report *Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.writeConsole(report, writer)
	case FormatJSON:
		return rg.writeJSON(report, writer)
	case FormatCSV:
		return rg.writeCSV(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) writeConsole(report *Report, writer io.Writer) error {
	if report.Title != "" {
		fmt.Fprintf(writer, "=== %s ===\n", strings.ToUpper(report.Title))
	}

	if len(report.Rows) == 0 {
		fmt.Fprintf(writer, "(none)\n")
	} else {
		tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(report.Columns, "\t"))

		rows := report.Rows
		if rg.config.MaxRows > 0 && len(rows) > rg.config.MaxRows {
			rows = rows[:rg.config.MaxRows]
		}
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if len(rows) < len(report.Rows) {
			fmt.Fprintf(writer, "... and %d more\n", len(report.Rows)-len(rows))
		}
	}

	if len(report.Summary) > 0 {
		fmt.Fprintf(writer, "\n")
		width := 0
		for _, line := range report.Summary {
			if len(line.Label) > width {
				width = len(line.Label)
			}
		}
		for _, line := range report.Summary {
			fmt.Fprintf(writer, "%-*s  %s\n", width+1, line.Label+":", line.Value)
		}
	}
	return nil
}

func (rg *ReportGenerator) writeJSON(report *Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	return encoder.Encode(report.Data)
}

func (rg *ReportGenerator) writeCSV(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(report.Columns); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	for _, row := range report.Rows {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
