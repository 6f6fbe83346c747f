package cmd

import (
	"fmt"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/parsers"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
)

func (a *app) parseConfig() *parsers.ParseConfig {
	config := parsers.DefaultParseConfig()
	config.StrictMode = a.settings.StrictInput
	return config
}

func (a *app) loadBankEntries(cmd *cobra.Command, path string) ([]models.BankEntry, error) {
	entries, stats, err := parsers.NewBankEntryParser(a.parseConfig()).ParseFile(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	a.reportSkippedRows(path, stats)
	return entries, nil
}

func (a *app) loadLedgerRecords(cmd *cobra.Command, path string) ([]models.LedgerRecord, error) {
	records, stats, err := parsers.NewLedgerRecordParser(a.parseConfig()).ParseFile(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	a.reportSkippedRows(path, stats)
	return records, nil
}

// reportSkippedRows warns about rows the parser dropped
func (a *app) reportSkippedRows(path string, stats *parsers.ParseStats) {
	if !stats.HasErrors() {
		return
	}
	a.log.WithFields(logger.Fields{
		"file":    path,
		"skipped": stats.ErrorCount,
		"samples": stats.GetSampleErrors(3),
	}).Warn("Skipped invalid rows")
	fmt.Fprintf(a.errOut, "Warning: %s: %s\n", path, stats.String())
	for _, sample := range stats.GetSampleErrors(3) {
		fmt.Fprintf(a.errOut, "  %s\n", sample)
	}
}

// selectBankEntries picks entries by id, in the order the ids are given
func selectBankEntries(entries []models.BankEntry, ids []string, source string) ([]models.BankEntry, error) {
	byID := make(map[string]models.BankEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	selected := make([]models.BankEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, errors.ValidationError(errors.CodeInvalidValue, "bank-ids", id,
				fmt.Errorf("bank entry %s not found in %s", id, source))
		}
		selected = append(selected, e)
	}
	return selected, nil
}

// selectLedgerRecords picks records by id, in the order the ids are given
func selectLedgerRecords(records []models.LedgerRecord, ids []string, source string) ([]models.LedgerRecord, error) {
	byID := make(map[string]models.LedgerRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	selected := make([]models.LedgerRecord, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, errors.ValidationError(errors.CodeInvalidValue, "record-ids", id,
				fmt.Errorf("ledger record %s not found in %s", id, source))
		}
		selected = append(selected, r)
	}
	return selected, nil
}

// memberFlags are the inputs shared by match create and match extend
type memberFlags struct {
	bankFile   string
	ledgerFile string
	bankIDs    []string
	recordIDs  []string
}

func (f *memberFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.bankFile, "bank-file", "b", "", "bank statement CSV holding the entries")
	cmd.Flags().StringVarP(&f.ledgerFile, "ledger-file", "l", "", "ledger record CSV holding the records")
	cmd.Flags().StringSliceVar(&f.bankIDs, "bank-ids", nil, "comma-separated bank entry ids")
	cmd.Flags().StringSliceVar(&f.recordIDs, "record-ids", nil, "comma-separated ledger record ids")
}

func (a *app) loadMembers(cmd *cobra.Command, f *memberFlags) ([]models.BankEntry, []models.LedgerRecord, error) {
	var entries []models.BankEntry
	var records []models.LedgerRecord

	if len(f.bankIDs) > 0 {
		if f.bankFile == "" {
			return nil, nil, errors.ValidationError(errors.CodeMissingField, "bank-file", nil, nil).
				WithSuggestion("pass --bank-file with the statement holding the bank entries")
		}
		all, err := a.loadBankEntries(cmd, f.bankFile)
		if err != nil {
			return nil, nil, err
		}
		if entries, err = selectBankEntries(all, f.bankIDs, f.bankFile); err != nil {
			return nil, nil, err
		}
	}

	if len(f.recordIDs) > 0 {
		if f.ledgerFile == "" {
			return nil, nil, errors.ValidationError(errors.CodeMissingField, "ledger-file", nil, nil).
				WithSuggestion("pass --ledger-file with the export holding the ledger records")
		}
		all, err := a.loadLedgerRecords(cmd, f.ledgerFile)
		if err != nil {
			return nil, nil, err
		}
		if records, err = selectLedgerRecords(all, f.recordIDs, f.ledgerFile); err != nil {
			return nil, nil, err
		}
	}

	return entries, records, nil
}
