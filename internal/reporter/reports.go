package reporter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"counterparty-reconciliation/internal/aliases"
	"counterparty-reconciliation/internal/matcher"
	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/reconciler"

	"github.com/shopspring/decimal"
)

// AliasReport lists exported alias rows
func (rg *ReportGenerator) AliasReport(rows []models.AliasExportRow) *Report {
	columns := models.ExportColumns
	if len(rg.config.AliasColumns) > 0 {
		columns = rg.config.AliasColumns
	}

	report := &Report{Title: "Aliases", Columns: columns, Data: nonNil(rows)}
	entities := make(map[string]bool)
	for _, row := range rows {
		report.Rows = append(report.Rows, row.Values())
		entities[row.EntityID] = true
	}
	report.Summary = []SummaryLine{
		{"Aliases", strconv.Itoa(len(rows))},
		{"Entities", strconv.Itoa(len(entities))},
	}
	return report
}

// MatchReport lists matches with their totals and status
func (rg *ReportGenerator) MatchReport(matches []models.FlexibleMatch) *Report {
	report := &Report{
		Title: "Matches",
		Columns: []string{"Match ID", "Kind", "Status", "Bank Entries", "Ledger Records",
			"Bank Total", "Ledger Total", "Balance", "Created By", "Updated At"},
		Data: nonNil(matches),
	}

	open := 0
	openBalance := decimal.Zero
	for i := range matches {
		m := &matches[i]
		report.Rows = append(report.Rows, []string{
			m.ID,
			string(m.Kind),
			string(m.Status()),
			strings.Join(m.BankEntryIDs(), " "),
			strings.Join(m.LedgerRecordIDs(), " "),
			m.TotalBankAmount.StringFixed(2),
			m.TotalLedgerAmount.StringFixed(2),
			m.Balance.StringFixed(2),
			m.CreatedBy,
			rg.formatTime(m.UpdatedAt),
		})
		if !m.IsReconciled() {
			open++
			openBalance = openBalance.Add(m.Balance)
		}
	}

	report.Summary = []SummaryLine{
		{"Matches", strconv.Itoa(len(matches))},
		{"Unreconciled", strconv.Itoa(open)},
		{"Net Open Balance", openBalance.StringFixed(2)},
	}
	return report
}

// HistoryReport lists audit trail entries in the order given
func (rg *ReportGenerator) HistoryReport(entries []models.HistoryEntry) *Report {
	report := &Report{
		Title: "Match History",
		Columns: []string{"Entry ID", "Match ID", "Action", "Timestamp", "Actor",
			"Bank Entries", "Ledger Records", "Balance"},
		Data: nonNil(entries),
	}
	for _, h := range entries {
		report.Rows = append(report.Rows, []string{
			h.ID,
			h.MatchID,
			string(h.Action),
			rg.formatTime(h.Timestamp),
			h.Actor,
			strings.Join(h.Snapshot.BankEntryIDs, " "),
			strings.Join(h.Snapshot.LedgerRecordIDs, " "),
			h.Snapshot.Balance.StringFixed(2),
		})
	}
	report.Summary = []SummaryLine{{"Entries", strconv.Itoa(len(entries))}}
	return report
}

// BalanceReport lists per-entity balances in the order given
func (rg *ReportGenerator) BalanceReport(balances []models.CounterpartyBalance) *Report {
	report := &Report{
		Title: "Counterparty Balances",
		Columns: []string{"Entity ID", "Entity Name", "Ledger Total", "Received",
			"Unreconciled", "Matches"},
		Data: nonNil(balances),
	}

	totalOpen := decimal.Zero
	settled := 0
	for i := range balances {
		b := &balances[i]
		report.Rows = append(report.Rows, []string{
			b.EntityID,
			b.EntityName,
			b.TotalLedgerAmount.StringFixed(2),
			b.TotalReceivedAmount.StringFixed(2),
			b.UnreconciledBalance.StringFixed(2),
			strconv.Itoa(b.MatchCount),
		})
		totalOpen = totalOpen.Add(b.UnreconciledBalance)
		if b.IsSettled() {
			settled++
		}
	}

	report.Summary = []SummaryLine{
		{"Entities", strconv.Itoa(len(balances))},
		{"Settled", strconv.Itoa(settled)},
		{"Total Unreconciled", totalOpen.StringFixed(2)},
	}
	return report
}

// ConflictReport lists alias texts claimed by more than one entity
func (rg *ReportGenerator) ConflictReport(conflicts []aliases.Conflict) *Report {
	report := &Report{
		Title:   "Alias Conflicts",
		Columns: []string{"Alias", "Entities"},
		Data:    nonNil(conflicts),
	}
	for _, c := range conflicts {
		owners := make([]string, 0, len(c.Entities))
		for _, e := range c.Entities {
			owners = append(owners, fmt.Sprintf("%s (%s)", e.EntityID, e.EntityName))
		}
		report.Rows = append(report.Rows, []string{c.Alias, strings.Join(owners, "; ")})
	}
	report.Summary = []SummaryLine{{"Conflicts", strconv.Itoa(len(conflicts))}}
	return report
}

// ResolutionReport lists the candidate entity found for each bank entry
func (rg *ReportGenerator) ResolutionReport(result *reconciler.StatementResolution) *Report {
	report := &Report{
		Title: "Counterparty Resolution",
		Columns: []string{"Bank Entry", "Counterparty", "Amount", "Entity ID", "Entity Name",
			"Match Type", "Confidence", "Action"},
		Data: result,
	}

	for _, res := range result.Resolutions {
		row := []string{
			res.Entry.ID,
			res.Entry.CounterpartyName,
			res.Entry.Amount.StringFixed(2),
			"", "", "", "",
			"apply",
		}
		if c := res.Candidate; c != nil {
			row[3] = c.EntityID
			row[4] = c.EntityName
			row[5] = c.MatchType.String()
			row[6] = strconv.FormatFloat(c.Confidence, 'f', 3, 64)
		}
		if res.NeedsConfirmation {
			row[7] = "confirm: " + res.Reason
		}
		report.Rows = append(report.Rows, row)
	}

	report.Summary = []SummaryLine{
		{"Entries", strconv.Itoa(len(result.Resolutions))},
		{"Auto-applicable", strconv.Itoa(result.AutoApplicable)},
		{"Needs confirmation", strconv.Itoa(result.NeedsConfirmation)},
		{"Unresolved", strconv.Itoa(result.Unresolved)},
	}
	return report
}

// ProposalReport lists proposed matches in statement order
func (rg *ReportGenerator) ProposalReport(set *matcher.ProposalSet) *Report {
	report := &Report{
		Title: "Match Proposals",
		Columns: []string{"Kind", "Entity ID", "Bank Entries", "Ledger Records", "Bank Total",
			"Ledger Total", "Difference", "Score", "Quality", "Action", "Reasons"},
		Data: set,
	}

	for i := range set.Proposals {
		p := &set.Proposals[i]
		action := "apply"
		if p.NeedsConfirmation {
			action = "confirm"
		}
		report.Rows = append(report.Rows, []string{
			string(p.Kind),
			p.EntityID,
			strings.Join(p.BankEntryIDs(), " "),
			strings.Join(p.LedgerRecordIDs(), " "),
			p.BankTotal.StringFixed(2),
			p.LedgerTotal.StringFixed(2),
			p.Difference.StringFixed(2),
			strconv.FormatFloat(p.Score, 'f', 3, 64),
			p.Quality.String(),
			action,
			strings.Join(p.Reasons, "; "),
		})
	}

	s := set.Summary
	report.Summary = []SummaryLine{
		{"Bank entries", strconv.Itoa(s.Entries)},
		{"Ledger records", strconv.Itoa(s.Records)},
		{"Proposed", fmt.Sprintf("%d (one-to-one %d, one-to-many %d, many-to-one %d)", s.Proposed, s.OneToOne, s.OneToMany, s.ManyToOne)},
		{"Needs confirmation", strconv.Itoa(s.NeedsConfirmation)},
		{"Proposed amount", s.ProposedAmount.StringFixed(2)},
		{"Unmatched entries", fmt.Sprintf("%d (%s)", len(set.UnmatchedEntries), s.UnmatchedEntryAmount.StringFixed(2))},
		{"Unmatched records", fmt.Sprintf("%d (%s)", len(set.UnmatchedRecords), s.UnmatchedRecordAmount.StringFixed(2))},
	}
	return report
}

// BatchReport lists the failed items of an alias batch
func (rg *ReportGenerator) BatchReport(result *aliases.BatchResult) *Report {
	report := &Report{
		Title:   "Alias Import",
		Columns: []string{"Item", "Entity ID", "Alias", "Code", "Error"},
		Data:    result,
	}
	for _, e := range result.Errors {
		report.Rows = append(report.Rows, []string{
			strconv.Itoa(e.Index + 1),
			e.Item.EntityID,
			e.Item.Alias,
			string(e.Err.Code),
			e.Err.Message,
		})
	}
	report.Summary = []SummaryLine{
		{"Total", strconv.Itoa(result.Total)},
		{"Registered", strconv.Itoa(result.Succeeded)},
		{"Failed", strconv.Itoa(result.Failed)},
	}
	return report
}

func (rg *ReportGenerator) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(rg.config.TimeFormat)
}

// nonNil keeps empty listings encoding as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
