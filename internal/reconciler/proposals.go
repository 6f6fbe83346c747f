package reconciler

import (
	"context"
	"fmt"

	"counterparty-reconciliation/internal/matcher"
	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"
)

// ProposeMatches resolves each bank entry and proposes matches against the
// given records. Entries and records already in an active match are left
// out. Entries that resolve to no entity end up unmatched.
func (s *ReconciliationService) ProposeMatches(entries []models.BankEntry, records []models.LedgerRecord) (*matcher.ProposalSet, error) {
	matchedEntries := make(map[string]bool)
	matchedRecords := make(map[string]bool)
	for _, m := range s.ledger.ActiveMatches() {
		for _, id := range m.BankEntryIDs() {
			matchedEntries[id] = true
		}
		for _, id := range m.LedgerRecordIDs() {
			matchedRecords[id] = true
		}
	}

	var open []models.BankEntry
	for _, e := range entries {
		if !matchedEntries[e.ID] {
			open = append(open, e)
		}
	}
	var openRecords []models.LedgerRecord
	for _, r := range records {
		if !matchedRecords[r.ID] {
			openRecords = append(openRecords, r)
		}
	}

	resolution, err := s.ResolveStatement(open)
	if err != nil {
		return nil, err
	}

	resolved := make([]matcher.ResolvedEntry, 0, len(resolution.Resolutions))
	for _, res := range resolution.Resolutions {
		re := matcher.ResolvedEntry{Entry: res.Entry, NeedsConfirmation: res.NeedsConfirmation}
		if res.Candidate != nil {
			re.EntityID = res.Candidate.EntityID
		}
		resolved = append(resolved, re)
	}

	set := s.proposer.Propose(resolved, openRecords)

	s.logger.WithFields(logger.Fields{
		"entries":          len(entries),
		"already_matched":  len(entries) - len(open),
		"records":          len(records),
		"proposed":         set.Summary.Proposed,
		"needs_confirming": set.Summary.NeedsConfirmation,
	}).Info("Matches proposed")
	return set, nil
}

// ApplyProposals records each proposal as a match, in order. Proposals whose
// counterparty resolution needs confirmation are skipped unless
// includeUnconfirmed is set. On error the matches created so far are
// returned with it.
func (s *ReconciliationService) ApplyProposals(ctx context.Context, proposals []matcher.Proposal, includeUnconfirmed bool, actor string) ([]models.FlexibleMatch, error) {
	var created []models.FlexibleMatch

	for i := range proposals {
		p := &proposals[i]
		if p.NeedsConfirmation && !includeUnconfirmed {
			s.logger.WithField("bank_entry_ids", p.BankEntryIDs()).Debug("Skipping proposal awaiting confirmation")
			continue
		}

		if err := validateProposal(p); err != nil {
			return created, err
		}

		notes := fmt.Sprintf("proposed: %s, score %.3f", p.Quality, p.Score)

		var m *models.FlexibleMatch
		var err error
		if len(p.LedgerRecords) == 1 && len(p.BankEntries) > 1 {
			m, err = s.SettleLedgerRecord(ctx, p.BankEntries, p.LedgerRecords[0], notes, actor)
		} else {
			m, err = s.SettleBankEntry(ctx, p.BankEntries[0], p.LedgerRecords, notes, actor)
		}
		if err != nil {
			return created, err
		}
		created = append(created, *m)
	}

	s.logger.WithFields(logger.Fields{
		"proposals": len(proposals),
		"applied":   len(created),
		"actor":     actor,
	}).Info("Proposals applied")
	return created, nil
}

// validateProposal rejects member shapes the ledger cannot record: an empty
// side, or several entries against several records.
func validateProposal(p *matcher.Proposal) error {
	if len(p.BankEntries) == 0 || len(p.LedgerRecords) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "proposal members",
			fmt.Sprintf("%d x %d", len(p.BankEntries), len(p.LedgerRecords)), nil).
			WithSuggestion("a proposal needs at least one bank entry and one ledger record")
	}
	if len(p.BankEntries) > 1 && len(p.LedgerRecords) > 1 {
		return errors.ValidationError(errors.CodeInvalidValue, "proposal members",
			fmt.Sprintf("%d x %d", len(p.BankEntries), len(p.LedgerRecords)),
			fmt.Errorf("many-to-many matches are not supported")).
			WithSuggestion("split the payment into one-to-many or many-to-one matches")
	}
	return nil
}
