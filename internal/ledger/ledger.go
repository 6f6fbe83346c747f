// Package ledger owns reconciliation matches and their audit trail.
//
// A match groups bank entries with the ledger records they settle. Its
// balance is always bank total minus ledger total, recomputed from the full
// member lists whenever members change. Every create, extend and undo
// appends one history entry; history is never rewritten.
//
// Mutations hold an exclusive lock across the store write. New state is
// built on copies and swapped in only after SaveLedger succeeds, so a
// rejected or failed call leaves the ledger exactly as it was.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"
)

// Ledger is the match store. It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	matches map[string]*models.FlexibleMatch
	history []models.HistoryEntry

	store  storage.LedgerStore
	clock  func() time.Time
	newID  func() string
	logger logger.Logger
}

// NewLedger loads matches and history from store. Loaded matches are
// re-totalled from their members.
func NewLedger(ctx context.Context, store storage.LedgerStore, config *Config) (*Ledger, error) {
	config = config.withDefaults()

	matches, err := store.LoadMatches(ctx)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStorageRead, "failed to load matches")
	}
	history, err := store.LoadHistory(ctx)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStorageRead, "failed to load history")
	}

	l := &Ledger{
		matches: make(map[string]*models.FlexibleMatch, len(matches)),
		history: append([]models.HistoryEntry(nil), history...),
		store:   store,
		clock:   config.Clock,
		newID:   config.NewID,
		logger:  logger.WithComponent("match_ledger"),
	}

	for i := range matches {
		m := matches[i].Clone()
		m.Recalculate()
		l.matches[m.ID] = m
	}

	l.logger.WithFields(logger.Fields{
		"matches": len(l.matches),
		"history": len(l.history),
	}).Debug("Ledger loaded")

	return l, nil
}

// CreateOneToOneMatch settles one bank entry against one ledger record
func (l *Ledger) CreateOneToOneMatch(ctx context.Context, entry models.BankEntry, record models.LedgerRecord, notes, actor string) (*models.FlexibleMatch, error) {
	return l.create(ctx, models.MatchOneToOne, []models.BankEntry{entry}, []models.LedgerRecord{record}, notes, actor)
}

// CreateOneToManyMatch settles one bank entry against several ledger records
func (l *Ledger) CreateOneToManyMatch(ctx context.Context, entry models.BankEntry, records []models.LedgerRecord, notes, actor string) (*models.FlexibleMatch, error) {
	return l.create(ctx, models.MatchOneToMany, []models.BankEntry{entry}, records, notes, actor)
}

// CreateManyToOneMatch settles several bank entries against one ledger record
func (l *Ledger) CreateManyToOneMatch(ctx context.Context, entries []models.BankEntry, record models.LedgerRecord, notes, actor string) (*models.FlexibleMatch, error) {
	return l.create(ctx, models.MatchManyToOne, entries, []models.LedgerRecord{record}, notes, actor)
}

func (l *Ledger) create(ctx context.Context, kind models.MatchKind, entries []models.BankEntry, records []models.LedgerRecord, notes, actor string) (*models.FlexibleMatch, error) {
	if len(entries) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "bank_entries", nil, nil)
	}
	if len(records) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "ledger_records", nil, nil)
	}
	if err := validateMembers(entries, records, true); err != nil {
		l.logger.WithError(err).WithField("actor", actor).Warn("Match creation rejected")
		return nil, err
	}

	now := l.clock()
	match := &models.FlexibleMatch{
		Kind:          kind,
		BankEntries:   append([]models.BankEntry(nil), entries...),
		LedgerRecords: append([]models.LedgerRecord(nil), records...),
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     actor,
		Notes:         strings.TrimSpace(notes),
	}
	match.Recalculate()

	l.mu.Lock()
	defer l.mu.Unlock()

	match.ID = l.newID()
	if _, exists := l.matches[match.ID]; exists {
		return nil, errors.InternalError("create match", fmt.Errorf("generated match id %s is already in use", match.ID))
	}

	entry := l.historyEntry(match.ID, models.ActionCreate, now, actor, models.HistorySnapshot{
		Kind:              kind,
		BankEntryIDs:      match.BankEntryIDs(),
		LedgerRecordIDs:   match.LedgerRecordIDs(),
		TotalBankAmount:   match.TotalBankAmount,
		TotalLedgerAmount: match.TotalLedgerAmount,
		Balance:           match.Balance,
		Notes:             match.Notes,
	})

	next := l.copyMatches()
	next[match.ID] = match
	if err := l.commit(ctx, next, entry); err != nil {
		return nil, err
	}

	l.logger.WithFields(logger.Fields{
		"match_id": match.ID,
		"kind":     kind,
		"bank":     match.TotalBankAmount.String(),
		"ledger":   match.TotalLedgerAmount.String(),
		"balance":  match.Balance.String(),
		"actor":    actor,
	}).Info("Match created")

	return match.Clone(), nil
}

// ExtendMatch adds members to an existing match and re-totals it.
//
// Ids already in the match, and ids repeated within the call, are skipped.
// The extend history entry lists only the ids that were actually added; it
// is written even when nothing was. A missing match is an error.
// Kind keeps its creation value even when the added members leave several
// entries against several records, so ListMatches filters on kind at creation.
func (l *Ledger) ExtendMatch(ctx context.Context, matchID string, entries []models.BankEntry, records []models.LedgerRecord, actor string) (*models.FlexibleMatch, error) {
	if err := validateMembers(entries, records, false); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.matches[matchID]
	if !ok {
		return nil, errors.MatchNotFoundError(matchID)
	}

	next := current.Clone()
	seenBank := make(map[string]bool, len(next.BankEntries))
	for _, e := range next.BankEntries {
		seenBank[e.ID] = true
	}
	seenLedger := make(map[string]bool, len(next.LedgerRecords))
	for _, r := range next.LedgerRecords {
		seenLedger[r.ID] = true
	}

	addedBank := []string{}
	for _, e := range entries {
		if seenBank[e.ID] {
			continue
		}
		seenBank[e.ID] = true
		next.BankEntries = append(next.BankEntries, e)
		addedBank = append(addedBank, e.ID)
	}
	addedLedger := []string{}
	for _, r := range records {
		if seenLedger[r.ID] {
			continue
		}
		seenLedger[r.ID] = true
		next.LedgerRecords = append(next.LedgerRecords, r)
		addedLedger = append(addedLedger, r.ID)
	}

	now := l.clock()
	next.Recalculate()
	if len(addedBank)+len(addedLedger) > 0 {
		next.UpdatedAt = now
	}

	entry := l.historyEntry(matchID, models.ActionExtend, now, actor, models.HistorySnapshot{
		Kind:              next.Kind,
		BankEntryIDs:      addedBank,
		LedgerRecordIDs:   addedLedger,
		TotalBankAmount:   next.TotalBankAmount,
		TotalLedgerAmount: next.TotalLedgerAmount,
		Balance:           next.Balance,
	})

	matches := l.copyMatches()
	matches[matchID] = next
	if err := l.commit(ctx, matches, entry); err != nil {
		return nil, err
	}

	l.logger.WithFields(logger.Fields{
		"match_id":     matchID,
		"added_bank":   len(addedBank),
		"added_ledger": len(addedLedger),
		"skipped":      len(entries) + len(records) - len(addedBank) - len(addedLedger),
		"balance":      next.Balance.String(),
		"actor":        actor,
	}).Info("Match extended")

	return next.Clone(), nil
}

// UndoMatch removes a match from the active set after recording an undo
// entry. It reports false when the match does not exist, so retries are safe.
func (l *Ledger) UndoMatch(ctx context.Context, matchID, actor string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.matches[matchID]
	if !ok {
		return false, nil
	}

	entry := l.historyEntry(matchID, models.ActionUndo, l.clock(), actor, models.HistorySnapshot{
		Kind:              current.Kind,
		BankEntryIDs:      current.BankEntryIDs(),
		LedgerRecordIDs:   current.LedgerRecordIDs(),
		TotalBankAmount:   current.TotalBankAmount,
		TotalLedgerAmount: current.TotalLedgerAmount,
		Balance:           current.Balance,
		Notes:             current.Notes,
	})

	next := l.copyMatches()
	delete(next, matchID)
	if err := l.commit(ctx, next, entry); err != nil {
		return false, err
	}

	l.logger.WithFields(logger.Fields{"match_id": matchID, "actor": actor}).Info("Match undone")
	return true, nil
}

// GetMatch returns a copy of an active match
func (l *Ledger) GetMatch(matchID string) (*models.FlexibleMatch, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.matches[matchID]
	if !ok {
		return nil, errors.MatchNotFoundError(matchID)
	}
	return m.Clone(), nil
}

// GetHistory returns the trail of one match, oldest first. Undone matches
// keep their history.
func (l *Ledger) GetHistory(matchID string) []models.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.HistoryEntry
	for _, h := range l.history {
		if h.MatchID == matchID {
			out = append(out, cloneEntry(h))
		}
	}
	return out
}

// History returns the whole trail, oldest first
func (l *Ledger) History() []models.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.HistoryEntry, len(l.history))
	for i, h := range l.history {
		out[i] = cloneEntry(h)
	}
	return out
}

// ListFilter narrows ListMatches. Zero values leave a bound open.
type ListFilter struct {
	Kind  models.MatchKind
	Start time.Time
	End   time.Time
}

// ListMatches returns active matches whose creation time lies within the
// inclusive bounds of filter, most recent first
func (l *Ledger) ListMatches(filter ListFilter) ([]models.FlexibleMatch, error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "kind", filter.Kind, nil)
	}
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.Start.After(filter.End) {
		return nil, errors.ValidationError(errors.CodeOutOfRange, "end_date", filter.End.Format(time.RFC3339), nil)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.FlexibleMatch
	for _, m := range l.matches {
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if !filter.Start.IsZero() && m.CreatedAt.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && m.CreatedAt.After(filter.End) {
			continue
		}
		out = append(out, *m.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ActiveMatches returns every active match, oldest first
func (l *Ledger) ActiveMatches() []models.FlexibleMatch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.orderedMatches(l.matches)
}

// ListUnreconciled returns active matches with a non-zero balance, most
// recent first
func (l *Ledger) ListUnreconciled() []models.FlexibleMatch {
	all, _ := l.ListMatches(ListFilter{})

	var out []models.FlexibleMatch
	for _, m := range all {
		if !m.IsReconciled() {
			out = append(out, m)
		}
	}
	return out
}

func (l *Ledger) historyEntry(matchID string, action models.HistoryAction, at time.Time, actor string, snapshot models.HistorySnapshot) models.HistoryEntry {
	return models.HistoryEntry{
		ID:        l.newID(),
		MatchID:   matchID,
		Action:    action,
		Timestamp: at,
		Actor:     actor,
		Snapshot:  snapshot,
	}
}

// commit persists the candidate state and installs it. Callers hold l.mu.
func (l *Ledger) commit(ctx context.Context, matches map[string]*models.FlexibleMatch, entry models.HistoryEntry) error {
	history := append(l.history[:len(l.history):len(l.history)], entry)

	if err := l.store.SaveLedger(ctx, l.orderedMatches(matches), history); err != nil {
		l.logger.WithError(err).WithFields(logger.Fields{
			"match_id": entry.MatchID,
			"action":   entry.Action,
		}).Error("Failed to persist ledger")
		return errors.WrapIfNeeded(err, errors.CategoryStorage, errors.CodeStorageWrite, "failed to save ledger")
	}

	l.matches = matches
	l.history = history
	return nil
}

func (l *Ledger) copyMatches() map[string]*models.FlexibleMatch {
	next := make(map[string]*models.FlexibleMatch, len(l.matches)+1)
	for id, m := range l.matches {
		next[id] = m
	}
	return next
}

// orderedMatches flattens a match map by creation time, then id
func (l *Ledger) orderedMatches(matches map[string]*models.FlexibleMatch) []models.FlexibleMatch {
	out := make([]models.FlexibleMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, *m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// validateMembers checks member ids. Repeats are rejected on create; extend
// skips them instead.
func validateMembers(entries []models.BankEntry, records []models.LedgerRecord, rejectRepeats bool) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return errors.ValidationError(errors.CodeInvalidValue, "bank_entries", e.ID, err)
		}
		if rejectRepeats && seen[e.ID] {
			return errors.ValidationError(errors.CodeDuplicateID, "bank_entries", e.ID, nil)
		}
		seen[e.ID] = true
	}

	seen = make(map[string]bool, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return errors.ValidationError(errors.CodeInvalidValue, "ledger_records", r.ID, err)
		}
		if rejectRepeats && seen[r.ID] {
			return errors.ValidationError(errors.CodeDuplicateID, "ledger_records", r.ID, nil)
		}
		seen[r.ID] = true
	}
	return nil
}

func cloneEntry(h models.HistoryEntry) models.HistoryEntry {
	h.Snapshot.BankEntryIDs = append([]string(nil), h.Snapshot.BankEntryIDs...)
	h.Snapshot.LedgerRecordIDs = append([]string(nil), h.Snapshot.LedgerRecordIDs...)
	return h
}
