// Package reconciler composes the alias index, the match ledger and the
// balance calculator into one service answering two questions: who does a
// bank line belong to, and what is still open.
//
// Example usage:
//
//	svc, err := reconciler.Open(ctx, store, reconciler.DefaultConfig())
//	resolution, err := svc.ResolveBankEntry(entry)
//	if !resolution.NeedsConfirmation {
//		match, err := svc.SettleBankEntry(ctx, entry, orders, "", actor)
//	}
package reconciler

import (
	"context"
	"sort"
	"strings"

	"counterparty-reconciliation/internal/aliases"
	"counterparty-reconciliation/internal/balance"
	"counterparty-reconciliation/internal/ledger"
	"counterparty-reconciliation/internal/matcher"
	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"
)

// ReconciliationService is the composition root over one store
type ReconciliationService struct {
	index    *aliases.Index
	ledger   *ledger.Ledger
	balances *balance.Calculator
	proposer *matcher.Engine
	config   *Config
	logger   logger.Logger
}

// NewReconciliationService wires an already loaded index and ledger
func NewReconciliationService(index *aliases.Index, l *ledger.Ledger, config *Config) (*ReconciliationService, error) {
	if index == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "alias_index", nil, nil)
	}
	if l == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "match_ledger", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config, err)
	}

	calc := balance.NewCalculator(l)
	calc.SetClock(config.now)

	proposer, err := matcher.NewEngine(config.Proposals)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "proposals", config.Proposals, err)
	}

	return &ReconciliationService{
		index:    index,
		ledger:   l,
		balances: calc,
		proposer: proposer,
		config:   config,
		logger:   logger.WithComponent("reconciliation_service"),
	}, nil
}

// Open loads the alias index and the ledger from store and wires them
func Open(ctx context.Context, store storage.Store, config *Config) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config, err)
	}

	op := logger.NewOperationLogger("open_service", logger.WithComponent("reconciliation_service"))

	op.Step("load_aliases")
	index, err := aliases.NewIndex(ctx, store, &aliases.IndexConfig{
		SimilarityThreshold: config.SimilarityThreshold,
		Clock:               config.Clock,
	})
	if err != nil {
		op.Error(err, "Failed to load alias index")
		return nil, err
	}

	op.Step("load_ledger")
	l, err := ledger.NewLedger(ctx, store, &ledger.Config{Clock: config.Clock, NewID: config.NewID})
	if err != nil {
		op.Error(err, "Failed to load match ledger")
		return nil, err
	}

	svc, err := NewReconciliationService(index, l, config)
	if err != nil {
		return nil, err
	}
	op.Success("Reconciliation service ready")
	return svc, nil
}

// Aliases exposes the alias index
func (s *ReconciliationService) Aliases() *aliases.Index { return s.index }

// Ledger exposes the match ledger
func (s *ReconciliationService) Ledger() *ledger.Ledger { return s.ledger }

// Config returns the matching policy in use
func (s *ReconciliationService) Config() *Config { return s.config }

// Resolution is the outcome of resolving one bank entry
type Resolution struct {
	Entry             models.BankEntry     `json:"entry"`
	Candidate         *aliases.MatchResult `json:"candidate,omitempty"`
	NeedsConfirmation bool                 `json:"needs_confirmation"`
	Reason            string               `json:"reason,omitempty"`
}

// Confirmation reasons
const (
	ReasonNoCandidate   = "no candidate above similarity threshold"
	ReasonLowConfidence = "confidence below auto-apply level"
	ReasonFuzzy         = "fuzzy match requires confirmation"
)

// ResolveBankEntry finds the candidate entity for the entry's counterparty
// text, falling back to the description when the counterparty is blank.
// Results that a human has to confirm are flagged, never applied.
func (s *ReconciliationService) ResolveBankEntry(entry models.BankEntry) (*Resolution, error) {
	name := entry.CounterpartyName
	if strings.TrimSpace(name) == "" {
		name = entry.Description
	}

	candidate, err := s.index.Resolve(name, s.config.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Entry: entry, Candidate: candidate}
	switch {
	case candidate == nil:
		res.NeedsConfirmation = true
		res.Reason = ReasonNoCandidate
	case candidate.Confidence < s.config.AutoApplyConfidence:
		res.NeedsConfirmation = true
		res.Reason = ReasonLowConfidence
	case candidate.MatchType == aliases.MatchFuzzy && s.config.ConfirmFuzzy:
		res.NeedsConfirmation = true
		res.Reason = ReasonFuzzy
	}

	log := s.logger.WithFields(logger.Fields{
		"bank_entry_id":      entry.ID,
		"needs_confirmation": res.NeedsConfirmation,
	})
	if candidate != nil {
		log = log.WithFields(logger.Fields{
			"entity_id":  candidate.EntityID,
			"match_type": candidate.MatchType.String(),
			"confidence": candidate.Confidence,
		})
	}
	log.Debug("Bank entry resolved")

	return res, nil
}

// StatementResolution groups the resolutions of a whole statement
type StatementResolution struct {
	Resolutions       []Resolution `json:"resolutions"`
	AutoApplicable    int          `json:"auto_applicable"`
	NeedsConfirmation int          `json:"needs_confirmation"`
	Unresolved        int          `json:"unresolved"`
}

// ResolveStatement resolves every entry in order
func (s *ReconciliationService) ResolveStatement(entries []models.BankEntry) (*StatementResolution, error) {
	out := &StatementResolution{Resolutions: make([]Resolution, 0, len(entries))}
	progress := logger.NewProgressTracker("resolve_statement", int64(len(entries)), s.logger)

	for _, entry := range entries {
		res, err := s.ResolveBankEntry(entry)
		if err != nil {
			return nil, err
		}
		out.Resolutions = append(out.Resolutions, *res)

		switch {
		case res.Candidate == nil:
			out.Unresolved++
		case res.NeedsConfirmation:
			out.NeedsConfirmation++
		default:
			out.AutoApplicable++
		}
		progress.Increment(res.Candidate == nil)
	}

	progress.Complete()
	return out, nil
}

// SettleBankEntry matches one bank entry against the given records, as a
// one-to-one match for a single record and one-to-many otherwise
func (s *ReconciliationService) SettleBankEntry(ctx context.Context, entry models.BankEntry, records []models.LedgerRecord, notes, actor string) (*models.FlexibleMatch, error) {
	if len(records) == 1 {
		return s.ledger.CreateOneToOneMatch(ctx, entry, records[0], notes, actor)
	}
	return s.ledger.CreateOneToManyMatch(ctx, entry, records, notes, actor)
}

// SettleLedgerRecord matches several bank entries against one record, as a
// one-to-one match for a single entry and many-to-one otherwise
func (s *ReconciliationService) SettleLedgerRecord(ctx context.Context, entries []models.BankEntry, record models.LedgerRecord, notes, actor string) (*models.FlexibleMatch, error) {
	if len(entries) == 1 {
		return s.ledger.CreateOneToOneMatch(ctx, entries[0], record, notes, actor)
	}
	return s.ledger.CreateManyToOneMatch(ctx, entries, record, notes, actor)
}

// ExtendMatch adds members to an active match
func (s *ReconciliationService) ExtendMatch(ctx context.Context, matchID string, entries []models.BankEntry, records []models.LedgerRecord, actor string) (*models.FlexibleMatch, error) {
	return s.ledger.ExtendMatch(ctx, matchID, entries, records, actor)
}

// UndoMatch removes an active match
func (s *ReconciliationService) UndoMatch(ctx context.Context, matchID, actor string) (bool, error) {
	return s.ledger.UndoMatch(ctx, matchID, actor)
}

// History returns the trail of one match, oldest first
func (s *ReconciliationService) History(matchID string) []models.HistoryEntry {
	return s.ledger.GetHistory(matchID)
}

// UnreconciledMatches lists active matches with a non-zero balance, most
// recent first
func (s *ReconciliationService) UnreconciledMatches() []models.FlexibleMatch {
	return s.ledger.ListUnreconciled()
}

// GroupByEntity splits ledger records into per-entity sets in order of first
// appearance. Display names come from the alias index; entities without
// aliases are named by their id.
func (s *ReconciliationService) GroupByEntity(records []models.LedgerRecord) []balance.EntityLedger {
	var out []balance.EntityLedger
	position := make(map[string]int)

	for _, r := range records {
		i, ok := position[r.EntityID]
		if !ok {
			name, found := s.index.EntityName(r.EntityID)
			if !found {
				name = r.EntityID
			}
			i = len(out)
			position[r.EntityID] = i
			out = append(out, balance.EntityLedger{EntityID: r.EntityID, EntityName: name})
		}
		out[i].Records = append(out[i].Records, r)
	}
	return out
}

// Balance computes the balance of a single entity
func (s *ReconciliationService) Balance(entityID, entityName string, records []models.LedgerRecord) *models.CounterpartyBalance {
	return s.balances.GetBalance(entityID, entityName, records)
}

// OpenBalances computes the balance of each entity, largest unreconciled
// amount first. With onlyOpen, settled entities are left out.
func (s *ReconciliationService) OpenBalances(entities []balance.EntityLedger, onlyOpen bool) []models.CounterpartyBalance {
	all := s.balances.GetBalances(entities)

	out := make([]models.CounterpartyBalance, 0, len(all))
	for _, b := range all {
		if onlyOpen && b.IsSettled() {
			continue
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UnreconciledBalance.GreaterThan(out[j].UnreconciledBalance)
	})

	s.logger.WithFields(logger.Fields{
		"entities": len(entities),
		"open":     len(out),
	}).Info("Open balances computed")
	return out
}
