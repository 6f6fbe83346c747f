package storage

import (
	"context"
	"sync"

	"counterparty-reconciliation/internal/models"
)

// MemoryStore keeps record sets in process memory. Every load and save copies,
// so callers never share slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	aliases []models.CounterpartyAlias
	matches []models.FlexibleMatch
	history []models.HistoryEntry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadAliases(ctx context.Context) ([]models.CounterpartyAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CounterpartyAlias{}, s.aliases...), nil
}

func (s *MemoryStore) SaveAliases(ctx context.Context, aliases []models.CounterpartyAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases = append([]models.CounterpartyAlias{}, aliases...)
	return nil
}

func (s *MemoryStore) LoadMatches(ctx context.Context) ([]models.FlexibleMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMatches(s.matches), nil
}

func (s *MemoryStore) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHistory(s.history), nil
}

func (s *MemoryStore) SaveLedger(ctx context.Context, matches []models.FlexibleMatch, history []models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = cloneMatches(matches)
	s.history = cloneHistory(history)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneMatches(in []models.FlexibleMatch) []models.FlexibleMatch {
	out := make([]models.FlexibleMatch, len(in))
	for i := range in {
		out[i] = *in[i].Clone()
	}
	return out
}

func cloneHistory(in []models.HistoryEntry) []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(in))
	for i, h := range in {
		h.Snapshot.BankEntryIDs = append([]string{}, h.Snapshot.BankEntryIDs...)
		h.Snapshot.LedgerRecordIDs = append([]string{}, h.Snapshot.LedgerRecordIDs...)
		out[i] = h
	}
	return out
}
