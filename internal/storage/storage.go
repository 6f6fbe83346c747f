// Package storage implements the persistence contract of the alias index and
// the match ledger: each record set is loaded whole and saved whole.
//
// A missing backing store is not an error; loads return empty collections.
package storage

import (
	"context"

	"counterparty-reconciliation/internal/models"
)

// Record set names shared by every implementation
const (
	RecordSetAliases = "aliases"
	RecordSetMatches = "matches"
	RecordSetHistory = "history"
)

// AliasStore persists the canonical alias list in registration order.
//
//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks -source=storage.go
type AliasStore interface {
	LoadAliases(ctx context.Context) ([]models.CounterpartyAlias, error)
	SaveAliases(ctx context.Context, aliases []models.CounterpartyAlias) error
}

// LedgerStore persists matches and their history. SaveLedger replaces both
// record sets; implementations make the pair as atomic as their medium allows.
type LedgerStore interface {
	LoadMatches(ctx context.Context) ([]models.FlexibleMatch, error)
	LoadHistory(ctx context.Context) ([]models.HistoryEntry, error)
	SaveLedger(ctx context.Context, matches []models.FlexibleMatch, history []models.HistoryEntry) error
}

// Store is everything the reconciliation service needs
type Store interface {
	AliasStore
	LedgerStore
	Close() error
}
