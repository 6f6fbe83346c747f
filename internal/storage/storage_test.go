package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAliases() []models.CounterpartyAlias {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return []models.CounterpartyAlias{
		{EntityID: "CUST001", EntityName: "客户A有限公司", Alias: "客户A", CreatedAt: ts, CreatedBy: "alice"},
		{EntityID: "CUST002", EntityName: "Beta Industrial Co.", Alias: "BETA IND", CreatedAt: ts.Add(time.Minute), CreatedBy: "bob"},
	}
}

func sampleLedger() ([]models.FlexibleMatch, []models.HistoryEntry) {
	ts := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	match := models.FlexibleMatch{
		ID:   "M1",
		Kind: models.MatchOneToMany,
		BankEntries: []models.BankEntry{
			{ID: "B1", Date: ts, Amount: decimal.NewFromInt(15000), Direction: models.DirectionCredit, CounterpartyName: "客户A"},
		},
		LedgerRecords: []models.LedgerRecord{
			{ID: "O1", EntityID: "CUST001", Amount: decimal.NewFromInt(6000), Date: ts},
			{ID: "O2", EntityID: "CUST001", Amount: decimal.NewFromInt(8000), Date: ts,
				OrderTotal: decimal.NewNullDecimal(decimal.NewFromInt(10000))},
		},
		CreatedAt: ts,
		UpdatedAt: ts,
		CreatedBy: "alice",
	}
	match.Recalculate()

	history := []models.HistoryEntry{{
		ID: "H1", MatchID: "M1", Action: models.ActionCreate, Timestamp: ts, Actor: "alice",
		Snapshot: models.HistorySnapshot{
			Kind:              models.MatchOneToMany,
			BankEntryIDs:      []string{"B1"},
			LedgerRecordIDs:   []string{"O1", "O2"},
			TotalBankAmount:   match.TotalBankAmount,
			TotalLedgerAmount: match.TotalLedgerAmount,
			Balance:           match.Balance,
		},
	}}
	return []models.FlexibleMatch{match}, history
}

func assertRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	aliases := sampleAliases()
	require.NoError(t, store.SaveAliases(ctx, aliases))
	loadedAliases, err := store.LoadAliases(ctx)
	require.NoError(t, err)
	require.Len(t, loadedAliases, len(aliases))
	for i := range aliases {
		assert.True(t, aliases[i].Equals(&loadedAliases[i]), "alias %d changed: %+v", i, loadedAliases[i])
	}

	matches, history := sampleLedger()
	require.NoError(t, store.SaveLedger(ctx, matches, history))

	loadedMatches, err := store.LoadMatches(ctx)
	require.NoError(t, err)
	require.Len(t, loadedMatches, 1)
	assert.True(t, matches[0].Equals(&loadedMatches[0]), "match changed: %+v", loadedMatches[0])

	loadedHistory, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, loadedHistory, 1)
	assert.True(t, history[0].Equals(&loadedHistory[0]), "history changed: %+v", loadedHistory[0])
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	assertRoundTrip(t, NewMemoryStore())
}

func TestMemoryStore_CopiesOnSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	matches, history := sampleLedger()
	require.NoError(t, store.SaveLedger(ctx, matches, history))

	matches[0].BankEntries[0].ID = "mutated"
	history[0].Snapshot.BankEntryIDs[0] = "mutated"

	loaded, err := store.LoadMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B1", loaded[0].BankEntries[0].ID)

	loadedHistory, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B1", loadedHistory[0].Snapshot.BankEntryIDs[0])
}

func TestJSONFileStore_RoundTrip(t *testing.T) {
	store, err := NewJSONFileStore(t.TempDir())
	require.NoError(t, err)
	assertRoundTrip(t, store)
}

func TestJSONFileStore_AbsentFilesAreEmpty(t *testing.T) {
	ctx := context.Background()
	store, err := NewJSONFileStore(filepath.Join(t.TempDir(), "nested", "data"))
	require.NoError(t, err)

	aliases, err := store.LoadAliases(ctx)
	require.NoError(t, err)
	assert.Empty(t, aliases)

	matches, err := store.LoadMatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, matches)

	history, err := store.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestJSONFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aliases.json"), []byte("{not json"), 0644))

	store, err := NewJSONFileStore(dir)
	require.NoError(t, err)

	_, err = store.LoadAliases(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageRead))
}

func TestJSONFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONFileStore(dir)
	require.NoError(t, err)

	matches, history := sampleLedger()
	require.NoError(t, store.SaveLedger(context.Background(), matches, history))
	require.NoError(t, store.SaveAliases(context.Background(), sampleAliases()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"aliases.json", "matches.json", "history.json"}, names)
}

func TestNewJSONFileStore_RequiresPath(t *testing.T) {
	_, err := NewJSONFileStore("")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	dsn := os.Getenv("RECONCILER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RECONCILER_TEST_POSTGRES_DSN not set")
	}

	store, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()

	assertRoundTrip(t, store)
}

func TestNewPostgresStore_RequiresDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingConfig))
}
