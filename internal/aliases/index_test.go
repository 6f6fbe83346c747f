package aliases

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/internal/storage/mocks"
	"counterparty-reconciliation/pkg/errors"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)

func newTestIndex(t *testing.T, store storage.AliasStore) *Index {
	t.Helper()
	config := DefaultIndexConfig()
	config.Clock = func() time.Time { return fixedTime }

	ix, err := NewIndex(context.Background(), store, config)
	require.NoError(t, err)
	return ix
}

func TestRegisterAndResolveByAlias(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	registered, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)
	assert.Equal(t, fixedTime, registered.CreatedAt)
	assert.Equal(t, "alice", registered.CreatedBy)

	result, err := ix.Resolve("客户A", DefaultSimilarityThreshold)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "CUST001", result.EntityID)
	assert.Equal(t, MatchAlias, result.MatchType)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestResolve_FuzzyAgainstDisplayName(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)

	result, err := ix.Resolve("客户A有限责任公司", 0.7)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "CUST001", result.EntityID)
	assert.Equal(t, MatchFuzzy, result.MatchType)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
	assert.InDelta(t, 0.875, result.Confidence, 1e-9)
	assert.Equal(t, "客户A有限公司", result.MatchedText)
}

func TestResolve_ExactDisplayName(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "CUST002", "Beta Industrial Co.", "BETA IND", "bob")
	require.NoError(t, err)

	result, err := ix.Resolve("  beta industrial co. ", 0.7)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, MatchExact, result.MatchType)
	assert.Equal(t, "CUST002", result.EntityID)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestResolve_NoCandidate(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)

	tests := []struct {
		name      string
		raw       string
		threshold float64
	}{
		{"unrelated name", "Gamma Logistics", 0.7},
		{"empty input", "", 0.7},
		{"whitespace input", "   ", 0.0},
		{"threshold above best score", "客户A有限责任公司", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ix.Resolve(tt.raw, tt.threshold)
			require.NoError(t, err)
			assert.Nil(t, result)
		})
	}
}

func TestResolve_InvalidThreshold(t *testing.T) {
	ix := newTestIndex(t, storage.NewMemoryStore())

	for _, threshold := range []float64{-0.1, 1.5} {
		_, err := ix.Resolve("anything", threshold)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeOutOfRange))
	}
}

func TestResolve_TieKeepsEarliestAlias(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "E1", "Entity One", "abcx", "alice")
	require.NoError(t, err)
	_, err = ix.RegisterAlias(ctx, "E2", "Entity Two", "abcy", "alice")
	require.NoError(t, err)

	result, err := ix.Resolve("abcz", 0.5)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "E1", result.EntityID)
	assert.Equal(t, "abcx", result.MatchedText)
}

func TestRegisterAlias_Conflict(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ix := newTestIndex(t, store)

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)

	_, err = ix.RegisterAlias(ctx, "CUST002", "客户B有限公司", " 客户a ", "bob")
	require.Error(t, err)
	assert.True(t, errors.IsAliasConflict(err))

	persisted, err := store.LoadAliases(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "CUST001", persisted[0].EntityID)

	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.ListAliasesForEntity("CUST002"))
	assert.Empty(t, ix.DetectConflicts())
}

func TestRegisterAlias_Duplicate(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)

	_, err = ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateAlias(err))
	assert.Equal(t, 1, ix.Len())
}

func TestRegisterAlias_Validation(t *testing.T) {
	ix := newTestIndex(t, storage.NewMemoryStore())

	tests := []struct {
		name     string
		entityID string
		entity   string
		alias    string
		field    string
	}{
		{"missing entity id", " ", "Name", "alias", "entity_id"},
		{"missing entity name", "E1", "", "alias", "entity_name"},
		{"missing alias", "E1", "Name", "\t", "alias"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ix.RegisterAlias(context.Background(), tt.entityID, tt.entity, tt.alias, "alice")
			require.Error(t, err)
			rerr, ok := errors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, errors.CategoryValidation, rerr.Category)
			assert.Equal(t, tt.field, rerr.Context["field"])
		})
	}
	assert.Equal(t, 0, ix.Len())
}

func TestRegisterAlias_SaveFailureLeavesIndexUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	store := mocks.NewMockAliasStore(ctrl)
	store.EXPECT().LoadAliases(gomock.Any()).Return(nil, nil)
	store.EXPECT().SaveAliases(gomock.Any(), gomock.Len(1)).Return(nil)
	store.EXPECT().SaveAliases(gomock.Any(), gomock.Len(2)).
		Return(errors.StorageError(errors.CodeStorageWrite, storage.RecordSetAliases, stderrors.New("disk full")))

	ix := newTestIndex(t, store)

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)

	_, err = ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "A公司", "alice")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageWrite))

	assert.Equal(t, []string{"客户A"}, ix.ListAliasesForEntity("CUST001"))
	result, err := ix.Resolve("A公司", 0.99)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestNewIndex_LoadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockAliasStore(ctrl)
	store.EXPECT().LoadAliases(gomock.Any()).Return(nil, stderrors.New("connection refused"))

	_, err := NewIndex(context.Background(), store, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageRead))
}

func TestNewIndex_InvalidConfig(t *testing.T) {
	_, err := NewIndex(context.Background(), storage.NewMemoryStore(), &IndexConfig{SimilarityThreshold: 2})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestRegisterAliasesBatch(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)

	items := []BatchItem{
		{EntityID: "CUST001", EntityName: "客户A有限公司", Alias: "A公司"},
		{EntityID: "CUST002", EntityName: "客户B有限公司", Alias: "客户A"},
		{EntityID: "CUST002", EntityName: "客户B有限公司", Alias: "客户B"},
		{EntityID: "CUST001", EntityName: "客户A有限公司", Alias: "客户A"},
		{EntityID: "", EntityName: "Nobody", Alias: "ghost"},
	}

	result := ix.RegisterAliasesBatch(ctx, items, "importer")

	assert.Equal(t, len(items), result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, result.Total, result.Succeeded+result.Failed)
	require.Len(t, result.Errors, 3)

	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, errors.CodeAliasConflict, result.Errors[0].Err.Code)
	assert.Equal(t, 3, result.Errors[1].Index)
	assert.Equal(t, errors.CodeDuplicateAlias, result.Errors[1].Err.Code)
	assert.Equal(t, 4, result.Errors[2].Index)
	assert.Equal(t, errors.CategoryValidation, result.Errors[2].Err.Category)

	summary := result.Summary()
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByCategory[errors.CategoryAlias])

	assert.Equal(t, []string{"客户A", "A公司"}, ix.ListAliasesForEntity("CUST001"))
	assert.Equal(t, []string{"客户B"}, ix.ListAliasesForEntity("CUST002"))
	assert.Empty(t, ix.DetectConflicts())
}

func TestRemoveAlias(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ix := newTestIndex(t, store)

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)
	_, err = ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "A公司", "alice")
	require.NoError(t, err)

	removed, err := ix.RemoveAlias(ctx, "CUST002", "客户A")
	require.NoError(t, err)
	assert.False(t, removed, "another entity cannot remove the alias")

	removed, err = ix.RemoveAlias(ctx, "CUST001", " 客户a ")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = ix.RemoveAlias(ctx, "CUST001", "客户A")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []string{"A公司"}, ix.ListAliasesForEntity("CUST001"))

	persisted, err := store.LoadAliases(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "A公司", persisted[0].Alias)

	result, err := ix.Resolve("客户A", 0.99)
	require.NoError(t, err)
	assert.Nil(t, result)

	_, err = ix.RegisterAlias(ctx, "CUST002", "客户B有限公司", "客户A", "bob")
	require.NoError(t, err, "a removed alias can be claimed by another entity")
}

func TestDetectConflicts_OutOfBandWrites(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveAliases(ctx, []models.CounterpartyAlias{
		{EntityID: "CUST001", EntityName: "客户A有限公司", Alias: "客户A", CreatedAt: fixedTime},
		{EntityID: "CUST002", EntityName: "客户B有限公司", Alias: "客户B", CreatedAt: fixedTime},
		{EntityID: "CUST003", EntityName: "客户A贸易", Alias: "客户a ", CreatedAt: fixedTime},
		{EntityID: "CUST001", EntityName: "客户A有限公司", Alias: "客户A", CreatedAt: fixedTime},
	}))

	ix := newTestIndex(t, store)
	conflicts := ix.DetectConflicts()

	require.Len(t, conflicts, 1)
	assert.Equal(t, "客户A", conflicts[0].Alias)
	assert.Equal(t, []EntityRef{
		{EntityID: "CUST001", EntityName: "客户A有限公司"},
		{EntityID: "CUST003", EntityName: "客户A贸易"},
	}, conflicts[0].Entities)

	result, err := ix.Resolve("客户A", 0.7)
	require.NoError(t, err)
	assert.Equal(t, "CUST001", result.EntityID, "first registered owner wins lookups")
}

func TestSuggestAliases(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A有限", "alice")
	require.NoError(t, err)

	candidates := []string{
		"客户A有限责任公司",
		"客户A有限公司",
		"客户A有限",
		"Gamma Logistics",
		" 客户A有限公司(北京) ",
		"客户A有限责任公司",
	}

	suggestions, err := ix.SuggestAliases("客户A有限公司", candidates, 0.7)
	require.NoError(t, err)
	assert.Equal(t, []string{"客户A有限责任公司", "客户A有限公司(北京)"}, suggestions)

	_, err = ix.SuggestAliases("客户A有限公司", candidates, -1)
	assert.True(t, errors.IsCode(err, errors.CodeOutOfRange))
}

func TestExportAliases(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, storage.NewMemoryStore())

	_, err := ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)
	_, err = ix.RegisterAlias(ctx, "CUST002", "Beta Industrial Co.", "BETA IND", "bob")
	require.NoError(t, err)

	rows := ix.ExportAliases()
	require.Len(t, rows, 2)
	assert.Equal(t, models.AliasExportRow{
		EntityID:           "CUST001",
		EntityName:         "客户A有限公司",
		Alias:              "客户A",
		CreatedAtFormatted: "2024-05-06 09:30:00",
		CreatedBy:          "alice",
	}, rows[0])
	assert.Equal(t, "BETA IND", rows[1].Alias)
	assert.Len(t, rows[1].Values(), len(models.ExportColumns))
}

func TestIndex_ReloadFromStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := storage.NewJSONFileStore(dir)
	require.NoError(t, err)
	ix := newTestIndex(t, store)

	_, err = ix.RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)
	_, err = ix.RegisterAlias(ctx, "CUST002", "Beta Industrial Co.", "BETA IND", "bob")
	require.NoError(t, err)

	reopened, err := storage.NewJSONFileStore(dir)
	require.NoError(t, err)
	reloaded := newTestIndex(t, reopened)

	before := ix.ListAliases()
	after := reloaded.ListAliases()
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Equals(&after[i]), "alias %d differs after reload", i)
	}

	result, err := reloaded.Resolve("beta ind", 0.7)
	require.NoError(t, err)
	assert.Equal(t, MatchAlias, result.MatchType)
}
