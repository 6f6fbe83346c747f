package reconciler

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"counterparty-reconciliation/internal/aliases"
	"counterparty-reconciliation/internal/matcher"
	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/internal/storage/mocks"
	"counterparty-reconciliation/pkg/errors"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceConfig() *Config {
	config := DefaultConfig()
	ids := 0
	config.Clock = func() time.Time { return time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC) }
	config.NewID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return config
}

func newTestService(t *testing.T, config *Config) *ReconciliationService {
	t.Helper()
	ctx := context.Background()

	svc, err := Open(ctx, storage.NewMemoryStore(), config)
	require.NoError(t, err)

	_, err = svc.Aliases().RegisterAlias(ctx, "CUST001", "客户A有限公司", "客户A", "alice")
	require.NoError(t, err)
	_, err = svc.Aliases().RegisterAlias(ctx, "CUST002", "Beta Industrial Co.", "BETA IND", "alice")
	require.NoError(t, err)
	return svc
}

func entry(id, counterparty string, amount int64) models.BankEntry {
	return models.BankEntry{
		ID:               id,
		Amount:           decimal.NewFromInt(amount),
		Direction:        models.DirectionCredit,
		CounterpartyName: counterparty,
	}
}

func order(id, entity string, amount int64) models.LedgerRecord {
	return models.LedgerRecord{ID: id, EntityID: entity, Kind: models.RecordKindOrder, Amount: decimal.NewFromInt(amount)}
}

func TestResolveBankEntry(t *testing.T) {
	tests := []struct {
		name        string
		configure   func(*Config)
		entry       models.BankEntry
		wantEntity  string
		wantType    aliases.MatchType
		wantConfirm bool
		wantReason  string
	}{
		{
			name:       "alias hit is auto-applicable",
			entry:      entry("B1", "客户A", 100),
			wantEntity: "CUST001",
			wantType:   aliases.MatchAlias,
		},
		{
			name:       "display name hit is auto-applicable",
			entry:      entry("B2", "beta industrial co.", 100),
			wantEntity: "CUST002",
			wantType:   aliases.MatchExact,
		},
		{
			name:        "fuzzy hit below auto-apply confidence",
			entry:       entry("B3", "客户A有限责任公司", 100),
			wantEntity:  "CUST001",
			wantType:    aliases.MatchFuzzy,
			wantConfirm: true,
			wantReason:  ReasonLowConfidence,
		},
		{
			name: "fuzzy hit above auto-apply confidence still confirmed",
			configure: func(c *Config) {
				c.AutoApplyConfidence = 0.8
			},
			entry:       entry("B4", "客户A有限责任公司", 100),
			wantEntity:  "CUST001",
			wantType:    aliases.MatchFuzzy,
			wantConfirm: true,
			wantReason:  ReasonFuzzy,
		},
		{
			name: "fuzzy hit auto-applied when allowed",
			configure: func(c *Config) {
				c.AutoApplyConfidence = 0.8
				c.ConfirmFuzzy = false
			},
			entry:      entry("B5", "客户A有限责任公司", 100),
			wantEntity: "CUST001",
			wantType:   aliases.MatchFuzzy,
		},
		{
			name:        "unknown counterparty",
			entry:       entry("B6", "Gamma Logistics", 100),
			wantConfirm: true,
			wantReason:  ReasonNoCandidate,
		},
		{
			name: "description used when counterparty is blank",
			entry: models.BankEntry{
				ID:          "B7",
				Amount:      decimal.NewFromInt(100),
				Description: "BETA IND",
			},
			wantEntity: "CUST002",
			wantType:   aliases.MatchAlias,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testServiceConfig()
			if tt.configure != nil {
				tt.configure(config)
			}
			svc := newTestService(t, config)

			res, err := svc.ResolveBankEntry(tt.entry)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfirm, res.NeedsConfirmation)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, tt.entry.ID, res.Entry.ID)

			if tt.wantEntity == "" {
				assert.Nil(t, res.Candidate)
				return
			}
			require.NotNil(t, res.Candidate)
			assert.Equal(t, tt.wantEntity, res.Candidate.EntityID)
			assert.Equal(t, tt.wantType, res.Candidate.MatchType)
		})
	}
}

func TestResolveStatement(t *testing.T) {
	svc := newTestService(t, testServiceConfig())

	result, err := svc.ResolveStatement([]models.BankEntry{
		entry("B1", "客户A", 100),
		entry("B2", "客户A有限责任公司", 200),
		entry("B3", "Gamma Logistics", 300),
		entry("B4", "BETA IND", 400),
	})
	require.NoError(t, err)

	require.Len(t, result.Resolutions, 4)
	assert.Equal(t, 2, result.AutoApplicable)
	assert.Equal(t, 1, result.NeedsConfirmation)
	assert.Equal(t, 1, result.Unresolved)
	assert.Equal(t, "B3", result.Resolutions[2].Entry.ID)
}

func TestSettleAndOpenBalances(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testServiceConfig())

	records := []models.LedgerRecord{
		order("O1", "CUST001", 6000),
		order("O2", "CUST001", 8000),
		order("O3", "CUST002", 9600),
		order("O4", "CUST003", 500),
		order("O5", "CUST001", 1000),
	}

	overpaid, err := svc.SettleBankEntry(ctx, entry("B1", "客户A", 15000), records[:2], "", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.MatchOneToMany, overpaid.Kind)

	underpaid, err := svc.SettleLedgerRecord(ctx,
		[]models.BankEntry{entry("B2", "BETA IND", 5000), entry("B3", "BETA IND", 3000)}, records[2], "", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.MatchManyToOne, underpaid.Kind)

	exact, err := svc.SettleBankEntry(ctx, entry("B4", "Gamma", 500), records[3:4], "", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.MatchOneToOne, exact.Kind)

	open := svc.UnreconciledMatches()
	require.Len(t, open, 2)

	entities := svc.GroupByEntity(records)
	require.Len(t, entities, 3)
	assert.Equal(t, "客户A有限公司", entities[0].EntityName)
	assert.Len(t, entities[0].Records, 3)
	assert.Equal(t, "CUST003", entities[2].EntityName, "entities without aliases are named by id")

	balances := svc.OpenBalances(entities, false)
	require.Len(t, balances, 3)
	assert.Equal(t, "CUST002", balances[0].EntityID)
	assert.True(t, balances[0].UnreconciledBalance.Equal(decimal.NewFromInt(1600)))
	assert.Equal(t, "CUST001", balances[1].EntityID, "ties keep first-seen order")
	assert.True(t, balances[1].UnreconciledBalance.Equal(decimal.Zero), "1000 overpayment offsets O5")
	assert.Equal(t, "CUST003", balances[2].EntityID)
	assert.True(t, balances[2].IsSettled())

	onlyOpen := svc.OpenBalances(entities, true)
	require.Len(t, onlyOpen, 1)
	assert.Equal(t, "CUST002", onlyOpen[0].EntityID)

	undone, err := svc.UndoMatch(ctx, overpaid.ID, "alice")
	require.NoError(t, err)
	assert.True(t, undone)

	single := svc.Balance("CUST001", "客户A有限公司", entities[0].Records)
	assert.True(t, single.UnreconciledBalance.Equal(decimal.NewFromInt(15000)))
	assert.Len(t, svc.History(overpaid.ID), 2)
}

func TestExtendMatchThroughService(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testServiceConfig())

	m, err := svc.SettleLedgerRecord(ctx,
		[]models.BankEntry{entry("B1", "BETA IND", 5000), entry("B2", "BETA IND", 3000)},
		order("O1", "CUST002", 9600), "", "alice")
	require.NoError(t, err)

	extended, err := svc.ExtendMatch(ctx, m.ID, []models.BankEntry{entry("B3", "BETA IND", 1600)}, nil, "bob")
	require.NoError(t, err)
	assert.True(t, extended.IsReconciled())
	assert.Empty(t, svc.UnreconciledMatches())

	_, err = svc.ExtendMatch(ctx, "missing", nil, nil, "bob")
	assert.True(t, errors.IsNotFound(err))
}

func TestOpen_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.AutoApplyConfidence = 1.2

	_, err := Open(context.Background(), storage.NewMemoryStore(), config)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOpen_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockStore(ctrl)
	store.EXPECT().LoadAliases(gomock.Any()).Return(nil, nil)
	store.EXPECT().LoadMatches(gomock.Any()).Return(nil, stderrors.New("permission denied"))

	_, err := Open(context.Background(), store, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageRead))
}

func TestNewReconciliationService_RequiresComponents(t *testing.T) {
	_, err := NewReconciliationService(nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func dated(e models.BankEntry, d int) models.BankEntry {
	e.Date = time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC)
	return e
}

func datedOrder(id, entity string, amount int64, d int) models.LedgerRecord {
	r := order(id, entity, amount)
	r.Date = time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC)
	return r
}

func TestProposeAndApplyMatches(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testServiceConfig())

	entries := []models.BankEntry{
		dated(entry("B1", "客户A", 15000), 5),
		dated(entry("B2", "BETA IND", 5000), 6),
		dated(entry("B3", "BETA IND", 4600), 7),
		dated(entry("B4", "客户A有限责任公司", 1000), 8),
		dated(entry("B5", "Gamma Logistics", 300), 8),
	}
	records := []models.LedgerRecord{
		datedOrder("O1", "CUST001", 6000, 4),
		datedOrder("O2", "CUST001", 9000, 5),
		datedOrder("O3", "CUST002", 9600, 1),
		datedOrder("O4", "CUST001", 1000, 7),
	}

	set, err := svc.ProposeMatches(entries, records)
	require.NoError(t, err)
	require.Len(t, set.Proposals, 3)

	assert.Equal(t, models.MatchOneToMany, set.Proposals[0].Kind)
	assert.Equal(t, []string{"O1", "O2"}, set.Proposals[0].LedgerRecordIDs())
	assert.Equal(t, models.MatchManyToOne, set.Proposals[1].Kind)
	assert.Equal(t, []string{"B2", "B3"}, set.Proposals[1].BankEntryIDs())
	assert.Equal(t, []string{"B4"}, set.Proposals[2].BankEntryIDs())
	assert.True(t, set.Proposals[2].NeedsConfirmation, "fuzzy resolutions need confirming")
	require.Len(t, set.UnmatchedEntries, 1)
	assert.Equal(t, "B5", set.UnmatchedEntries[0].ID)

	created, err := svc.ApplyProposals(ctx, set.Proposals, false, "alice")
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "alice", created[0].CreatedBy)
	assert.Contains(t, created[0].Notes, "proposed: exact")
	assert.True(t, created[1].IsReconciled())

	again, err := svc.ProposeMatches(entries, records)
	require.NoError(t, err)
	require.Len(t, again.Proposals, 1, "matched entries and records are not proposed twice")
	assert.Equal(t, []string{"O4"}, again.Proposals[0].LedgerRecordIDs())

	created, err = svc.ApplyProposals(ctx, again.Proposals, true, "alice")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.MatchOneToOne, created[0].Kind)
	assert.Len(t, svc.Ledger().ActiveMatches(), 3)
}

func TestApplyProposals_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testServiceConfig())

	set, err := svc.ProposeMatches(
		[]models.BankEntry{dated(entry("B1", "客户A", 500), 2), dated(entry("B2", "客户A", 700), 2)},
		[]models.LedgerRecord{datedOrder("O1", "CUST001", 500, 2), datedOrder("O2", "CUST001", 700, 2)},
	)
	require.NoError(t, err)
	require.Len(t, set.Proposals, 2)

	broken := set.Proposals
	broken[1].LedgerRecords[0].ID = ""

	created, err := svc.ApplyProposals(ctx, broken, false, "alice")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Len(t, created, 1)
}

func TestApplyProposals_RejectsUnsupportedShapes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		proposal matcher.Proposal
		code     errors.ErrorCode
	}{
		{
			name: "several entries against several records",
			proposal: matcher.Proposal{
				EntityID:      "CUST001",
				BankEntries:   []models.BankEntry{dated(entry("B1", "客户A", 500), 2), dated(entry("B2", "客户A", 500), 2)},
				LedgerRecords: []models.LedgerRecord{datedOrder("O1", "CUST001", 500, 2), datedOrder("O2", "CUST001", 500, 2)},
			},
			code: errors.CodeInvalidValue,
		},
		{
			name: "entries without records",
			proposal: matcher.Proposal{
				EntityID:    "CUST001",
				BankEntries: []models.BankEntry{dated(entry("B1", "客户A", 500), 2), dated(entry("B2", "客户A", 500), 2)},
			},
			code: errors.CodeMissingField,
		},
		{
			name: "records without entries",
			proposal: matcher.Proposal{
				EntityID:      "CUST001",
				LedgerRecords: []models.LedgerRecord{datedOrder("O1", "CUST001", 500, 2)},
			},
			code: errors.CodeMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, testServiceConfig())
			valid := matcher.Proposal{
				EntityID:      "CUST001",
				BankEntries:   []models.BankEntry{dated(entry("B9", "客户A", 800), 2)},
				LedgerRecords: []models.LedgerRecord{datedOrder("O9", "CUST001", 800, 2)},
			}

			created, err := svc.ApplyProposals(ctx, []matcher.Proposal{valid, tt.proposal}, true, "alice")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code))
			require.Len(t, created, 1)
			assert.Equal(t, []string{"O9"}, created[0].LedgerRecordIDs())
			assert.Len(t, svc.Ledger().ActiveMatches(), 1)
		})
	}
}

func TestApplyProposals_DispatchesOnBothSides(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testServiceConfig())

	proposals := []matcher.Proposal{
		{
			EntityID:      "CUST001",
			BankEntries:   []models.BankEntry{dated(entry("B1", "客户A", 1000), 2)},
			LedgerRecords: []models.LedgerRecord{datedOrder("O1", "CUST001", 400, 2), datedOrder("O2", "CUST001", 600, 2)},
		},
		{
			EntityID:      "CUST002",
			BankEntries:   []models.BankEntry{dated(entry("B2", "BETA IND", 300), 2), dated(entry("B3", "BETA IND", 200), 2)},
			LedgerRecords: []models.LedgerRecord{datedOrder("O3", "CUST002", 500, 2)},
		},
	}

	created, err := svc.ApplyProposals(ctx, proposals, true, "alice")
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, models.MatchOneToMany, created[0].Kind)
	assert.Equal(t, []string{"O1", "O2"}, created[0].LedgerRecordIDs())
	assert.True(t, created[0].Balance.IsZero())
	assert.Equal(t, models.MatchManyToOne, created[1].Kind)
	assert.Equal(t, []string{"B2", "B3"}, created[1].BankEntryIDs())
	assert.True(t, created[1].Balance.IsZero())
}

func TestOpen_InvalidProposalConfig(t *testing.T) {
	config := DefaultConfig()
	config.Proposals.MaxGroupSize = 0

	_, err := Open(context.Background(), storage.NewMemoryStore(), config)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
