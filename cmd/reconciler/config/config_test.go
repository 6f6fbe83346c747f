package config

import (
	"context"
	"path/filepath"
	"testing"

	"counterparty-reconciliation/internal/reporter"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, overrides map[string]interface{}) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyStorePath, t.TempDir())
	v.Set(KeyActor, "alice")
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(t, nil))
	require.NoError(t, err)

	assert.Equal(t, DriverJSON, s.StoreDriver)
	assert.Equal(t, "alice", s.Actor)
	assert.Equal(t, 0.7, s.Matching.SimilarityThreshold)
	assert.Equal(t, 0.95, s.Matching.AutoApplyConfidence)
	assert.True(t, s.Matching.ConfirmFuzzy)
	assert.Equal(t, 30, s.Matching.Proposals.DateToleranceDays)
	assert.Equal(t, 4, s.Matching.Proposals.MaxGroupSize)
	assert.Equal(t, 0.8, s.Matching.Proposals.MinScore)
	assert.Equal(t, logger.WarnLevel, s.Log.Level)
	assert.Equal(t, logger.StderrOutput, s.Log.Output)
	assert.Equal(t, reporter.FormatConsole, s.Report.Format)
	assert.Equal(t, ',', s.Report.CSVDelimiter)
}

func TestLoad_Overrides(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "reconciler.log")
	s, err := Load(newViper(t, map[string]interface{}{
		KeyStoreDriver:         "MEMORY",
		KeySimilarityThreshold: 0.85,
		KeyConfirmFuzzy:        false,
		KeyDateTolerance:       10,
		KeyAmountTolerance:     0.5,
		KeyIgnoreWeekends:      true,
		KeyLogFormat:           "json",
		KeyLogFile:             logFile,
		KeyVerbose:             true,
		KeyFormat:              "csv",
		KeyCSVDelimiter:        ";",
		KeyAliasColumns:        []string{"实体编号", "实体名称", "别名", "创建时间", "创建人"},
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, s.StoreDriver)
	assert.Equal(t, 0.85, s.Matching.SimilarityThreshold)
	assert.False(t, s.Matching.ConfirmFuzzy)
	assert.Equal(t, 10, s.Matching.Proposals.DateToleranceDays)
	assert.Equal(t, 0.5, s.Matching.Proposals.AmountTolerancePercent)
	assert.True(t, s.Matching.Proposals.IgnoreWeekends)
	assert.Equal(t, logger.DebugLevel, s.Log.Level, "verbose forces debug logging")
	assert.Equal(t, logger.JSONFormat, s.Log.Format)
	assert.Equal(t, logger.FileOutput, s.Log.Output)
	assert.Equal(t, logFile, s.Log.File)
	assert.Equal(t, reporter.FormatCSV, s.Report.Format)
	assert.Equal(t, ';', s.Report.CSVDelimiter)
	assert.Len(t, s.Report.AliasColumns, 5)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
		code      errors.ErrorCode
	}{
		{"threshold above one", map[string]interface{}{KeySimilarityThreshold: 1.5}, errors.CodeInvalidConfig},
		{"negative confidence", map[string]interface{}{KeyAutoApplyConfidence: -0.1}, errors.CodeInvalidConfig},
		{"group size zero", map[string]interface{}{KeyMaxGroupSize: 0}, errors.CodeInvalidConfig},
		{"negative date tolerance", map[string]interface{}{KeyDateTolerance: -3}, errors.CodeInvalidConfig},
		{"unknown driver", map[string]interface{}{KeyStoreDriver: "mongo"}, errors.CodeInvalidConfig},
		{"json without path", map[string]interface{}{KeyStorePath: " "}, errors.CodeMissingConfig},
		{"postgres without dsn", map[string]interface{}{KeyStoreDriver: "postgres"}, errors.CodeMissingConfig},
		{"blank actor", map[string]interface{}{KeyActor: ""}, errors.CodeMissingConfig},
		{"bad log level", map[string]interface{}{KeyLogLevel: "loud"}, errors.CodeInvalidConfig},
		{"bad format", map[string]interface{}{KeyFormat: "xml"}, errors.CodeInvalidConfig},
		{"long delimiter", map[string]interface{}{KeyCSVDelimiter: ";;"}, errors.CodeInvalidConfig},
		{"short alias columns", map[string]interface{}{KeyAliasColumns: []string{"a"}}, errors.CodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.overrides))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), "got %v", err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := Load(newViper(t, map[string]interface{}{KeyStoreDriver: DriverMemory}))
	require.NoError(t, err)
	store, err := s.OpenStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, store)

	dir := filepath.Join(t.TempDir(), "data")
	s, err = Load(newViper(t, map[string]interface{}{KeyStorePath: dir}))
	require.NoError(t, err)
	store, err = s.OpenStore(ctx)
	require.NoError(t, err)
	require.IsType(t, &storage.JSONFileStore{}, store)
	assert.Equal(t, dir, store.(*storage.JSONFileStore).Dir())
	assert.NoError(t, store.Close())
}
