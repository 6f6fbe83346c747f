// Package config turns viper settings into the typed configurations of the
// store, the reconciliation service, the logger and the reporter.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"counterparty-reconciliation/internal/reconciler"
	"counterparty-reconciliation/internal/reporter"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"

	"github.com/spf13/viper"
)

// Setting keys. Environment variables use the RECONCILER_ prefix with dots
// replaced by underscores, e.g. RECONCILER_STORE_DRIVER.
const (
	KeyStoreDriver         = "store.driver"
	KeyStorePath           = "store.path"
	KeyStoreDSN            = "store.dsn"
	KeySimilarityThreshold = "matching.similarity_threshold"
	KeyAutoApplyConfidence = "matching.auto_apply_confidence"
	KeyConfirmFuzzy        = "matching.confirm_fuzzy"
	KeyDateTolerance       = "matching.date_tolerance_days"
	KeyAmountTolerance     = "matching.amount_tolerance_percent"
	KeyMaxGroupSize        = "matching.max_group_size"
	KeyMinProposalScore    = "matching.min_proposal_score"
	KeyIgnoreWeekends      = "matching.ignore_weekends"
	KeyLogLevel            = "log.level"
	KeyLogFormat           = "log.format"
	KeyLogFile             = "log.file"
	KeyActor               = "actor"
	KeyFormat              = "output.format"
	KeyOutputFile          = "output.file"
	KeyCSVDelimiter        = "output.csv_delimiter"
	KeyMaxRows             = "output.max_rows"
	KeyAliasColumns        = "output.alias_columns"
	KeyStrictInput         = "input.strict"
	KeyVerbose             = "verbose"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverJSON     = "json"
	DriverPostgres = "postgres"
)

// SetDefaults registers the default of every setting on v
func SetDefaults(v *viper.Viper) {
	defaults := reconciler.DefaultConfig()

	v.SetDefault(KeyStoreDriver, DriverJSON)
	v.SetDefault(KeyStorePath, defaultStorePath())
	v.SetDefault(KeyStoreDSN, "")
	v.SetDefault(KeySimilarityThreshold, defaults.SimilarityThreshold)
	v.SetDefault(KeyAutoApplyConfidence, defaults.AutoApplyConfidence)
	v.SetDefault(KeyConfirmFuzzy, defaults.ConfirmFuzzy)
	v.SetDefault(KeyDateTolerance, defaults.Proposals.DateToleranceDays)
	v.SetDefault(KeyAmountTolerance, defaults.Proposals.AmountTolerancePercent)
	v.SetDefault(KeyMaxGroupSize, defaults.Proposals.MaxGroupSize)
	v.SetDefault(KeyMinProposalScore, defaults.Proposals.MinScore)
	v.SetDefault(KeyIgnoreWeekends, defaults.Proposals.IgnoreWeekends)
	v.SetDefault(KeyLogLevel, string(logger.WarnLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyActor, defaultActor())
	v.SetDefault(KeyFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyOutputFile, "")
	v.SetDefault(KeyCSVDelimiter, ",")
	v.SetDefault(KeyMaxRows, 0)
	v.SetDefault(KeyAliasColumns, []string{})
	v.SetDefault(KeyStrictInput, false)
}

// Settings is the validated view of the viper configuration
type Settings struct {
	StoreDriver string
	StorePath   string
	StoreDSN    string

	Matching *reconciler.Config
	Log      *logger.Config
	Report   *reporter.ReportConfig

	Actor       string
	OutputFile  string
	StrictInput bool
	Verbose     bool
}

// Load reads and validates every setting from v
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		StoreDriver: strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreDriver))),
		StorePath:   v.GetString(KeyStorePath),
		StoreDSN:    v.GetString(KeyStoreDSN),
		Actor:       strings.TrimSpace(v.GetString(KeyActor)),
		OutputFile:  v.GetString(KeyOutputFile),
		StrictInput: v.GetBool(KeyStrictInput),
		Verbose:     v.GetBool(KeyVerbose),
	}

	s.Matching = reconciler.DefaultConfig()
	s.Matching.SimilarityThreshold = v.GetFloat64(KeySimilarityThreshold)
	s.Matching.AutoApplyConfidence = v.GetFloat64(KeyAutoApplyConfidence)
	s.Matching.ConfirmFuzzy = v.GetBool(KeyConfirmFuzzy)
	s.Matching.Proposals.DateToleranceDays = v.GetInt(KeyDateTolerance)
	s.Matching.Proposals.AmountTolerancePercent = v.GetFloat64(KeyAmountTolerance)
	s.Matching.Proposals.MaxGroupSize = v.GetInt(KeyMaxGroupSize)
	s.Matching.Proposals.MinScore = v.GetFloat64(KeyMinProposalScore)
	s.Matching.Proposals.IgnoreWeekends = v.GetBool(KeyIgnoreWeekends)
	if err := s.Matching.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", s.Matching, err)
	}

	s.Log = logger.DefaultConfig()
	s.Log.Level = logger.Level(strings.ToLower(v.GetString(KeyLogLevel)))
	s.Log.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))
	if s.Verbose {
		s.Log.Level = logger.DebugLevel
	}
	if file := v.GetString(KeyLogFile); file != "" {
		s.Log.Output = logger.FileOutput
		s.Log.File = file
	}
	if err := s.Log.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", s.Log.Level, err)
	}

	report, err := loadReportConfig(v)
	if err != nil {
		return nil, err
	}
	s.Report = report

	if s.Actor == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, KeyActor, "", nil).
			WithSuggestion("pass --actor or set RECONCILER_ACTOR")
	}

	switch s.StoreDriver {
	case DriverMemory:
	case DriverJSON:
		if strings.TrimSpace(s.StorePath) == "" {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, KeyStorePath, "", nil).
				WithSuggestion("pass --store-path with the data directory")
		}
	case DriverPostgres:
		if strings.TrimSpace(s.StoreDSN) == "" {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, KeyStoreDSN, "", nil).
				WithSuggestion("pass --store-dsn or set RECONCILER_STORE_DSN")
		}
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyStoreDriver, s.StoreDriver,
			fmt.Errorf("must be memory, json or postgres"))
	}

	return s, nil
}

func loadReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	report := reporter.DefaultReportConfig()

	format, err := reporter.ParseOutputFormat(v.GetString(KeyFormat))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyFormat, v.GetString(KeyFormat), err)
	}
	report.Format = format

	delimiter := []rune(v.GetString(KeyCSVDelimiter))
	if len(delimiter) != 1 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyCSVDelimiter, v.GetString(KeyCSVDelimiter),
			fmt.Errorf("delimiter must be a single character"))
	}
	report.CSVDelimiter = delimiter[0]
	report.MaxRows = v.GetInt(KeyMaxRows)
	report.AliasColumns = v.GetStringSlice(KeyAliasColumns)

	if err := report.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output", report.Format, err)
	}
	return report, nil
}

// OpenStore creates the configured store
func (s *Settings) OpenStore(ctx context.Context) (storage.Store, error) {
	switch s.StoreDriver {
	case DriverMemory:
		return storage.NewMemoryStore(), nil
	case DriverJSON:
		store, err := storage.NewJSONFileStore(s.StorePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres:
		store, err := storage.NewPostgresStore(ctx, s.StoreDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyStoreDriver, s.StoreDriver, nil)
	}
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "reconciler")
	}
	return ".reconciler"
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "reconciler"
}
