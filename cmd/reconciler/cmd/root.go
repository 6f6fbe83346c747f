package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"counterparty-reconciliation/cmd/reconciler/config"
	"counterparty-reconciliation/internal/reconciler"
	"counterparty-reconciliation/internal/reporter"
	"counterparty-reconciliation/internal/storage"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// app carries what every command needs once the configuration is loaded
type app struct {
	v        *viper.Viper
	cfgFile  string
	settings *config.Settings
	store    storage.Store
	service  *reconciler.ReconciliationService
	reports  *reporter.SafeReportGenerator
	log      logger.Logger
	out      io.Writer
	errOut   io.Writer
}

// NewRootCommand builds the command tree with its own viper instance
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Counterparty alias and bank reconciliation tool",
		Long: `Reconciler keeps a table of counterparty aliases, resolves the payer
names on bank statements to known entities, records matches between bank
entries and ledger records, and reports what is still open per entity.

Examples:
  reconciler alias register --entity-id CUST001 --entity-name 客户A有限公司 --alias 客户A
  reconciler resolve --bank-file statement.csv
  reconciler match create --bank-file statement.csv --ledger-file orders.csv --bank-ids B1 --record-ids O1,O2
  reconciler balance --ledger-file orders.csv --open-only --format json`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (optional)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.StringP("format", "f", "console", "output format: console, json, csv")
	flags.StringP("output", "o", "", "output file path (default: stdout)")
	flags.String("actor", "", "name recorded on aliases, matches and history")
	flags.String("store-driver", "", "store driver: memory, json, postgres")
	flags.String("store-path", "", "data directory for the json store")
	flags.String("store-dsn", "", "connection string for the postgres store")
	flags.Float64("similarity-threshold", 0, "minimum fuzzy score for a candidate entity (0.0-1.0)")
	flags.Float64("auto-apply-confidence", 0, "confidence at which a resolution needs no confirmation (0.0-1.0)")
	flags.Bool("confirm-fuzzy", true, "always ask for confirmation of fuzzy resolutions")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")
	flags.Bool("strict", false, "stop at the first invalid row of an input file")

	bindings := map[string]string{
		config.KeyVerbose:             "verbose",
		config.KeyFormat:              "format",
		config.KeyOutputFile:          "output",
		config.KeyActor:               "actor",
		config.KeyStoreDriver:         "store-driver",
		config.KeyStorePath:           "store-path",
		config.KeyStoreDSN:            "store-dsn",
		config.KeySimilarityThreshold: "similarity-threshold",
		config.KeyAutoApplyConfidence: "auto-apply-confidence",
		config.KeyConfirmFuzzy:        "confirm-fuzzy",
		config.KeyLogLevel:            "log-level",
		config.KeyLogFormat:           "log-format",
		config.KeyStrictInput:         "strict",
	}
	for key, flag := range bindings {
		a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newAliasCommand(a),
		newMatchCommand(a),
		newResolveCommand(a),
		newBalanceCommand(a),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	return NewCLIErrorHandler(os.Stderr).HandleError(err)
}

// open loads the configuration, installs the logger and opens the service
func (a *app) open(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", a.cfgFile, err).
				WithSuggestion("check the config file path and syntax")
		}
	}
	a.v.SetEnvPrefix("RECONCILER")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	settings, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.settings = settings

	log, err := logger.NewLogger(settings.Log)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", settings.Log.File, err)
	}
	logger.SetGlobalLogger(log)
	a.log = log.WithComponent("cli")
	if a.cfgFile != "" {
		a.log.WithField("config_file", a.v.ConfigFileUsed()).Debug("Using config file")
	}

	reports, err := reporter.NewSafeReportGenerator(settings.Report, log)
	if err != nil {
		return err
	}
	a.reports = reports

	ctx := cmd.Context()
	store, err := settings.OpenStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	service, err := reconciler.Open(ctx, store, settings.Matching)
	if err != nil {
		store.Close()
		a.store = nil
		return err
	}
	a.service = service

	a.log.WithFields(logger.Fields{
		"command": cmd.CommandPath(),
		"driver":  settings.StoreDriver,
		"actor":   settings.Actor,
	}).Debug("Service ready")
	return nil
}

// runE wraps a command body so the store is closed whether it fails or not
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := a.close(); err == nil {
			err = cerr
		}
		return err
	}
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, "connection", err)
	}
	return nil
}

// render writes the report to --output when set, else to stdout
func (a *app) render(report *reporter.Report) error {
	return a.renderWith(a.reports, report)
}

func (a *app) renderWith(generator *reporter.SafeReportGenerator, report *reporter.Report) error {
	if a.settings.OutputFile == "" {
		return generator.WriteSafely(report, a.out)
	}

	path, err := generator.WriteFile(report, a.settings.OutputFile)
	if err != nil {
		return err
	}
	if path != a.settings.OutputFile {
		fmt.Fprintf(a.errOut, "Warning: could not write to %s, report saved to %s\n", a.settings.OutputFile, path)
	} else if a.settings.Verbose {
		fmt.Fprintf(a.errOut, "Report written to %s\n", path)
	}
	return nil
}

func (a *app) actor() string {
	return a.settings.Actor
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
