package cmd

import (
	"fmt"
	"strconv"

	"counterparty-reconciliation/internal/aliases"
	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/internal/parsers"
	"counterparty-reconciliation/internal/reporter"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
)

func newAliasCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage counterparty aliases",
		Long: `Register, import, remove and inspect the alternative names under which
an entity appears on bank statements.`,
	}

	cmd.AddCommand(
		newAliasRegisterCommand(a),
		newAliasImportCommand(a),
		newAliasRemoveCommand(a),
		newAliasListCommand(a),
		newAliasExportCommand(a),
		newAliasResolveCommand(a),
		newAliasConflictsCommand(a),
		newAliasSuggestCommand(a),
	)
	return cmd
}

func newAliasRegisterCommand(a *app) *cobra.Command {
	var entityID, entityName, alias string

	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Register an alias for an entity",
		Example: `  reconciler alias register --entity-id CUST001 --entity-name 客户A有限公司 --alias 客户A`,
		Args:    cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			registered, err := a.service.Aliases().RegisterAlias(cmd.Context(), entityID, entityName, alias, a.actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered alias %q for %s (%s)\n", registered.Alias, registered.EntityID, registered.EntityName)
			return nil
		}),
	}

	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id (required)")
	cmd.Flags().StringVar(&entityName, "entity-name", "", "canonical entity name (required)")
	cmd.Flags().StringVar(&alias, "alias", "", "alias text (required)")
	cmd.MarkFlagRequired("entity-id")
	cmd.MarkFlagRequired("entity-name")
	cmd.MarkFlagRequired("alias")
	return cmd
}

func newAliasImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Register aliases from a CSV file",
		Long: `Import registers every row of a CSV file with entity_id, entity_name and
alias columns. Files written by 'alias export' can be imported as they are.
Failing rows are reported and the rest are still registered.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			op := logger.NewOperationLogger("alias_import", a.log).WithField("file", args[0])

			items, stats, err := parsers.NewAliasBatchParser(a.parseConfig()).ParseFile(cmd.Context(), args[0])
			if err != nil {
				op.Error(err, "Alias import failed")
				return err
			}
			a.reportSkippedRows(args[0], stats)
			op.Step("parsed")

			result := a.service.Aliases().RegisterAliasesBatch(cmd.Context(), items, a.actor())
			op.WithField("registered", result.Succeeded).WithField("failed", result.Failed).Success("Alias import finished")

			if err := a.render(a.reports.BatchReport(result)); err != nil {
				return err
			}
			if result.Failed > 0 {
				return result.Summary()
			}
			return nil
		}),
	}
}

func newAliasRemoveCommand(a *app) *cobra.Command {
	var entityID, alias string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an alias from an entity",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			removed, err := a.service.Aliases().RemoveAlias(cmd.Context(), entityID, alias)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(a.out, "Removed alias %q from %s\n", alias, entityID)
			} else {
				fmt.Fprintf(a.out, "No alias %q registered for %s\n", alias, entityID)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id (required)")
	cmd.Flags().StringVar(&alias, "alias", "", "alias text (required)")
	cmd.MarkFlagRequired("entity-id")
	cmd.MarkFlagRequired("alias")
	return cmd
}

func newAliasListCommand(a *app) *cobra.Command {
	var entityID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered aliases in registration order",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			return a.render(a.reports.AliasReport(filterAliasRows(a.service.Aliases().ExportAliases(), entityID)))
		}),
	}

	cmd.Flags().StringVar(&entityID, "entity-id", "", "only list aliases of this entity")
	return cmd
}

func newAliasExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export all aliases as CSV",
		Long: `Export writes the alias table as CSV unless --format is given, ready to
be edited in a spreadsheet and imported again.`,
		Args: cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			generator := a.reports
			if !cmd.Flags().Changed("format") && a.settings.Report.Format == reporter.FormatConsole {
				csvConfig := *a.settings.Report
				csvConfig.Format = reporter.FormatCSV
				g, err := reporter.NewSafeReportGenerator(&csvConfig, a.log)
				if err != nil {
					return err
				}
				generator = g
			}
			return a.renderWith(generator, generator.AliasReport(a.service.Aliases().ExportAliases()))
		}),
	}
}

func newAliasResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "resolve NAME...",
		Short:   "Show which entity each name resolves to",
		Example: `  reconciler alias resolve 客户A有限责任公司 "BETA IND"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			entries := make([]models.BankEntry, 0, len(args))
			for i, name := range args {
				entries = append(entries, models.BankEntry{ID: strconv.Itoa(i + 1), CounterpartyName: name})
			}

			result, err := a.service.ResolveStatement(entries)
			if err != nil {
				return err
			}
			return a.render(a.reports.ResolutionReport(result))
		}),
	}
}

func newAliasConflictsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List aliases claimed by more than one entity",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			return a.render(a.reports.ConflictReport(a.service.Aliases().DetectConflicts()))
		}),
	}
}

func newAliasSuggestCommand(a *app) *cobra.Command {
	var entityID, bankFile string

	cmd := &cobra.Command{
		Use:   "suggest [NAME...]",
		Short: "Suggest new aliases for an entity",
		Long: `Suggest scores candidate names against the entity's canonical name and
lists those at or above the similarity threshold that are not yet aliases.
Candidates come from the arguments and from the counterparty column of
--bank-file.`,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			index := a.service.Aliases()
			canonical, ok := index.EntityName(entityID)
			if !ok {
				return errors.ValidationError(errors.CodeInvalidValue, "entity-id", entityID,
					fmt.Errorf("entity has no registered aliases")).
					WithSuggestion("register one alias for the entity first")
			}

			candidates := append([]string{}, args...)
			if bankFile != "" {
				entries, err := a.loadBankEntries(cmd, bankFile)
				if err != nil {
					return err
				}
				for _, e := range entries {
					candidates = append(candidates, e.CounterpartyName)
				}
			}

			threshold := a.settings.Matching.SimilarityThreshold
			suggestions, err := index.SuggestAliases(canonical, candidates, threshold)
			if err != nil {
				return err
			}
			return a.render(suggestionReport(entityID, canonical, suggestions))
		}),
	}

	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity to suggest aliases for (required)")
	cmd.Flags().StringVarP(&bankFile, "bank-file", "b", "", "bank statement CSV to take candidate names from")
	cmd.MarkFlagRequired("entity-id")
	return cmd
}

type suggestion struct {
	EntityID   string  `json:"entity_id"`
	EntityName string  `json:"entity_name"`
	Candidate  string  `json:"candidate"`
	Similarity float64 `json:"similarity"`
}

func suggestionReport(entityID, canonical string, names []string) *reporter.Report {
	report := &reporter.Report{
		Title:   "Alias Suggestions for " + canonical,
		Columns: []string{"Candidate", "Similarity"},
	}
	data := make([]suggestion, 0, len(names))
	for _, name := range names {
		score := aliases.Similarity(canonical, name)
		data = append(data, suggestion{EntityID: entityID, EntityName: canonical, Candidate: name, Similarity: score})
		report.Rows = append(report.Rows, []string{name, strconv.FormatFloat(score, 'f', 3, 64)})
	}
	report.Data = data
	report.Summary = []reporter.SummaryLine{{Label: "Suggestions", Value: strconv.Itoa(len(names))}}
	return report
}

func filterAliasRows(rows []models.AliasExportRow, entityID string) []models.AliasExportRow {
	if entityID == "" {
		return rows
	}
	filtered := make([]models.AliasExportRow, 0, len(rows))
	for _, row := range rows {
		if row.EntityID == entityID {
			filtered = append(filtered, row)
		}
	}
	return filtered
}
