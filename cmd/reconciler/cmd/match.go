package cmd

import (
	"fmt"
	"time"

	"counterparty-reconciliation/cmd/reconciler/config"
	"counterparty-reconciliation/internal/ledger"
	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
)

func newMatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Record and inspect matches between bank entries and ledger records",
	}

	cmd.AddCommand(
		newMatchCreateCommand(a),
		newMatchExtendCommand(a),
		newMatchUndoCommand(a),
		newMatchListCommand(a),
		newMatchHistoryCommand(a),
		newMatchProposeCommand(a),
	)
	return cmd
}

func newMatchCreateCommand(a *app) *cobra.Command {
	var members memberFlags
	var notes string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Match bank entries against ledger records",
		Long: `Create records a match. One bank entry may settle one or more ledger
records, or several bank entries may settle one ledger record.

Examples:
  # one payment covering two orders
  reconciler match create -b statement.csv -l orders.csv --bank-ids B1 --record-ids O1,O2

  # two instalments for one order
  reconciler match create -b statement.csv -l orders.csv --bank-ids B2,B3 --record-ids O3`,
		Args: cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if len(members.bankIDs) == 0 || len(members.recordIDs) == 0 {
				return errors.ValidationError(errors.CodeMissingField, "bank-ids/record-ids", nil, nil).
					WithSuggestion("pass at least one --bank-ids and one --record-ids")
			}
			if len(members.bankIDs) > 1 && len(members.recordIDs) > 1 {
				return errors.ValidationError(errors.CodeInvalidValue, "bank-ids/record-ids",
					fmt.Sprintf("%d x %d", len(members.bankIDs), len(members.recordIDs)),
					fmt.Errorf("many-to-many matches are not supported")).
					WithSuggestion("split the payment into one-to-many or many-to-one matches")
			}

			op := logger.NewOperationLogger("match_create", a.log)
			entries, records, err := a.loadMembers(cmd, &members)
			if err != nil {
				op.Error(err, "Loading match members failed")
				return err
			}
			op.Step("members loaded")

			var match *models.FlexibleMatch
			if len(entries) == 1 {
				match, err = a.service.SettleBankEntry(cmd.Context(), entries[0], records, notes, a.actor())
			} else {
				match, err = a.service.SettleLedgerRecord(cmd.Context(), entries, records[0], notes, a.actor())
			}
			if err != nil {
				op.Error(err, "Match creation failed")
				return err
			}
			op.WithField("match_id", match.ID).Success("Match created")

			return a.render(a.reports.MatchReport([]models.FlexibleMatch{*match}))
		}),
	}

	members.register(cmd)
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes stored on the match")
	return cmd
}

func newMatchExtendCommand(a *app) *cobra.Command {
	var members memberFlags

	cmd := &cobra.Command{
		Use:   "extend MATCH_ID",
		Short: "Add bank entries or ledger records to a match",
		Long: `Extend adds members to an existing match. Members that already belong to
the match are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			entries, records, err := a.loadMembers(cmd, &members)
			if err != nil {
				return err
			}

			match, err := a.service.ExtendMatch(cmd.Context(), args[0], entries, records, a.actor())
			if err != nil {
				return err
			}
			return a.render(a.reports.MatchReport([]models.FlexibleMatch{*match}))
		}),
	}

	members.register(cmd)
	return cmd
}

func newMatchUndoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo MATCH_ID",
		Short: "Remove a match, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			undone, err := a.service.UndoMatch(cmd.Context(), args[0], a.actor())
			if err != nil {
				return err
			}
			if !undone {
				return errors.MatchNotFoundError(args[0])
			}
			fmt.Fprintf(a.out, "Undid match %s\n", args[0])
			return nil
		}),
	}
}

func newMatchListCommand(a *app) *cobra.Command {
	var kind, since, until string
	var openOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active matches, most recent first",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			filter := ledger.ListFilter{Kind: models.MatchKind(kind)}

			var err error
			if filter.Start, err = parseDateFlag("since", since, false); err != nil {
				return err
			}
			if filter.End, err = parseDateFlag("until", until, true); err != nil {
				return err
			}

			matches, err := a.service.Ledger().ListMatches(filter)
			if err != nil {
				return err
			}
			if openOnly {
				open := matches[:0]
				for _, m := range matches {
					if !m.IsReconciled() {
						open = append(open, m)
					}
				}
				matches = open
			}
			return a.render(a.reports.MatchReport(matches))
		}),
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only this kind: one_to_one, one_to_many, many_to_one")
	cmd.Flags().StringVar(&since, "since", "", "only matches created on or after this date")
	cmd.Flags().StringVar(&until, "until", "", "only matches created on or before this date")
	cmd.Flags().BoolVar(&openOnly, "open", false, "only matches with a non-zero balance")
	return cmd
}

func newMatchHistoryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history [MATCH_ID]",
		Short: "Show the audit trail of one match or of the whole ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			var entries []models.HistoryEntry
			if len(args) == 1 {
				entries = a.service.History(args[0])
			} else {
				entries = a.service.Ledger().History()
			}
			return a.render(a.reports.HistoryReport(entries))
		}),
	}
}

func newMatchProposeCommand(a *app) *cobra.Command {
	var bankFile, ledgerFile string
	var apply, includeUnconfirmed bool

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose matches for a statement by amount and date",
		Long: `Propose resolves the counterparty of each bank entry and looks for open
ledger records of that entity the entry settles: one record of the same
amount, several records adding up to it, or one record paid by several
entries. Entries and records already matched are left out.

Nothing is written unless --apply is given. Proposals whose counterparty
needs confirming are only applied with --include-unconfirmed.`,
		Example: `  reconciler match propose -b statement.csv -l orders.csv
  reconciler match propose -b statement.csv -l orders.csv --date-tolerance 45 --apply`,
		Args: cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			op := logger.NewOperationLogger("match_propose", a.log).
				WithField("bank_file", bankFile).
				WithField("ledger_file", ledgerFile)

			entries, err := a.loadBankEntries(cmd, bankFile)
			if err != nil {
				op.Error(err, "Loading bank entries failed")
				return err
			}
			records, err := a.loadLedgerRecords(cmd, ledgerFile)
			if err != nil {
				op.Error(err, "Loading ledger records failed")
				return err
			}
			op.Step("inputs loaded")

			set, err := a.service.ProposeMatches(entries, records)
			if err != nil {
				op.Error(err, "Proposing matches failed")
				return err
			}
			if !apply {
				op.WithField("proposed", set.Summary.Proposed).Success("Matches proposed")
				return a.render(a.reports.ProposalReport(set))
			}

			created, err := a.service.ApplyProposals(cmd.Context(), set.Proposals, includeUnconfirmed, a.actor())
			if err != nil {
				op.Error(err, "Applying proposals failed")
				if len(created) > 0 {
					fmt.Fprintf(a.errOut, "Warning: %d matches were created before the failure\n", len(created))
				}
				return err
			}
			op.WithField("applied", len(created)).Success("Proposals applied")
			return a.render(a.reports.MatchReport(created))
		}),
	}

	flags := cmd.Flags()
	flags.StringVarP(&bankFile, "bank-file", "b", "", "bank statement CSV (required)")
	flags.StringVarP(&ledgerFile, "ledger-file", "l", "", "ledger record CSV (required)")
	flags.BoolVar(&apply, "apply", false, "create a match for every proposal")
	flags.BoolVar(&includeUnconfirmed, "include-unconfirmed", false, "with --apply, also apply proposals whose counterparty needs confirming")
	flags.Int("date-tolerance", 0, "largest gap in days between a payment and a record")
	flags.Float64("amount-tolerance", 0, "allowed difference between totals, in percent")
	flags.Int("max-group-size", 0, "most entries or records on the grouped side of a proposal")
	flags.Float64("min-score", 0, "lowest score a proposal may have (0.0-1.0)")
	flags.Bool("ignore-weekends", false, "count business days only for the date tolerance")
	cmd.MarkFlagRequired("bank-file")
	cmd.MarkFlagRequired("ledger-file")

	bindings := map[string]string{
		config.KeyDateTolerance:    "date-tolerance",
		config.KeyAmountTolerance:  "amount-tolerance",
		config.KeyMaxGroupSize:     "max-group-size",
		config.KeyMinProposalScore: "min-score",
		config.KeyIgnoreWeekends:   "ignore-weekends",
	}
	for key, flag := range bindings {
		a.v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

// parseDateFlag parses a date flag. A date-only end bound covers the whole day.
func parseDateFlag(name, value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := models.ParseTimeWithFormats(value)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidDate, name, value, err)
	}
	if endOfDay && t.Equal(t.Truncate(24*time.Hour)) {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
