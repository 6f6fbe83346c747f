package cmd

import (
	"counterparty-reconciliation/internal/models"

	"github.com/spf13/cobra"
)

func newResolveCommand(a *app) *cobra.Command {
	var bankFile string
	var creditsOnly bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the counterparty of every bank statement entry",
		Long: `Resolve looks up the counterparty name of each entry (or its description
when the counterparty column is blank) in the alias table and reports the
candidate entity, how it was found and whether a person has to confirm it.
Nothing is written.`,
		Example: `  reconciler resolve --bank-file statement.csv --format json`,
		Args:    cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			entries, err := a.loadBankEntries(cmd, bankFile)
			if err != nil {
				return err
			}
			if creditsOnly {
				credits := make([]models.BankEntry, 0, len(entries))
				for _, e := range entries {
					if e.IsCredit() {
						credits = append(credits, e)
					}
				}
				entries = credits
			}

			result, err := a.service.ResolveStatement(entries)
			if err != nil {
				return err
			}
			return a.render(a.reports.ResolutionReport(result))
		}),
	}

	cmd.Flags().StringVarP(&bankFile, "bank-file", "b", "", "bank statement CSV (required)")
	cmd.Flags().BoolVar(&creditsOnly, "credits-only", false, "skip outgoing payments")
	cmd.MarkFlagRequired("bank-file")
	return cmd
}
