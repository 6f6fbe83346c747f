package cmd

import (
	"counterparty-reconciliation/internal/balance"

	"github.com/spf13/cobra"
)

func newBalanceCommand(a *app) *cobra.Command {
	var ledgerFile, entityID string
	var openOnly bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show how much of each entity's ledger total is still unreconciled",
		Long: `Balance groups the ledger records by entity and subtracts the bank money
allocated to them by active matches. Entities are listed largest open
balance first.`,
		Example: `  reconciler balance --ledger-file orders.csv --open-only`,
		Args:    cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			records, err := a.loadLedgerRecords(cmd, ledgerFile)
			if err != nil {
				return err
			}

			entities := a.service.GroupByEntity(records)
			if entityID != "" {
				selected := make([]balance.EntityLedger, 0, 1)
				for _, e := range entities {
					if e.EntityID == entityID {
						selected = append(selected, e)
					}
				}
				entities = selected
			}

			return a.render(a.reports.BalanceReport(a.service.OpenBalances(entities, openOnly)))
		}),
	}

	cmd.Flags().StringVarP(&ledgerFile, "ledger-file", "l", "", "ledger record CSV (required)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "only this entity")
	cmd.Flags().BoolVar(&openOnly, "open-only", false, "hide settled entities")
	cmd.MarkFlagRequired("ledger-file")
	return cmd
}
