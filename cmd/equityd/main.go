// Command equityd serves the fractional property share ledger.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "equityd",
		Short: "Fractional property share ledger",
		Long: `equityd lists properties as fixed pools of shares, matches buy and sell
orders for them, and keeps an auditable transaction log of every trade.
Without a subcommand it runs the HTTP server.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		newServeCmd(),
		newHealthcheckCmd(),
		newPreviewCmd(),
		newReconcileCmd(),
	)
	return root
}
