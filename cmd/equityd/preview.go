package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/efreitasn/equityledger/internal/config"
	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/economics"
	"github.com/efreitasn/equityledger/internal/logging"
)

func newPreviewCmd() *cobra.Command {
	var valuation, ticket int64
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the share economics of a listing without creating it",
		Long: `Splits a total valuation into shares using the configured MIN_SHARES and
MAX_SHARES policy. Amounts are integers in minor currency units.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, closer := logging.NewWriter(cmd.ErrOrStderr(), cfg.LogLevel, "")
			defer closer.Close()

			policy := economics.Policy{MinShares: cfg.MinShares, MaxShares: cfg.MaxShares}
			if err := policy.Validate(); err != nil {
				return err
			}
			econ, err := economics.NewConverter(policy, logger).Compute(valuation, ticket)
			if err != nil {
				return err
			}
			printEconomics(cmd.OutOrStdout(), valuation, ticket, econ)
			return nil
		},
	}
	cmd.Flags().Int64Var(&valuation, "valuation", 0, "total valuation in minor units")
	cmd.Flags().Int64Var(&ticket, "ticket", 0, "minimum ticket in minor units")
	_ = cmd.MarkFlagRequired("valuation")
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}

func printEconomics(w io.Writer, valuation, ticket int64, econ economics.Economics) {
	fmt.Fprintf(w, "valuation:       %s\n", domain.FormatMinor(valuation))
	fmt.Fprintf(w, "minimum ticket:  %s\n", domain.FormatMinor(ticket))
	fmt.Fprintf(w, "total shares:    %d\n", econ.TotalShares)
	fmt.Fprintf(w, "price per share: %s\n", domain.FormatMinor(econ.PricePerShare))
	fmt.Fprintf(w, "dust:            %s\n", domain.FormatMinor(econ.Dust))
	if econ.Clamped {
		fmt.Fprintf(w, "clamped:         yes (naive share count %d)\n", econ.NaiveShares)
	}
}
