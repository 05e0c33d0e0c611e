package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/efreitasn/equityledger/internal/config"
	"github.com/efreitasn/equityledger/internal/logging"
	"github.com/efreitasn/equityledger/internal/service"
)

func newReconcileCmd() *cobra.Command {
	var propertyID string
	var resume bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay the transaction log against the stored ledger",
		Long: `Replays every transaction of a property (or of all properties) and
compares the result with the stored share positions. With --resume, halted
properties whose ledger reconciles are reopened for trading.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, closer := logging.NewWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFile)
			defer closer.Close()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			reports, err := a.properties.Reconcile(cmd.Context(), propertyID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range reports {
				printReport(out, r)
				if !r.OK() {
					failed++
					continue
				}
				if resume && r.Halted {
					if _, err := a.properties.Resume(cmd.Context(), r.PropertyID); err != nil {
						fmt.Fprintf(out, "  resume failed: %v\n", err)
						failed++
						continue
					}
					fmt.Fprintln(out, "  resumed")
				}
			}
			fmt.Fprintf(out, "%d properties checked, %d inconsistent\n", len(reports), failed)
			if failed > 0 {
				return fmt.Errorf("%d properties failed reconciliation", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&propertyID, "property", "", "reconcile a single property")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume halted properties that reconcile")
	return cmd
}

func printReport(w io.Writer, r service.ReconcileReport) {
	status := "ok"
	if !r.OK() {
		status = "INCONSISTENT"
	}
	fmt.Fprintf(w, "%s: %s (%d transactions)", r.PropertyID, status, r.Transactions)
	if r.Halted {
		fmt.Fprintf(w, " halted: %s", r.HaltReason)
	}
	fmt.Fprintln(w)
	if r.Conservation != "" {
		fmt.Fprintf(w, "  conservation: %s\n", r.Conservation)
	}
	for _, d := range r.Discrepancies {
		fmt.Fprintf(w, "  %s\n", d)
	}
}
