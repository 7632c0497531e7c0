package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
)

var horizonFlag string

// materializeCmd creates due recurrence instances.
var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Create due occurrences of recurring transactions",
	Long: `Create every occurrence of the owner's recurrence templates up to the
horizon (default today). Without --owner every owner with due templates is
processed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		horizon := domain.Day(time.Now())
		if horizonFlag != "" {
			h, err := domain.ParseDay(horizonFlag)
			if err != nil {
				return err
			}
			horizon = h
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if ownerID == "" {
			n, err := rt.Expander.MaterializeAll(ctx, horizon)
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d occurrence(s) up to %s\n", n, horizon.Format(domain.DayLayout))
			return err
		}
		created, err := rt.Expander.Materialize(ctx, ownerID, horizon)
		if perr := printJSON(cmd.OutOrStdout(), created); perr != nil {
			return perr
		}
		return err
	},
}

// reconcileCmd recomputes an account balance from its effective transactions.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile ACCOUNT",
	Short: "Check an account balance against its transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		rep, err := rt.Reconciler.Check(ctx, ownerID, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "\n=== Reconciliation ===")
		fmt.Fprintf(out, "Account:       %s\n", rep.AccountID)
		fmt.Fprintf(out, "Stored:        %s\n", money.Format(rep.StoredBalance, rep.Currency))
		fmt.Fprintf(out, "Computed:      %s\n", money.Format(rep.ComputedBalance, rep.Currency))
		fmt.Fprintf(out, "Effective:     %d\n", rep.EffectiveCount)
		fmt.Fprintf(out, "Future-dated:  %d\n", rep.FutureDatedCount)
		if !rep.Balanced() {
			return fmt.Errorf("balance drift of %s", money.Format(rep.Drift, rep.Currency))
		}
		fmt.Fprintln(out, "Balanced")
		return nil
	},
}

var exportedFlags struct {
	from string
	to   string
}

// exportedCmd lists transactions mirrored to BigQuery.
var exportedCmd = &cobra.Command{
	Use:   "exported",
	Short: "List transactions mirrored to the BigQuery export table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		to := domain.Day(time.Now())
		from := to.AddDate(0, -1, 0)
		var err error
		if exportedFlags.from != "" {
			if from, err = domain.ParseDay(exportedFlags.from); err != nil {
				return err
			}
		}
		if exportedFlags.to != "" {
			if to, err = domain.ParseDay(exportedFlags.to); err != nil {
				return err
			}
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		if rt.Exporter == nil {
			return fmt.Errorf("BigQuery export is not configured (set BQ_PROJECT)")
		}

		rows, err := rt.Exporter.ListExported(ctx, ownerID, from, to)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rows)
	},
}

func init() {
	materializeCmd.Flags().StringVar(&horizonFlag, "horizon", "", "last day to materialize YYYY-MM-DD (default today)")
	exportedCmd.Flags().StringVar(&exportedFlags.from, "from", "", "first day YYYY-MM-DD (default one month ago)")
	exportedCmd.Flags().StringVar(&exportedFlags.to, "to", "", "last day YYYY-MM-DD (default today)")
}
