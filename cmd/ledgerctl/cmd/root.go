// Package cmd provides the ledgerctl commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/money"
)

var (
	envFile string
	ownerID string
	debug   bool

	log zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the personal finance ledger from the command line",
	Long: `ledgerctl posts transactions, captures free-text entries, reviews
drafts, materializes recurring transactions and checks account balances
against the same SQLite ledger the API server uses.

The reminder job store is opened exclusively; stop the worker or API
server before running commands that post transactions.

Example:
  ledgerctl seed seed.yaml
  ledgerctl post --owner u1 --account checking --type expense --amount 12.50 --currency USD
  ledgerctl capture --owner u1 --account checking "paid 280 TRY coffee"
  ledgerctl reconcile --owner u1 checking`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if debug {
			level = "debug"
		}
		log = logger.NewWithOptions(os.Stderr, logger.Options{Level: level})
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", os.Getenv("LEDGER_OWNER"), "owner id (default is $LEDGER_OWNER)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(draftsCmd)
	rootCmd.AddCommand(materializeCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(exportedCmd)
}

// openRuntime loads configuration and opens every store.
func openRuntime(ctx context.Context) (*app.Runtime, error) {
	var paths []string
	if envFile != "" {
		paths = append(paths, envFile)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, log)
}

func requireOwner() error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("--owner (or LEDGER_OWNER) is required")
	}
	return nil
}

// parseAmount converts a decimal major-unit string to minor units of currency.
func parseAmount(s, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	code, err := money.NormalizeCurrency(currency)
	if err != nil {
		return 0, err
	}
	return money.ToMinor(d, code)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
