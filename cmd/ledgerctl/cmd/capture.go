package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-ledger/internal/capture"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

var captureFlags struct {
	account  string
	txType   string
	date     string
	category string
	notes    string
	source   string
}

// captureCmd runs free text through the auto-capture pipeline.
var captureCmd = &cobra.Command{
	Use:   "capture TEXT...",
	Short: "Capture a free-text transaction",
	Long: `Parse free text such as "paid 280 TRY coffee" into a transaction.
Confident captures are posted immediately; the rest become drafts for
review with "ledgerctl drafts".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		o := capture.Overrides{
			CategoryID: domain.StringPtr(captureFlags.category),
			Notes:      domain.StringPtr(captureFlags.notes),
			Source:     captureFlags.source,
		}
		if captureFlags.txType != "" {
			t, err := domain.ParseTransactionType(captureFlags.txType)
			if err != nil {
				return err
			}
			o.Type = &t
		}
		if captureFlags.date != "" {
			d, err := domain.ParseDay(captureFlags.date)
			if err != nil {
				return err
			}
			o.Date = &d
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.Capture.Capture(ctx, ownerID, captureFlags.account, strings.Join(args, " "), o)
		if err != nil {
			return err
		}
		log.Info().Str("outcome", string(res.Outcome)).Msg("Capture finished")
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	f := captureCmd.Flags()
	f.StringVar(&captureFlags.account, "account", "", "account id (required)")
	f.StringVar(&captureFlags.txType, "type", "", "override the detected type")
	f.StringVar(&captureFlags.date, "date", "", "override the day YYYY-MM-DD")
	f.StringVar(&captureFlags.category, "category", "", "override the matched category id")
	f.StringVar(&captureFlags.notes, "notes", "", "notes")
	f.StringVar(&captureFlags.source, "source", "cli", "capture source label")
	_ = captureCmd.MarkFlagRequired("account")
}
