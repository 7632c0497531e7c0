package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-ledger/internal/drafts"
)

// draftsCmd groups the draft review commands.
var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Review captured drafts",
}

var draftsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a draft",
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

		d, err := rt.Drafts.Get(ctx, ownerID, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

var patchFlags struct {
	txType      string
	amount      string
	currency    string
	date        string
	category    string
	description string
	notes       string
	tags        []string
	remind      bool
	offset      int
}

var draftsPatchCmd = &cobra.Command{
	Use:   "patch ID",
	Short: "Edit a draft",
	Long: `Edit the fields of a draft that is still under review. Only flags that
are given change the draft; an empty --category, --description or --notes
clears that field.`,
	Args: cobra.ExactArgs(1),
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

		flags := cmd.Flags()
		var p drafts.Patch
		if flags.Changed("type") {
			p.Type = &patchFlags.txType
		}
		if flags.Changed("currency") {
			p.Currency = &patchFlags.currency
		}
		if flags.Changed("amount") {
			currency := patchFlags.currency
			if currency == "" {
				d, err := rt.Drafts.Get(ctx, ownerID, args[0])
				if err != nil {
					return err
				}
				currency = d.Candidate.Currency
			}
			minor, err := parseAmount(patchFlags.amount, currency)
			if err != nil {
				return err
			}
			p.AmountMinor = &minor
		}
		if flags.Changed("date") {
			p.Date = &patchFlags.date
		}
		if flags.Changed("category") {
			p.CategoryID = &patchFlags.category
		}
		if flags.Changed("description") {
			p.Description = &patchFlags.description
		}
		if flags.Changed("notes") {
			p.Notes = &patchFlags.notes
		}
		if flags.Changed("tag") {
			p.Tags = patchFlags.tags
		}
		if flags.Changed("remind") || flags.Changed("remind-offset") {
			p.Reminder = &drafts.ReminderPatch{}
			if flags.Changed("remind") {
				p.Reminder.Enabled = &patchFlags.remind
			}
			if flags.Changed("remind-offset") {
				p.Reminder.OffsetMinutes = &patchFlags.offset
			}
		}

		d, err := rt.Drafts.Patch(ctx, ownerID, args[0], p)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

var draftsPostCmd = &cobra.Command{
	Use:   "post ID",
	Short: "Post a draft to the ledger",
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

		d, tx, err := rt.Drafts.Post(ctx, ownerID, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"draft": d, "transaction": tx})
	},
}

var rejectReason string

var draftsRejectCmd = &cobra.Command{
	Use:   "reject ID",
	Short: "Reject a draft",
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

		var reason *string
		if cmd.Flags().Changed("reason") {
			reason = &rejectReason
		}
		d, err := rt.Drafts.Reject(ctx, ownerID, args[0], reason)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

func init() {
	f := draftsPatchCmd.Flags()
	f.StringVar(&patchFlags.txType, "type", "", "income, expense or investment")
	f.StringVar(&patchFlags.amount, "amount", "", "amount in major units")
	f.StringVar(&patchFlags.currency, "currency", "", "ISO currency code")
	f.StringVar(&patchFlags.date, "date", "", "day YYYY-MM-DD")
	f.StringVar(&patchFlags.category, "category", "", "category id")
	f.StringVar(&patchFlags.description, "description", "", "description")
	f.StringVar(&patchFlags.notes, "notes", "", "notes")
	f.StringSliceVar(&patchFlags.tags, "tag", nil, "tag (repeatable, replaces all tags)")
	f.BoolVar(&patchFlags.remind, "remind", false, "enable the reminder")
	f.IntVar(&patchFlags.offset, "remind-offset", 0, "reminder offset in minutes")

	draftsRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the draft was rejected")

	draftsCmd.AddCommand(draftsGetCmd, draftsPatchCmd, draftsPostCmd, draftsRejectCmd)
}
