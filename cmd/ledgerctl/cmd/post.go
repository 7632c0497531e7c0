package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/money"
)

// seedCmd creates accounts and categories from a YAML file.
var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Create accounts and categories from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		f, err := app.LoadSeed(args[0])
		if err != nil {
			return err
		}
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		accounts, categories, err := app.Seed(ctx, rt.Store, f, ownerID)
		if err != nil {
			return err
		}
		log.Info().Int("accounts", len(accounts)).Int("categories", len(categories)).Msg("Seed applied")
		return printJSON(cmd.OutOrStdout(), map[string]any{"accounts": accounts, "categories": categories})
	},
}

type postOptions struct {
	account      string
	txType       string
	amount       string
	currency     string
	date         string
	category     string
	description  string
	notes        string
	tags         []string
	remind       bool
	remindOffset int
	frequency    string
	interval     int
	endDate      string
	nextDate     string
}

var postFlags postOptions

// postCmd posts one transaction through the ledger engine.
var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a transaction",
	Long: `Post a transaction through the ledger engine. The balance changes only
when the date is today or earlier. --frequency turns the transaction into a
recurrence template whose first occurrence is this transaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		c, err := postCandidate(time.Now())
		if err != nil {
			return err
		}

		ctx := context.Background()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		tx, err := rt.Engine.Post(ctx, c)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tx)
	},
}

func init() {
	f := postCmd.Flags()
	f.StringVar(&postFlags.account, "account", "", "account id (required)")
	f.StringVar(&postFlags.txType, "type", "expense", "income, expense or investment")
	f.StringVar(&postFlags.amount, "amount", "", "amount in major units, e.g. 12.50 (required)")
	f.StringVar(&postFlags.currency, "currency", "", "ISO currency code (required)")
	f.StringVar(&postFlags.date, "date", "", "transaction day YYYY-MM-DD (default today)")
	f.StringVar(&postFlags.category, "category", "", "category id")
	f.StringVar(&postFlags.description, "description", "", "description")
	f.StringVar(&postFlags.notes, "notes", "", "notes")
	f.StringSliceVar(&postFlags.tags, "tag", nil, "tag (repeatable)")
	f.BoolVar(&postFlags.remind, "remind", false, "schedule a reminder")
	f.IntVar(&postFlags.remindOffset, "remind-offset", 0, "minutes before the transaction day the reminder fires")
	f.StringVar(&postFlags.frequency, "frequency", "", "daily, weekly, monthly or yearly")
	f.IntVar(&postFlags.interval, "interval", 1, "recurrence interval")
	f.StringVar(&postFlags.endDate, "end-date", "", "last recurrence day YYYY-MM-DD")
	f.StringVar(&postFlags.nextDate, "next-date", "", "also post an identical transaction on this day")
	_ = postCmd.MarkFlagRequired("account")
	_ = postCmd.MarkFlagRequired("amount")
	_ = postCmd.MarkFlagRequired("currency")
}

// postCandidate builds a candidate from the post flags.
func postCandidate(now time.Time) (domain.Candidate, error) {
	typ, err := domain.ParseTransactionType(postFlags.txType)
	if err != nil {
		return domain.Candidate{}, err
	}
	currency, err := money.NormalizeCurrency(postFlags.currency)
	if err != nil {
		return domain.Candidate{}, err
	}
	minor, err := parseAmount(postFlags.amount, currency)
	if err != nil {
		return domain.Candidate{}, err
	}
	day := domain.Day(now)
	if postFlags.date != "" {
		if day, err = domain.ParseDay(postFlags.date); err != nil {
			return domain.Candidate{}, err
		}
	}

	c := domain.Candidate{
		OwnerID:     ownerID,
		AccountID:   postFlags.account,
		CategoryID:  domain.StringPtr(postFlags.category),
		Type:        typ,
		AmountMinor: minor,
		Currency:    currency,
		Date:        day,
		Description: domain.StringPtr(postFlags.description),
		Notes:       domain.StringPtr(postFlags.notes),
		Tags:        postFlags.tags,
		Reminder:    domain.ReminderSettings{Enabled: postFlags.remind, OffsetMinutes: postFlags.remindOffset},
	}

	if postFlags.frequency != "" {
		freq, err := domain.ParseFrequency(postFlags.frequency)
		if err != nil {
			return domain.Candidate{}, err
		}
		rs := &domain.RecurrenceSettings{Frequency: freq, Interval: postFlags.interval}
		if postFlags.endDate != "" {
			end, err := domain.ParseDay(postFlags.endDate)
			if err != nil {
				return domain.Candidate{}, err
			}
			rs.EndDate = &end
		}
		c.Recurrence = rs
	}
	if postFlags.nextDate != "" {
		next, err := domain.ParseDay(postFlags.nextDate)
		if err != nil {
			return domain.Candidate{}, fmt.Errorf("--next-date: %w", err)
		}
		c.NextDate = &next
	}
	return c, nil
}
