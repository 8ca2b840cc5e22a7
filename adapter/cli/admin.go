package cli

import (
	"fmt"
	"time"

	"github.com/akazakov/tollgate/internal/promo"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator commands against the shared store",
}

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all users, subscriptions, payments, credentials and ledger records",
	Long: `Deletes every stored record in a single transaction. Meant for test
environments; there is no undo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			return fmt.Errorf("refusing to purge without --yes")
		}

		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		report, err := c.Admin.Purge(cmd.Context())
		if err != nil {
			return err
		}

		cmd.Printf("purged %d users, %d subscriptions, %d payments, %d credentials, %d approvals, %d ledger records\n",
			report.Users, report.Subscriptions, report.Payments,
			report.Credentials, report.Approvals, report.LedgerRecords)
		return nil
	},
}

var (
	windowStart string
	windowEnd   string
	windowClear bool
)

var resetWindowCmd = &cobra.Command{
	Use:   "reset-window",
	Short: "Override the promotional window",
	Long: `Stores a promotional window override and applies it immediately.
Use --clear to drop the override and fall back to the configured window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var window promo.Window
		switch {
		case windowClear:
			if windowStart != "" || windowEnd != "" {
				return fmt.Errorf("--clear cannot be combined with --start or --end")
			}
		case windowStart == "" || windowEnd == "":
			return fmt.Errorf("both --start and --end are required (or --clear)")
		default:
			var err error
			window.Start, err = time.Parse(time.RFC3339, windowStart)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			window.End, err = time.Parse(time.RFC3339, windowEnd)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
		}

		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Admin.ResetWindow(cmd.Context(), window); err != nil {
			return err
		}

		if windowClear {
			cmd.Println("window override cleared")
		} else {
			cmd.Printf("window set: %s .. %s\n",
				window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
		}
		return nil
	},
}

var backfillUntil string

var backfillExpiryCmd = &cobra.Command{
	Use:   "backfill-expiry",
	Short: "Assign an expiry date to active subscriptions that lack one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillUntil == "" {
			return fmt.Errorf("--until is required")
		}
		until, err := time.Parse(time.RFC3339, backfillUntil)
		if err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}

		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		updated, err := c.Admin.BackfillExpiry(cmd.Context(), until)
		if err != nil {
			return err
		}

		cmd.Printf("backfilled %d subscriptions\n", updated)
		return nil
	},
}

var paymentCmd = &cobra.Command{
	Use:   "payment <payment-id>",
	Short: "Look up a payment's status at the processor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		payment, err := c.Processor.GetPayment(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		cmd.Printf("id:       %s\n", payment.ID)
		cmd.Printf("status:   %s\n", payment.Status)
		cmd.Printf("amount:   %s %s\n", payment.Amount.Value, payment.Amount.Currency)
		if !payment.CreatedAt.IsZero() {
			cmd.Printf("created:  %s\n", payment.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print stored record counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.Admin.CollectStats(cmd.Context())
		if err != nil {
			return err
		}

		cmd.Printf("users:         %d\n", stats.Users)
		cmd.Printf("subscriptions: %d\n", stats.Subscriptions)
		cmd.Printf("payments:      %d\n", stats.Payments)
		cmd.Printf("credentials:   %d\n", stats.Credentials)
		cmd.Printf("approvals:     %d\n", stats.Approvals)

		window := c.Evaluator.Window()
		if window.Valid() {
			cmd.Printf("bonus window:  %s .. %s\n",
				window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "confirm the purge")

	resetWindowCmd.Flags().StringVar(&windowStart, "start", "", "window start (RFC 3339)")
	resetWindowCmd.Flags().StringVar(&windowEnd, "end", "", "window end (RFC 3339)")
	resetWindowCmd.Flags().BoolVar(&windowClear, "clear", false, "drop the stored override")

	backfillExpiryCmd.Flags().StringVar(&backfillUntil, "until", "", "expiry to assign (RFC 3339)")

	adminCmd.AddCommand(purgeCmd, resetWindowCmd, backfillExpiryCmd, statsCmd, paymentCmd)
}
