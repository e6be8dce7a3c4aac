package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"household-ledger/internal/models"
	"household-ledger/internal/reconciler"
	"household-ledger/pkg/logger"
)

var (
	startDate       string
	endDate         string
	reconcileFormat string
	reconcileOutput string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Build the review queue of card, app and withdrawal matches",
	Long: `Reconcile looks at the household's unreconciled transactions and proposes
matches: card charges paired with the P2P app payments behind them, app
withdrawals paired with bank deposits, app payments already settled from the
app balance, and incoming payments that may be reimbursements.

Nothing is written. Apply a proposal with one of the 'ledger merge' commands.

Examples:
  ledger reconcile --household family
  ledger reconcile --household family --start-date 2026-03-01 --end-date 2026-03-31
  ledger reconcile --household family --format csv --output queue.csv`,
	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&startDate, "start-date", "", "only consider transactions on or after this date (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&endDate, "end-date", "", "only consider transactions on or before this date (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVarP(&reconcileFormat, "format", "f", "", "output format: console, json, csv (default from config)")
	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "", "output file path (default: stdout)")
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	if _, err := parseDateRange(startDate, endDate); err != nil {
		return err
	}
	if err := validateFormat(reconcileFormat); err != nil {
		return err
	}
	return validateOutputPath(reconcileOutput)
}

func parseDateRange(start, end string) (reconciler.DateRange, error) {
	var window reconciler.DateRange
	var err error

	if start != "" {
		if window.Start, err = models.ParseISODate(start); err != nil {
			return window, fmt.Errorf("invalid start date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if end != "" {
		if window.End, err = models.ParseISODate(end); err != nil {
			return window, fmt.Errorf("invalid end date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if err := window.Validate(); err != nil {
		return window, fmt.Errorf("start date cannot be after end date")
	}
	return window, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	window, err := parseDateRange(startDate, endDate)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, "reconcile", sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.service.FindMatches(ctx, s.settings.Household, window)
	if err != nil {
		return err
	}

	s.logger.WithFields(logger.Fields{
		"matches":        len(result.Matches),
		"withdrawals":    len(result.WithdrawalMatches),
		"balance_paid":   len(result.BalancePaid),
		"reimbursements": len(result.Reimbursements),
	}).Info("Review queue ready")

	return writeReport(s.settings, reconcileFormat, reconcileOutput, result)
}
