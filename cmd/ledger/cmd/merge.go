package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"household-ledger/internal/reconciler"
)

var (
	mergeFormat   string
	mergeCategory string
	mergeNotes    string
	mergeLinked   string
)

// mergeCmd groups the commands that apply a review queue proposal
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Apply a reconciliation proposal from the review queue",
	Long: `Merge commands write the decision for one review queue entry. Each is safe
to repeat: a merge that is already in place reports "already applied".
A transaction that was reconciled differently since the queue was built is
rejected; run 'ledger reconcile' again to refresh the queue.`,
}

var mergeP2PCmd = &cobra.Command{
	Use:   "p2p <card-id> <app-id>",
	Short: "Pair a card charge with the P2P app payment behind it",
	Long: `The card row takes the app's counterparty as its merchant, plus the app's
category and memo. The app row is marked as a duplicate of the card row.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge("merge_p2p_match", func(ctx context.Context, s *session) (*reconciler.MergeResult, error) {
			return s.service.MergeP2PMatch(ctx, s.settings.Household, args[0], args[1])
		})
	},
}

var mergeBalancePaidCmd = &cobra.Command{
	Use:   "balance-paid <app-id>",
	Short: "Accept an app payment that was settled from the app balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge("mark_balance_paid", func(ctx context.Context, s *session) (*reconciler.MergeResult, error) {
			return s.service.MarkAsBalancePaid(ctx, s.settings.Household, args[0], mergeCategory, mergeNotes)
		})
	},
}

var mergeWithdrawalCmd = &cobra.Command{
	Use:   "withdrawal <withdrawal-id> <deposit-id>",
	Short: "Pair an app withdrawal with the bank deposit it produced",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge("merge_withdrawal", func(ctx context.Context, s *session) (*reconciler.MergeResult, error) {
			return s.service.MergeWithdrawal(ctx, s.settings.Household, args[0], args[1])
		})
	},
}

var mergeReimbursementCmd = &cobra.Command{
	Use:   "reimbursement <income-id>",
	Short: "Record an incoming payment as a reimbursement of an expense",
	Long: `The income row becomes a negative expense in --category, so it offsets
the spending it pays back. --linked names the expense being reimbursed.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(mergeCategory) == "" {
			return fmt.Errorf("--category is required for a reimbursement")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge("apply_reimbursement", func(ctx context.Context, s *session) (*reconciler.MergeResult, error) {
			return s.service.ApplyReimbursement(ctx, s.settings.Household, args[0], mergeCategory, mergeLinked)
		})
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.AddCommand(mergeP2PCmd, mergeBalancePaidCmd, mergeWithdrawalCmd, mergeReimbursementCmd)

	mergeCmd.PersistentFlags().StringVarP(&mergeFormat, "format", "f", "", "output format: console, json (default from config)")

	mergeBalancePaidCmd.Flags().StringVar(&mergeCategory, "category", "", "category to record and remember for the merchant")
	mergeBalancePaidCmd.Flags().StringVar(&mergeNotes, "notes", "", "notes to store on the transaction")

	mergeReimbursementCmd.Flags().StringVar(&mergeCategory, "category", "", "expense category the reimbursement offsets (required)")
	mergeReimbursementCmd.Flags().StringVar(&mergeLinked, "linked", "", "id of the expense being reimbursed")
}

type mergeFunc func(ctx context.Context, s *session) (*reconciler.MergeResult, error)

func runMerge(operation string, merge mergeFunc) error {
	if err := validateFormat(mergeFormat); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx, operation, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := merge(ctx, s)
	if err != nil {
		return err
	}
	return writeReport(s.settings, mergeFormat, "", result)
}
