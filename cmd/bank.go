package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
	"github.com/simonvc/khata/internal/recon"
)

var bankCmd = &cobra.Command{
	Use:     "bank",
	Aliases: []string{"recon"},
	Short:   "Import bank statements and reconcile them with the books",
}

var (
	bankAccount   int
	bankReconcile bool
	bankUnmatched bool
)

var bankImportCmd = &cobra.Command{
	Use:   "import [statement.csv]",
	Short: "Import a CSV statement (date,amount,description[,reference])",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := newClient().ImportStatement(cmd.Context(), bankAccount, f, bankReconcile)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d new of %d lines\n", res.Imported, res.Lines)
		if res.Summary != nil {
			printRecords(res.Records)
			printSummary(*res.Summary)
		}
		return nil
	},
}

var bankListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported bank transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		txns, err := newClient().ListBankTransactions(cmd.Context(), bankAccount, bankUnmatched)
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			fmt.Println("No bank transactions found.")
			return nil
		}
		fmt.Printf("%-28s %-10s %14s  %-14s %s\n", "ID", "DATE", "AMOUNT", "REFERENCE", "DESCRIPTION")
		for _, t := range txns {
			fmt.Printf("%-28s %-10s %14s  %-14s %s\n", t.ID, t.Date.Format(ledger.DateLayout),
				t.Amount.StringFixed(2), truncate(t.ReferenceNumber, 14), truncate(t.Description, 40))
		}
		return nil
	},
}

var bankReconcileCmd = &cobra.Command{
	Use:   "reconcile [bank-txn-id]",
	Short: "Match one transaction, or every unmatched one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if len(args) == 1 {
			rec, err := c.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRecords([]ledger.ReconciliationRecord{*rec})
			return nil
		}
		res, err := c.ReconcilePending(cmd.Context(), bankAccount)
		if err != nil {
			return err
		}
		printRecords(res.Records)
		printSummary(res.Summary)
		return nil
	},
}

var bankMatchCmd = &cobra.Command{
	Use:   "match [bank-txn-id] [ledger-entry-id]",
	Short: "Match a bank transaction to a ledger row by hand",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("ledger entry id must be a number: %q", args[1])
		}
		rec, err := newClient().MatchManually(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}
		printRecords([]ledger.ReconciliationRecord{*rec})
		return nil
	},
}

var (
	histTxn    string
	histStatus string
	histLatest bool
)

var bankHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show reconciliation records",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().ListReconciliations(cmd.Context(), client.ReconQuery{
			BankTransactionID: histTxn,
			Status:            histStatus,
			LatestOnly:        histLatest,
		})
		if err != nil {
			return err
		}
		printRecords(res.Records)
		printSummary(res.Summary)
		return nil
	},
}

func printRecords(records []ledger.ReconciliationRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Printf("%-28s %-3s %-12s %-10s %6s %12s  %s\n", "BANK TXN", "#", "STATUS", "MATCH", "CONF", "DIFF", "REASON")
	for _, r := range records {
		fmt.Printf("%-28s %-3d %-12s %-10s %6.2f %12s  %s\n", r.BankTransactionID, r.Attempt, r.Status, r.MatchType,
			r.Confidence, r.AmountDifference.StringFixed(2), truncate(r.Reason, 50))
	}
}

func printSummary(s recon.Summary) {
	fmt.Printf("\n%d transactions: %d matched, %d need review\n", s.Total, s.Matched, s.NeedsReview)
}

func init() {
	for _, c := range []*cobra.Command{bankImportCmd, bankListCmd, bankReconcileCmd} {
		c.Flags().IntVar(&bankAccount, "account", 0, "Bank account code (default from config)")
	}
	bankImportCmd.Flags().BoolVar(&bankReconcile, "reconcile", false, "Reconcile the lines after import")
	bankListCmd.Flags().BoolVar(&bankUnmatched, "unmatched", false, "Only transactions without a match")

	bankHistoryCmd.Flags().StringVar(&histTxn, "txn", "", "Bank transaction id")
	bankHistoryCmd.Flags().StringVar(&histStatus, "status", "", "MATCHED or NEEDS_REVIEW")
	bankHistoryCmd.Flags().BoolVar(&histLatest, "latest", false, "Only the newest record per transaction")

	bankCmd.AddCommand(bankImportCmd)
	bankCmd.AddCommand(bankListCmd)
	bankCmd.AddCommand(bankReconcileCmd)
	bankCmd.AddCommand(bankMatchCmd)
	bankCmd.AddCommand(bankHistoryCmd)

	rootCmd.AddCommand(bankCmd)
}
