package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

var bookCmd = &cobra.Command{
	Use:     "book",
	Aliases: []string{"report"},
	Short:   "Ledgers, cash book and financial statements",
}

var (
	bookFrom  string
	bookTo    string
	bookFY    string
	bookAsOf  string
	bookCodes []int
)

func bookRange() client.Range {
	return client.Range{From: bookFrom, To: bookTo, FY: bookFY}
}

var bookLedgerCmd = &cobra.Command{
	Use:   "ledger [code]",
	Short: "Show an account's ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("account code must be a number: %q", args[0])
		}
		v, err := newClient().Ledger(cmd.Context(), code, bookRange())
		if err != nil {
			return err
		}
		printLedger(v)
		return nil
	},
}

var bookTrialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Show the trial balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		tb, err := newClient().TrialBalance(cmd.Context(), bookAsOf)
		if err != nil {
			return err
		}
		printTrialBalance(tb)
		return nil
	},
}

var bookCashCmd = &cobra.Command{
	Use:   "cash",
	Short: "Show the cash book",
	RunE: func(cmd *cobra.Command, args []string) error {
		cb, err := newClient().CashBook(cmd.Context(), bookRange(), bookCodes...)
		if err != nil {
			return err
		}
		printCashBook(cb)
		return nil
	},
}

var bookPLCmd = &cobra.Command{
	Use:     "pl",
	Aliases: []string{"profit-loss"},
	Short:   "Show the profit and loss statement",
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := newClient().ProfitAndLoss(cmd.Context(), bookRange())
		if err != nil {
			return err
		}
		printProfitAndLoss(pl)
		return nil
	},
}

var bookBSCmd = &cobra.Command{
	Use:     "bs",
	Aliases: []string{"balance-sheet"},
	Short:   "Show the balance sheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		bs, err := newClient().BalanceSheet(cmd.Context(), bookAsOf)
		if err != nil {
			return err
		}
		printBalanceSheet(bs)
		return nil
	},
}

var bookVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the books balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().Verify(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("Books verified: debits equal credits and every account agrees with its ledger.")
		if res.Halted {
			fmt.Println("Posting is still halted; run `khata book resume`.")
		}
		return nil
	},
}

var bookResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume posting after the books verify clean",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().Resume(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	},
}

func printLedger(v *ledger.LedgerView) {
	w := 96
	fmt.Println()
	fmt.Println(center(fmt.Sprintf("%d %s", v.Account.Code, strings.ToUpper(v.Account.Name)), w))
	fmt.Println(center(periodLabel(v.From, v.To), w))
	fmt.Println()
	fmt.Printf("  %-10s %-30s %-18s %13s %13s %14s\n", "DATE", "PARTICULARS", "VOUCHER", "DEBIT", "CREDIT", "BALANCE")
	fmt.Printf("  %-10s %-30s %-18s %13s %13s %14s\n", "", "Opening balance", "", "", "", drCr(v.OpeningBalance))
	for _, r := range v.Rows {
		particulars := r.Particulars
		if r.Status == ledger.RowReversed {
			particulars += " *"
		}
		fmt.Printf("  %-10s %-30s %-18s %13s %13s %14s\n",
			r.Date.Format(ledger.DateLayout), truncate(particulars, 30), r.VoucherNumber,
			ledger.FormatAmount(r.Debit), ledger.FormatAmount(r.Credit), drCr(r.RunningBalance))
	}
	fmt.Printf("  %s\n", strings.Repeat("─", w-4))
	fmt.Printf("  %-60s %13s %13s %14s\n", "Closing balance",
		v.TotalDebit.StringFixed(2), v.TotalCredit.StringFixed(2), drCr(v.ClosingBalance))
}

func printTrialBalance(tb *ledger.TrialBalance) {
	w := 74
	fmt.Println()
	fmt.Println(center("TRIAL BALANCE", w))
	if !tb.AsOf.IsZero() {
		fmt.Println(center("as of "+tb.AsOf.Format(ledger.DateLayout), w))
	}
	fmt.Println()

	fmt.Printf("  %-6s %-30s %16s %16s\n", "CODE", "ACCOUNT", "DEBIT", "CREDIT")
	fmt.Printf("  %-6s %-30s %16s %16s\n", "----", "-------", "-----", "------")
	for _, l := range tb.Lines {
		fmt.Printf("  %-6d %-30s %16s %16s\n", l.AccountCode, truncate(l.AccountName, 30),
			ledger.FormatAmount(l.Debit), ledger.FormatAmount(l.Credit))
	}
	fmt.Printf("  %s\n", strings.Repeat("─", w-4))
	fmt.Printf("  %-37s %16s %16s\n", "TOTALS", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
	printBalanced(tb.Balanced, tb.Difference)
}

func printCashBook(cb *ledger.CashBook) {
	w := 100
	names := make([]string, len(cb.Accounts))
	for i, a := range cb.Accounts {
		names[i] = a.Name
	}
	fmt.Println()
	fmt.Println(center("CASH BOOK: "+strings.Join(names, " + "), w))
	fmt.Println(center(periodLabel(cb.From, cb.To), w))
	fmt.Println()
	fmt.Printf("  %-10s %-6s %-28s %-18s %12s %12s %14s\n", "DATE", "A/C", "PARTICULARS", "VOUCHER", "RECEIPT", "PAYMENT", "BALANCE")
	fmt.Printf("  %-10s %-6s %-28s %-18s %12s %12s %14s\n", "", "", "Opening balance", "", "", "", cb.OpeningBalance.StringFixed(2))
	for _, r := range cb.Rows {
		fmt.Printf("  %-10s %-6d %-28s %-18s %12s %12s %14s\n",
			r.Date.Format(ledger.DateLayout), r.AccountCode, truncate(r.Particulars, 28), r.VoucherNumber,
			ledger.FormatAmount(r.Receipt), ledger.FormatAmount(r.Payment), r.RunningBalance.StringFixed(2))
	}
	fmt.Printf("  %s\n", strings.Repeat("─", w-4))
	fmt.Printf("  %-65s %12s %12s %14s\n", "Closing balance",
		cb.TotalReceipts.StringFixed(2), cb.TotalPayments.StringFixed(2), cb.ClosingBalance.StringFixed(2))
}

func printProfitAndLoss(pl *ledger.ProfitAndLoss) {
	w := 60
	fmt.Println()
	fmt.Println(center("PROFIT & LOSS", w))
	fmt.Println(center(periodLabel(pl.From, pl.To), w))
	fmt.Println()

	printSection("INCOME", pl.Income, w)
	fmt.Printf("%-*s%18s\n", w-18, "Total Revenue", ledger.FormatINR(pl.TotalRevenue))
	fmt.Println()
	printSection("EXPENSES", pl.Expenses, w)
	fmt.Printf("%-*s%18s\n", w-18, "Total Expenses", ledger.FormatINR(pl.TotalExpenses))
	fmt.Println()

	label := "Net Profit"
	if pl.NetProfit.IsNegative() {
		label = "Net Loss"
	}
	fmt.Printf("%*s%s\n", w-18, "", "══════════════════")
	fmt.Printf("%-*s%18s\n", w-18, label, formatSigned(pl.NetProfit))
	if !pl.TotalRevenue.IsZero() {
		fmt.Printf("%-*s%17s%%\n", w-18, "Margin", pl.Margin.Mul(decimal.NewFromInt(100)).StringFixed(2))
	}
}

func printBalanceSheet(bs *ledger.BalanceSheet) {
	w := 60
	fmt.Println()
	fmt.Println(center("BALANCE SHEET", w))
	if !bs.AsOf.IsZero() {
		fmt.Println(center("as of "+bs.AsOf.Format(ledger.DateLayout), w))
	}
	fmt.Println()

	printSection("ASSETS", bs.Assets, w)
	fmt.Printf("%*s%s\n", w-18, "", "──────────────────")
	fmt.Printf("%-*s%18s\n", w-18, "Total Assets", formatSigned(bs.TotalAssets))
	fmt.Println()

	printSection("LIABILITIES", bs.Liabilities, w)
	fmt.Printf("%*s%s\n", w-18, "", "──────────────────")
	fmt.Printf("%-*s%18s\n", w-18, "Total Liabilities", formatSigned(bs.TotalLiabilities))
	fmt.Println()

	printSection("EQUITY", bs.Equity, w)
	fmt.Printf("%*s%s\n", w-18, "", "──────────────────")
	fmt.Printf("%-*s%18s\n", w-18, "Total Equity", formatSigned(bs.TotalEquity))
	fmt.Println()

	fmt.Printf("%*s%s\n", w-18, "", "══════════════════")
	fmt.Printf("%-*s%18s\n", w-18, "Total L + E", formatSigned(bs.TotalLiabilities.Add(bs.TotalEquity)))
	printBalanced(bs.Balanced, bs.Difference)
}

func printSection(title string, lines []ledger.StatementLine, w int) {
	fmt.Printf("  %s\n", title)
	fmt.Printf("  %s\n", strings.Repeat("─", w-4))
	for _, l := range lines {
		code := ""
		if l.AccountCode != 0 {
			code = strconv.Itoa(l.AccountCode)
		}
		fmt.Printf("  %-6s %-*s%18s\n", code, w-27, truncate(l.AccountName, w-28), formatSigned(l.Amount))
	}
}

func printBalanced(balanced bool, diff decimal.Decimal) {
	if balanced {
		fmt.Println("\n  [BALANCED]")
	} else {
		fmt.Printf("\n  [UNBALANCED! difference %s]\n", diff.StringFixed(2))
	}
}

func periodLabel(from, to time.Time) string {
	f, t := "beginning", "date"
	if !from.IsZero() {
		f = from.Format(ledger.DateLayout)
	}
	if !to.IsZero() {
		t = to.Format(ledger.DateLayout)
	}
	return f + " to " + t
}

func center(s string, w int) string {
	n := len([]rune(s))
	if n >= w {
		return s
	}
	return strings.Repeat(" ", (w-n)/2) + s
}

func formatSigned(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "(" + ledger.FormatINR(amount.Neg()) + ")"
	}
	return ledger.FormatINR(amount)
}

// drCr renders a debit-minus-credit balance the way a ledger prints it.
func drCr(b decimal.Decimal) string {
	switch {
	case b.IsZero():
		return "0.00"
	case b.IsNegative():
		return b.Neg().StringFixed(2) + " Cr"
	default:
		return b.StringFixed(2) + " Dr"
	}
}

func init() {
	for _, c := range []*cobra.Command{bookLedgerCmd, bookCashCmd, bookPLCmd} {
		c.Flags().StringVar(&bookFrom, "from", "", "From date YYYY-MM-DD")
		c.Flags().StringVar(&bookTo, "to", "", "To date YYYY-MM-DD")
		c.Flags().StringVar(&bookFY, "fy", "", "Financial year, e.g. 2024-25")
	}
	for _, c := range []*cobra.Command{bookTrialCmd, bookBSCmd} {
		c.Flags().StringVar(&bookAsOf, "as-of", "", "Report date YYYY-MM-DD (default all)")
	}
	bookCashCmd.Flags().IntSliceVar(&bookCodes, "account", nil, "Cash or bank account codes (default all)")

	bookCmd.AddCommand(bookLedgerCmd)
	bookCmd.AddCommand(bookTrialCmd)
	bookCmd.AddCommand(bookCashCmd)
	bookCmd.AddCommand(bookPLCmd)
	bookCmd.AddCommand(bookBSCmd)
	bookCmd.AddCommand(bookVerifyCmd)
	bookCmd.AddCommand(bookResumeCmd)

	rootCmd.AddCommand(bookCmd)
}
