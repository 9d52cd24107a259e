package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

var journalCmd = &cobra.Command{
	Use:     "journal",
	Aliases: []string{"voucher", "jv"},
	Short:   "Post and correct vouchers",
}

// journal post
var (
	jnlType      string
	jnlDate      string
	jnlNarration string
	jnlRef       string
	jnlParty     string
	jnlMode      string
	jnlLines     []string // format: "account:dr|cr:amount[:class]"
	jnlDryRun    bool
)

// parseLine reads "5101:dr:10000" or "Travel:dr:500:expense". The account
// is a code when it is numeric and a name otherwise.
func parseLine(s string) (client.Line, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return client.Line{}, fmt.Errorf("invalid line %q, expected account:dr|cr:amount[:class]", s)
	}
	var l client.Line
	if code, err := strconv.Atoi(parts[0]); err == nil {
		l.AccountCode = code
	} else {
		l.AccountName = parts[0]
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(parts[2], ",", ""))
	if err != nil {
		return client.Line{}, fmt.Errorf("invalid amount %q in line %q", parts[2], s)
	}
	switch strings.ToLower(parts[1]) {
	case "dr", "debit":
		l.Debit = amount
	case "cr", "credit":
		l.Credit = amount
	default:
		return client.Line{}, fmt.Errorf("side must be dr or cr in line %q", s)
	}
	if len(parts) == 4 {
		l.AccountType = parts[3]
	}
	return l, nil
}

var journalPostCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a voucher",
	Long: `Post a voucher with two or more lines.
Each --line is "account:dr|cr:amount", e.g. --line 5101:dr:10000 --line 1001:cr:10000.
An account may be named instead of coded; add ":class" to create it on first use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := client.Voucher{
			VoucherType: jnlType,
			Date:        jnlDate,
			Narration:   jnlNarration,
			Reference:   jnlRef,
			PaymentMode: jnlMode,
			PartyName:   jnlParty,
		}
		for _, s := range jnlLines {
			l, err := parseLine(s)
			if err != nil {
				return err
			}
			v.Lines = append(v.Lines, l)
		}

		c := newClient()
		if jnlDryRun {
			ve, err := c.ValidateJournal(cmd.Context(), v)
			if err != nil {
				return err
			}
			fmt.Printf("Valid %s voucher for FY %s, %s\n", ve.VoucherType, ve.FinancialYear, ledger.FormatINR(ve.TotalDebit))
			return nil
		}
		entry, err := c.PostJournal(cmd.Context(), v)
		if err != nil {
			return err
		}
		printJournal(entry)
		return nil
	},
}

// journal list
var (
	jnlListFrom    string
	jnlListTo      string
	jnlListType    string
	jnlListStatus  string
	jnlListAccount int
	jnlListLimit   int
)

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vouchers (day book)",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newClient().ListJournals(cmd.Context(), client.JournalQuery{
			From:        jnlListFrom,
			To:          jnlListTo,
			VoucherType: jnlListType,
			Status:      jnlListStatus,
			AccountCode: jnlListAccount,
			Limit:       jnlListLimit,
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No vouchers found.")
			return nil
		}

		fmt.Printf("%-10s %-18s %-7s %16s  %s\n", "DATE", "VOUCHER", "STATUS", "AMOUNT", "NARRATION")
		fmt.Printf("%-10s %-18s %-7s %16s  %s\n", "----", "-------", "------", "------", "---------")
		for _, e := range entries {
			fmt.Printf("%-10s %-18s %-7s %16s  %s\n",
				e.Date.Format(ledger.DateLayout),
				e.VoucherNumber,
				e.Status,
				ledger.FormatINR(e.TotalDebit),
				truncate(e.Narration, 40),
			)
		}
		return nil
	},
}

var journalGetCmd = &cobra.Command{
	Use:   "get [id|voucher-number]",
	Short: "Show a voucher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := newClient().GetJournal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJournal(entry)
		return nil
	},
}

var jnlVoidReason string

var journalVoidCmd = &cobra.Command{
	Use:   "void [id|voucher-number]",
	Short: "Void a voucher by posting its reversal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		entry, err := c.GetJournal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		corr, err := c.VoidJournal(cmd.Context(), entry.ID, jnlVoidReason)
		if err != nil {
			return err
		}
		fmt.Printf("Voided %s; reversal posted as %s\n", corr.Original.VoucherNumber, corr.Reversal.VoucherNumber)
		return nil
	},
}

var (
	jnlReclassLine    int
	jnlReclassAccount string
	jnlReclassClass   string
)

var journalReclassifyCmd = &cobra.Command{
	Use:   "reclassify [id|voucher-number]",
	Short: "Move one line of a voucher to another account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := client.Line{AccountType: jnlReclassClass}
		if code, err := strconv.Atoi(jnlReclassAccount); err == nil {
			target.AccountCode = code
		} else {
			target.AccountName = jnlReclassAccount
		}

		c := newClient()
		entry, err := c.GetJournal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		corr, err := c.ReclassifyJournal(cmd.Context(), entry.ID, jnlReclassLine, target)
		if err != nil {
			return err
		}
		fmt.Printf("Voided %s (reversal %s); corrected voucher %s\n",
			corr.Original.VoucherNumber, corr.Reversal.VoucherNumber, corr.Replacement.VoucherNumber)
		return nil
	},
}

// journal quick
var (
	quickDate      string
	quickAmount    string
	quickNarration string
	quickRef       string
	quickParty     string
	quickAccounts  []string // format: "index=code"
)

var journalQuickCmd = &cobra.Command{
	Use:   "quick [template]",
	Short: "Post a two-line voucher from a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(strings.ReplaceAll(quickAmount, ",", ""))
		if err != nil {
			return fmt.Errorf("invalid amount %q", quickAmount)
		}
		overrides := map[int]int{}
		for _, a := range quickAccounts {
			idx, code, ok := strings.Cut(a, "=")
			i, err1 := strconv.Atoi(idx)
			cd, err2 := strconv.Atoi(code)
			if !ok || err1 != nil || err2 != nil {
				return fmt.Errorf("invalid --account %q, expected index=code", a)
			}
			overrides[i] = cd
		}
		entry, err := newClient().PostTemplate(cmd.Context(), args[0], client.TemplateEntry{
			Date:      quickDate,
			Amount:    amount,
			Narration: quickNarration,
			Reference: quickRef,
			PartyName: quickParty,
			Accounts:  overrides,
		})
		if err != nil {
			return err
		}
		printJournal(entry)
		return nil
	},
}

var journalTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List quick-entry templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := newClient().ListTemplates(cmd.Context())
		if err != nil {
			return err
		}
		for _, t := range templates {
			fmt.Printf("%-14s %-22s %s\n", t.Key, t.Name, t.VoucherType)
			for i, e := range t.Entries {
				side := "Cr"
				if e.IsDebit {
					side = "Dr"
				}
				fmt.Printf("    %d  %s %d  %s\n", i, side, e.AccountCode, e.Role)
			}
		}
		return nil
	},
}

// journal next
var (
	nextType    string
	nextFY      string
	nextReserve bool
)

var journalNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show or reserve the next voucher number",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient().NextVoucher(cmd.Context(), nextType, nextFY, nextReserve)
		if err != nil {
			return err
		}
		if n.Reserved {
			fmt.Printf("Reserved %s\n", n.VoucherNumber)
		} else {
			fmt.Println(n.VoucherNumber)
		}
		return nil
	},
}

var journalCountersCmd = &cobra.Command{
	Use:   "counters",
	Short: "Show the last number issued in each voucher series",
	RunE: func(cmd *cobra.Command, args []string) error {
		counters, err := newClient().ListCounters(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %-12s %s\n", "FY", "TYPE", "LAST")
		for _, c := range counters {
			fmt.Printf("%-8s %-12s %s\n", c.FinancialYear, c.VoucherType,
				ledger.FormatVoucherNumber(c.VoucherType, c.FinancialYear, c.LastNumber))
		}
		return nil
	},
}

func printJournal(e *ledger.JournalEntry) {
	fmt.Printf("Voucher:   %s (%s)\n", e.VoucherNumber, e.VoucherType)
	fmt.Printf("Date:      %s   FY %s\n", e.Date.Format(ledger.DateLayout), e.FinancialYear)
	fmt.Printf("Status:    %s\n", e.Status)
	fmt.Printf("Narration: %s\n", e.Narration)
	if e.Reference != "" {
		fmt.Printf("Reference: %s\n", e.Reference)
	}
	if e.PartyName != "" {
		fmt.Printf("Party:     %s\n", e.PartyName)
	}
	if e.ReversalOf != "" {
		fmt.Printf("Reverses:  %s\n", e.ReversalOf)
	}
	if e.ReversedBy != "" {
		fmt.Printf("Reversed:  %s\n", e.ReversedBy)
	}
	fmt.Printf("  %-3s %-6s %-28s %16s %16s\n", "#", "CODE", "ACCOUNT", "DEBIT", "CREDIT")
	for _, l := range e.Lines {
		fmt.Printf("  %-3d %-6d %-28s %16s %16s\n", l.Index+1, l.AccountCode, truncate(l.AccountName, 28),
			ledger.FormatAmount(l.Debit), ledger.FormatAmount(l.Credit))
	}
	fmt.Printf("  %-39s %16s %16s\n", "TOTAL", e.TotalDebit.StringFixed(2), e.TotalCredit.StringFixed(2))
}

func init() {
	journalPostCmd.Flags().StringVar(&jnlType, "type", "", "Voucher type (payment, receipt, journal, contra, sales, purchase, ...)")
	journalPostCmd.Flags().StringVar(&jnlDate, "date", "", "Voucher date YYYY-MM-DD")
	journalPostCmd.Flags().StringVar(&jnlNarration, "narration", "", "What the voucher records")
	journalPostCmd.Flags().StringVar(&jnlRef, "ref", "", "Cheque/UTR/bill reference")
	journalPostCmd.Flags().StringVar(&jnlParty, "party", "", "Party name")
	journalPostCmd.Flags().StringVar(&jnlMode, "mode", "", "Payment mode (cash, UPI, NEFT, cheque)")
	journalPostCmd.Flags().StringArrayVar(&jnlLines, "line", nil, "Line as account:dr|cr:amount[:class] (repeat)")
	journalPostCmd.Flags().BoolVar(&jnlDryRun, "dry-run", false, "Validate without posting")
	journalPostCmd.MarkFlagRequired("type")
	journalPostCmd.MarkFlagRequired("date")

	journalListCmd.Flags().StringVar(&jnlListFrom, "from", "", "From date")
	journalListCmd.Flags().StringVar(&jnlListTo, "to", "", "To date")
	journalListCmd.Flags().StringVar(&jnlListType, "type", "", "Voucher type")
	journalListCmd.Flags().StringVar(&jnlListStatus, "status", "", "POSTED, VOID or LOCKED")
	journalListCmd.Flags().IntVar(&jnlListAccount, "account", 0, "Only vouchers touching this account")
	journalListCmd.Flags().IntVar(&jnlListLimit, "limit", 0, "Maximum rows")

	journalVoidCmd.Flags().StringVar(&jnlVoidReason, "reason", "", "Why the voucher is voided")
	journalVoidCmd.MarkFlagRequired("reason")

	journalReclassifyCmd.Flags().IntVar(&jnlReclassLine, "line", 0, "Line number as printed on the voucher")
	journalReclassifyCmd.Flags().StringVar(&jnlReclassAccount, "to", "", "Target account code or name")
	journalReclassifyCmd.Flags().StringVar(&jnlReclassClass, "class", "", "Classification when the target is new")
	journalReclassifyCmd.MarkFlagRequired("line")
	journalReclassifyCmd.MarkFlagRequired("to")

	journalQuickCmd.Flags().StringVar(&quickDate, "date", "", "Voucher date YYYY-MM-DD")
	journalQuickCmd.Flags().StringVar(&quickAmount, "amount", "", "Amount")
	journalQuickCmd.Flags().StringVar(&quickNarration, "narration", "", "Narration (default derived from the template)")
	journalQuickCmd.Flags().StringVar(&quickRef, "ref", "", "Reference")
	journalQuickCmd.Flags().StringVar(&quickParty, "party", "", "Party name")
	journalQuickCmd.Flags().StringSliceVar(&quickAccounts, "account", nil, "Replace a template account as index=code")
	journalQuickCmd.MarkFlagRequired("date")
	journalQuickCmd.MarkFlagRequired("amount")

	journalNextCmd.Flags().StringVar(&nextType, "type", "", "Voucher type")
	journalNextCmd.Flags().StringVar(&nextFY, "fy", "", "Financial year, e.g. 2024-25 (default current)")
	journalNextCmd.Flags().BoolVar(&nextReserve, "reserve", false, "Issue the number now")
	journalNextCmd.MarkFlagRequired("type")

	journalCmd.AddCommand(journalPostCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalGetCmd)
	journalCmd.AddCommand(journalVoidCmd)
	journalCmd.AddCommand(journalReclassifyCmd)
	journalCmd.AddCommand(journalQuickCmd)
	journalCmd.AddCommand(journalTemplatesCmd)
	journalCmd.AddCommand(journalNextCmd)
	journalCmd.AddCommand(journalCountersCmd)

	rootCmd.AddCommand(journalCmd)
}
