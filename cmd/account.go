package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/ledger"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the chart of accounts",
}

// account create
var (
	acctCreateName     string
	acctCreateCode     int
	acctCreateClass    string
	acctCreateGroup    string
	acctCreateCashBank bool
)

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Long:  "Create an account. Give --code, or give --class and the next free code in that range is assigned.",
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := newClient().CreateAccount(cmd.Context(), client.NewAccount{
			Code:           acctCreateCode,
			Name:           acctCreateName,
			Classification: ledger.Classification(acctCreateClass),
			Group:          acctCreateGroup,
			CashOrBank:     acctCreateCashBank,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Account created: %d %s [%s, %s]\n", created.Code, created.Name, created.Classification, created.Group)
		return nil
	},
}

// account list
var (
	acctListClass    string
	acctListActive   bool
	acctListCashBank bool
)

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := newClient().ListAccounts(cmd.Context(), client.AccountQuery{
			Classification: ledger.Classification(acctListClass),
			ActiveOnly:     acctListActive,
			CashBankOnly:   acctListCashBank,
		})
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts found.")
			return nil
		}

		fmt.Printf("%-6s %-30s %-10s %-22s %18s\n", "CODE", "NAME", "CLASS", "GROUP", "BALANCE")
		fmt.Printf("%-6s %-30s %-10s %-22s %18s\n", "----", "----", "-----", "-----", "-------")
		for _, a := range accounts {
			name := truncate(a.Name, 30)
			if !a.Active {
				name = truncate(a.Name, 24) + " (off)"
			}
			fmt.Printf("%-6d %-30s %-10s %-22s %18s\n", a.Code, name, a.Classification, truncate(a.Group, 22), balanceLabel(&a))
		}
		return nil
	},
}

var accountGetCmd = &cobra.Command{
	Use:   "get [code]",
	Short: "Get account details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("account code must be a number: %q", args[0])
		}
		acct, err := newClient().GetAccount(cmd.Context(), code)
		if err != nil {
			return err
		}
		fmt.Printf("Code:      %d\n", acct.Code)
		fmt.Printf("Name:      %s\n", acct.Name)
		fmt.Printf("Class:     %s (%s)\n", acct.Classification, acct.Nature)
		fmt.Printf("Group:     %s\n", acct.Group)
		fmt.Printf("Cash/Bank: %v\n", acct.CashOrBank)
		fmt.Printf("Active:    %v\n", acct.Active)
		fmt.Printf("Balance:   %s\n", balanceLabel(acct))
		fmt.Printf("Created:   %s\n", acct.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func accountActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [code]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("account code must be a number: %q", args[0])
			}
			acct, err := newClient().SetAccountActive(cmd.Context(), code, active)
			if err != nil {
				return err
			}
			state := "inactive"
			if acct.Active {
				state = "active"
			}
			fmt.Printf("Account %d %s is now %s\n", acct.Code, acct.Name, state)
			return nil
		},
	}
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Show the default chart of accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		chart, err := newClient().GetChart(cmd.Context())
		if err != nil {
			return err
		}
		var class ledger.Classification
		for _, e := range chart {
			if e.Classification != class {
				class = e.Classification
				fmt.Printf("\n  %s\n", ledger.ClassificationLabel(class))
			}
			fmt.Printf("    %-6d %-28s %s\n", e.Code, e.Name, e.Group)
		}
		return nil
	},
}

// balanceLabel shows the balance on the account's normal side, e.g.
// "₹40,000.00 Dr".
func balanceLabel(a *ledger.Account) string {
	b := a.Balance
	if b.IsZero() {
		return "-"
	}
	side := "Dr"
	if b.IsNegative() {
		side = "Cr"
		b = b.Neg()
	}
	return ledger.FormatINR(b) + " " + side
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-2]) + ".."
}

func init() {
	accountCreateCmd.Flags().StringVar(&acctCreateName, "name", "", "Account name")
	accountCreateCmd.Flags().IntVar(&acctCreateCode, "code", 0, "Account code (1000-5999)")
	accountCreateCmd.Flags().StringVar(&acctCreateClass, "class", "", "asset, liability, equity, income or expense")
	accountCreateCmd.Flags().StringVar(&acctCreateGroup, "group", "", "Account group (e.g. Indirect Expenses)")
	accountCreateCmd.Flags().BoolVar(&acctCreateCashBank, "cash-bank", false, "Include in the cash book")
	accountCreateCmd.MarkFlagRequired("name")

	accountListCmd.Flags().StringVar(&acctListClass, "class", "", "Filter by classification")
	accountListCmd.Flags().BoolVar(&acctListActive, "active", false, "Only active accounts")
	accountListCmd.Flags().BoolVar(&acctListCashBank, "cash-bank", false, "Only cash and bank accounts")

	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountGetCmd)
	accountCmd.AddCommand(accountActiveCmd("deactivate", "Stop new postings to an account", false))
	accountCmd.AddCommand(accountActiveCmd("activate", "Allow postings to an account again", true))
	accountCmd.AddCommand(chartCmd)

	rootCmd.AddCommand(accountCmd)
}
