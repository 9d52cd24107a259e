package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/config"
)

var yearCmd = &cobra.Command{
	Use:   "year",
	Short: "Financial years (April to March)",
}

var yearListCmd = &cobra.Command{
	Use:   "list",
	Short: "List financial years and whether they are closed",
	RunE: func(cmd *cobra.Command, args []string) error {
		years, err := newClient().ListYears(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %-10s %-10s %-8s %s\n", "FY", "FROM", "TO", "STATE", "VOUCHERS")
		for _, y := range years {
			state := "open"
			if y.Locked {
				state = "closed"
			}
			fmt.Printf("%-8s %-10s %-10s %-8s %d\n", y.FinancialYear, y.Start, y.End, state, y.Vouchers)
		}
		return nil
	},
}

var yearCloseCmd = &cobra.Command{
	Use:   "close [fy]",
	Short: "Close a financial year; its vouchers become read-only",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().CloseYear(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Closed FY %s: %d vouchers locked\n", res.FinancialYear, res.Locked)
		return nil
	},
}

var (
	auditRef    string
	auditEntity string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long:  "Show the audit log. Use --ref with the reference from an internal error to find its cause.",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newClient().ListAudit(cmd.Context(), auditRef, auditEntity, auditLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-20s %-10s %-38s %s\n", e.At.Format("2006-01-02 15:04:05"), e.Action, e.Actor, e.EntityID+e.Ref, e.Detail)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists; use --force to overwrite", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditRef, "ref", "", "Error reference")
	auditCmd.Flags().StringVar(&auditEntity, "entity", "", "Entity id (journal id, account code, bank txn id)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries")

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	yearCmd.AddCommand(yearListCmd)
	yearCmd.AddCommand(yearCloseCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(yearCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(configCmd)
}
