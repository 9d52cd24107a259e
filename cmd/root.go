package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/config"
)

var (
	flagConfig string
	flagServer string
	flagDB     string
	flagActor  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "khata",
	Short:         "Double-entry books for a small business",
	Long:          "khata keeps vouchers, ledgers and the cash book for a small Indian business, derives the trial balance, P&L and balance sheet, and reconciles bank statements against the books.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			loaded.DB = flagDB
		}
		if cmd.Flags().Changed("server") {
			loaded.Server = flagServer
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ./"+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8888", "Server address")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "khata.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", defaultActor(), "Name recorded in the audit log")
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func newClient() *client.Client {
	return client.New(cfg.Server, flagActor)
}

func Execute() error {
	return rootCmd.Execute()
}
