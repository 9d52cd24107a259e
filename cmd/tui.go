package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/client"
	"github.com/simonvc/khata/internal/config"
	"github.com/simonvc/khata/internal/tui"
)

const embeddedAddr = "127.0.0.1:8888"

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL := cfg.Server

		if !cmd.Flags().Changed("server") {
			// The alt screen owns the terminal, so the embedded server
			// logs nowhere.
			log := config.NewLogger(cfg, io.Discard)
			srv, st, err := newServer(cfg, embeddedAddr, log)
			if err != nil {
				return err
			}
			defer st.Close()

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			serverURL = "http://" + embeddedAddr

			c := client.New(serverURL, flagActor)
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			for {
				if _, err := c.Ping(ctx); err == nil {
					break
				}
				select {
				case err := <-errc:
					return fmt.Errorf("embedded server: %w", err)
				case <-ctx.Done():
					return fmt.Errorf("timeout waiting for embedded server")
				case <-time.After(50 * time.Millisecond):
				}
			}
		}

		app := tui.NewApp(client.New(serverURL, flagActor))
		p := tea.NewProgram(app, tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
