package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/simonvc/khata/internal/config"
	"github.com/simonvc/khata/internal/posting"
	"github.com/simonvc/khata/internal/recon"
	"github.com/simonvc/khata/internal/server"
	"github.com/simonvc/khata/internal/store"
)

var serveAddr string

// newServer opens the books and wires the engines behind the HTTP API.
// The caller closes the returned store.
func newServer(c *config.Config, addr string, log *slog.Logger) (*server.Server, *store.Store, error) {
	st, err := store.Open(c.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	pe := posting.NewEngine(st, posting.WithLogger(log), posting.WithRetry(c.Retry()))
	re := recon.NewEngine(st, c.Recon, recon.WithLogger(log))
	if err := pe.Verify(context.Background()); err != nil {
		log.Error("books failed verification; posting is halted until resumed", "err", err)
	}
	srv := server.New(st, pe, re, server.Options{
		Addr:           addr,
		RequestTimeout: c.RequestTimeout,
		RateLimit:      c.RateLimit,
		Logger:         log,
	})
	return srv, st, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		log := config.NewLogger(cfg, os.Stderr)
		slog.SetDefault(log)

		srv, st, err := newServer(cfg, addr, log)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
			log.Info("shutting down", "business", cfg.Business.Name)
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8888", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
