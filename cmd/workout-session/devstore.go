package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ameet2r/workout/internal/devstore"
)

func devStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev-store",
		Short: "Serve an in-memory session store for local development",
		Long: `Serve an in-memory session store for local development.

Examples:
  workout-session dev-store --listen :8089 --seed fixtures.yaml`,
		RunE: runDevStore,
	}
	cmd.Flags().String("listen", "", "listen address (default :8089)")
	cmd.Flags().String("seed", "", "YAML fixtures to load at startup")
	return cmd
}

func runDevStore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg, os.Stderr)
	defer closeLog()

	srv := devstore.New(logger, devstore.Options{Token: cfg.DevStore.Token})
	if cfg.DevStore.Seed != "" {
		fixtures, err := devstore.LoadFixtures(cfg.DevStore.Seed)
		if err != nil {
			return err
		}
		srv.Seed(fixtures)
		logger.Printf("DevStore: seeded %d plans and %d sessions from %s",
			len(fixtures.Plans), len(fixtures.Sessions), cfg.DevStore.Seed)
	}

	httpSrv := &http.Server{
		Addr:              cfg.DevStore.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("DevStore: listening on %s", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dev store: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Println("DevStore: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
