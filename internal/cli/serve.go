package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/dossier/internal/activity"
	"github.com/gosuda/dossier/internal/config"
	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live activity feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	repo, err := newRepository(cfg, b)
	if err != nil {
		return err
	}

	// Warm the cache; a failure here only means the list starts empty.
	if reports, err := repo.LoadAll(ctx); err != nil {
		if !errors.Is(err, domain.ErrStaleCache) {
			return err
		}
		log.Warn().Err(err).Msg("initial report load failed")
	} else {
		log.Info().Int("reports", len(reports)).Msg("report cache loaded")
	}

	srv := server.New(ctx, cfg, server.Deps{
		Reports:  repo,
		Recorder: activity.NewRecorder(b.docs, nil),
		Docs:     b.docs,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}
