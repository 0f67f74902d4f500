package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/brandwatch/internal/delivery/http/handler"
	"github.com/user/brandwatch/internal/delivery/http/router"
	"github.com/user/brandwatch/internal/usecase"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the control API",
	Long:  "Run the background scheduler that searches every interval, plus the HTTP control API and /metrics.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.logger

	scheduler := usecase.NewScheduler(a.state, a.ctrl, a.ctrl, cfg.SchedTick(), log)

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(a.ctrl, log)
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router.New(apiHandler, log),
		ReadTimeout: 10 * time.Second,
		// Runs requested with wait can take minutes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if a.ctrl.Stop() {
			waitIdle(shutdownCtx, a.state)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return err
	}
	log.Info("Server stopped")
	return nil
}

// waitIdle blocks until no run is in progress or ctx is done.
func waitIdle(ctx context.Context, state *usecase.RunState) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for state.Running() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
