package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/reportgest/internal/api"
	"github.com/dgallion1/reportgest/internal/fetch"
	"github.com/dgallion1/reportgest/internal/llm"
	"github.com/dgallion1/reportgest/internal/metrics"
	"github.com/dgallion1/reportgest/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve report jobs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, stdout)
		},
	}
}

func serve(ctx context.Context, opts *options, stdout io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return usageError{fmt.Errorf("invalid configuration: %w", err)}
	}
	log := newLogger(stdout, opts.verbose, true)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, closeGateway := newGateway(cfg)
	defer closeGateway()

	m := metrics.New()
	stats := llm.NewLLMStats(time.Hour)
	p := pipeline.New(cfg, pipeline.Deps{
		LLM:      gw,
		Searcher: newSearcher(ctx, cfg, log),
		Fetcher:  fetch.NewHTTP(cfg.UserAgent),
		Stats:    stats,
		Metrics:  m,
		Log:      log,
	})

	orch := pipeline.NewOrchestrator(cfg, p, m, log)
	orch.Start(ctx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(orch, stats, m, log, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting reportgest", "port", cfg.Port, "provider", cfg.LLMProvider, "workers", cfg.WorkerCount)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		orch.Stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	orch.Stop()
	return nil
}
