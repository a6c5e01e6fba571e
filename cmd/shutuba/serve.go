package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/keiba-shutuba/config"
	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/scraper"
	"github.com/aluiziolira/keiba-shutuba/web"
	"github.com/aluiziolira/keiba-shutuba/workbook"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(def *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the date form that returns the entry workbook",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("listen", def.ListenAddr, "Address to listen on")
	cmd.Flags().Bool("metrics", def.MetricsEnabled, "Expose Prometheus metrics on /metrics")
	cmd.Flags().Duration("cache-ttl", def.CacheTTL, "How long a scraped date stays cached")
	cmd.Flags().Int("cache-size", def.CacheSize, "Number of dates kept in the cache (0 disables it)")
	addOutputFlags(cmd, def)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return failure("Invalid configuration", err)
	}

	log, err := logger.New(cfg.Verbose)
	if err != nil {
		return failure("Failed to initialize logger", err)
	}
	defer func() { _ = log.Sync() }()

	s, err := scraper.NewScraper(cfg, log)
	if err != nil {
		return failure("Failed to create scraper", err)
	}

	h := web.New(s, workbook.NewRenderer(cfg.Zoom, log), web.Options{
		Label:     cfg.Label,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	}, log)

	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		gatherer = s.Metrics.Registry
	}
	e := web.NewServer(h, gatherer, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr), zap.Bool("metrics", cfg.MetricsEnabled))
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return failure("Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return failure("Shutdown failed", err)
	}
	return nil
}
