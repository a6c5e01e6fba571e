package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/keiba-shutuba/config"
	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/parser"
	"github.com/aluiziolira/keiba-shutuba/pipeline"
	"github.com/aluiziolira/keiba-shutuba/scraper"
	"github.com/aluiziolira/keiba-shutuba/workbook"
)

func newFetchCmd(def *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <date>",
		Short: "Scrape all races of a date and write the entry workbook",
		Long: `Scrape every race held on <date> (YYYYMMDD or YYMMDD) and write the
combined entry table to <output-dir>/<label>_<YYYYMMDD>.<ext>.`,
		Example: `  shutuba fetch 20240106
  shutuba fetch 240106 -o out --format dual`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
	cmd.Flags().StringP("output-dir", "o", def.OutputDir, "Directory for output files")
	cmd.Flags().StringP("format", "f", def.OutputFormat, "Output format: xlsx, csv, json, dual, or all")
	addOutputFlags(cmd, def)
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return failure("Invalid configuration", err)
	}
	date, err := parser.NormalizeDate(args[0])
	if err != nil {
		return failure("Invalid date", err)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := s.Run(ctx, date)
	if err != nil {
		return failure("Scrape failed", err)
	}

	if err := printSummary(cmd.OutOrStdout(), result); err != nil {
		log.Warn("print summary failed", zap.Error(err))
	}
	if w := result.Warning(); w != nil {
		warning("%s", w.Error())
		return nil
	}

	renderer := workbook.NewRenderer(cfg.Zoom, log)
	w, paths, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputDir, cfg.Label, result.Date, renderer)
	if err != nil {
		return failure("Failed to create output writer", err)
	}
	if err := pipeline.Write(w, result.Table, pipeline.DefaultBatchSize); err != nil {
		if !errors.Is(err, workbook.ErrNoRows) {
			return failure("Failed to write output", err)
		}
		warning("%s", workbook.NoRowsWarning(result.Date).Error())
	}

	// Text outputs of a combined format are still written when the
	// workbook has nothing to render.
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			success("wrote %s", p)
		}
	}
	return nil
}
