// Command convstats runs the aggregation: it reads the gridded input
// fields, accumulates binned convective statistics for every configured
// region-month subset, and writes the stacked product with provenance.
//
// Usage:
//
//	go run ./cmd/convstats -config configs/example.yaml
//
// While a run is active and http_addr is configured, GET /progress
// reports completed subsets and GET /metrics serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httpadapter "github.com/tropmet/convstats/internal/adapter/http"
	"github.com/tropmet/convstats/internal/adapter/netcdf"
	"github.com/tropmet/convstats/internal/binstats"
	"github.com/tropmet/convstats/internal/config"
	"github.com/tropmet/convstats/internal/grid"
	"github.com/tropmet/convstats/internal/observability"
	"github.com/tropmet/convstats/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush on exit

	if err := run(cfg, logger); err != nil {
		logger.Error("run failed", zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	logger.Info("reading input fields", zap.String("path", cfg.Input))
	dataset, err := netcdf.ReadDataset(cfg.Input)
	if err != nil {
		return err
	}

	builder := binstats.NewBuilder(
		binSpec(cfg.Bins.BL),
		binSpec(cfg.Bins.Subsat),
		binSpec(cfg.Bins.Cape),
		cfg.Threshold,
		cfg.Workers,
	)
	agg := pipeline.New(builder, regions(cfg), cfg.Months, cfg.Author, logger, metrics)

	// The monitor server is optional; without an address this is a plain
	// batch job.
	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, agg, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
	}

	product, runErr := agg.Run(ctx, dataset)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("writing product", zap.String("path", cfg.Output))
	if err := netcdf.WriteProduct(cfg.Output, product); err != nil {
		return err
	}
	logger.Info("run complete")
	return nil
}

func binSpec(b config.BinConfig) binstats.Spec {
	return binstats.Spec{Min: b.Min, Max: b.Max, Width: b.Width}
}

func regions(cfg *config.Config) []pipeline.Region {
	out := make([]pipeline.Region, len(cfg.Regions))
	for i, r := range cfg.Regions {
		out[i] = pipeline.Region{
			Name: r.Name,
			Bounds: grid.Bounds{
				LatMin: r.LatMin,
				LatMax: r.LatMax,
				LonMin: r.LonMin,
				LonMax: r.LonMax,
			},
		}
	}
	return out
}
