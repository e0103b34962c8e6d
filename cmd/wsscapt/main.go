package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/git-apexplanners/wsscapt/internal/adapters/recognizer"
	"github.com/git-apexplanners/wsscapt/internal/adapters/storage/memory"
	"github.com/git-apexplanners/wsscapt/internal/adapters/storage/spool"
	"github.com/git-apexplanners/wsscapt/internal/adapters/transport/memq"
	"github.com/git-apexplanners/wsscapt/internal/adapters/transport/wsfeed"
	"github.com/git-apexplanners/wsscapt/internal/analyzer"
	"github.com/git-apexplanners/wsscapt/internal/correlator"
	cfgpkg "github.com/git-apexplanners/wsscapt/internal/infrastructure/config"
	httpapi "github.com/git-apexplanners/wsscapt/internal/infrastructure/httpapi"
	obs "github.com/git-apexplanners/wsscapt/internal/infrastructure/observability"
	"github.com/git-apexplanners/wsscapt/internal/ingress"
	"github.com/git-apexplanners/wsscapt/internal/usecase"
	"github.com/git-apexplanners/wsscapt/pkg/shared/normalize"
)

func main() {
	cfg := cfgpkg.FromEnv()

	logger := obs.NewLoggerTo(cfg.LogLevel, cfg.LogFile, cfg.LogMaxSizeMB)
	logger.Info().Str("addr", cfg.Addr).Str("version", obs.Version).Msg("starting wsscapt")

	metrics := obs.NewMetrics()

	fp, err := normalize.NewFingerprinter(cfg.VolatileKeys, cfg.FingerprintJQ)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid fingerprint configuration")
	}
	layout, err := cfg.LoadLayout()
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.LayoutFile).Msg("failed to load game layout")
	}

	spoolWriter, err := spool.NewWriter(cfg.SpoolDir, cfg.SpoolMaxSizeMB)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.SpoolDir).Msg("failed to open spin spool")
	}
	defer spoolWriter.Close()

	store := memory.NewStore(spoolWriter, metrics)

	detector, err := analyzer.NewDetector(cfg.DupIndexSize, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build duplicate index")
	}
	patterns := analyzer.New(analyzer.Config{
		Method:       cfg.CorrelationMethod,
		MinSamples:   cfg.MinSamples,
		Significance: cfg.Significance,
		TopCombos:    cfg.TopCombos,
	}, layout, metrics)

	svc := usecase.NewSessionService(store, patterns, detector, logger)

	var bus usecase.Transport
	if cfg.FeedURL != "" {
		bus = wsfeed.New(cfg.FeedURL, logger)
	} else {
		bus = memq.New(256)
	}
	defer bus.Close()
	svc.AttachBus(bus, cfg.AnalyzeOnClose)

	corr := correlator.New(correlator.Config{
		Tolerance:     cfg.Tolerance,
		BufferCap:     cfg.BufferCap,
		SweepInterval: cfg.SweepInterval,
		BetKeys:       cfg.BetKeys,
		OutcomeKeys:   cfg.OutcomeKeys,
	}, svc, recognizer.Noop{}, layout, fp, logger, metrics)
	svc.AttachFlusher(corr)

	ing := ingress.New(bus, corr, logger, metrics)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewRouter(&httpapi.Deps{Cfg: cfg, Logger: logger, Metrics: metrics, Svc: svc}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	components := []usecase.Component{corr, ing}
	for _, c := range components {
		if err := c.Start(gctx); err != nil {
			logger.Fatal().Err(err).Msg("component start failed")
		}
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for i := len(components) - 1; i >= 0; i-- {
			if err := components[i].Stop(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("component shutdown error")
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	logger.Info().Msg("wsscapt stopped")
}
