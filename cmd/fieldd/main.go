// fieldd is the companion daemon: it runs the reflexive loop, the
// deliberative runner, and the telemetry server against one SQLite
// database, ingesting homeostasis frames over HTTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/config"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/deliberative"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/phase"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/reflex"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/server"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/store"
)

// #region main
func main() {
	cfgPath := envOr("FIELD_CONFIG", "")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	st, err := store.NewStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer st.Close()

	loop := reflex.NewLoop(
		sense.NewDetector(cfg.Detector),
		contextkey.NewTracker(cfg.Tracker),
		field.New(cfg.Field, cfg.CuriosityDrive),
		cfg.Gate,
		phase.NewMachine(cfg.Phase),
		cfg.DegradedAfter,
	)

	tickPeriod := time.Duration(cfg.TickPeriod)
	runner := deliberative.NewRunner(loop, st, logger, deliberative.Config{
		TickPeriod:      tickPeriod,
		MixInterval:     tickPeriod * time.Duration(cfg.MixEvery),
		PersistInterval: tickPeriod * time.Duration(cfg.PersistEvery),
		Baseline:        cfg.Field.ColdStartBase * cfg.CuriosityDrive,
		Field:           cfg.Field,
		Mixer:           cfg.Mixer,
		Boundary:        cfg.Boundary,
	})

	restored, err := runner.Resync()
	if err != nil {
		logger.Fatal("failed to restore persisted field", zap.Error(err))
	}
	if restored {
		logger.Info("field restored from store", zap.String("path", cfg.DatabasePath))
	} else {
		logger.Info("starting with a fresh field")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frames := make(chan sense.Frame, 64)
	srv := server.New(loop, runner, frames, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Run(ctx, tickPeriod, frames)
		return nil
	})
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return srv.Serve(ctx, cfg.ListenAddr) })

	logger.Info("companion daemon ready",
		zap.String("db", cfg.DatabasePath),
		zap.String("listen", cfg.ListenAddr),
		zap.Duration("tick_period", tickPeriod),
	)

	if err := g.Wait(); err != nil {
		logger.Fatal("daemon exited", zap.Error(err))
	}
	logger.Info("daemon stopped")
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
