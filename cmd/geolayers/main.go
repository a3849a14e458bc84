package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Jimkik/GeoData-Project/internal/app"
	"github.com/Jimkik/GeoData-Project/internal/core/config"
	"github.com/Jimkik/GeoData-Project/internal/core/observability"
	"github.com/Jimkik/GeoData-Project/internal/core/server"
	"github.com/Jimkik/GeoData-Project/internal/logger"
	"github.com/Jimkik/GeoData-Project/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is fine, the environment may be set another way
	_ = godotenv.Load(".env")
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "geolayers",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geolayers",
		"addr", cfg.Addr,
		"version", Version,
		"sparql_endpoint", cfg.SPARQLEndpoint,
		"store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("app setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("close failed", "err", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	var mp *metrics.Provider
	if cfg.Metrics.Enabled {
		mp = metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		g.Go(func() error { return mp.Serve(gctx, appLog) })
	}

	handler := a.Handler(nil)
	if mp != nil {
		handler = a.Handler(mp.Handler())
	}
	g.Go(func() error { return server.Run(gctx, cfg.Addr, appLog, handler) })

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
