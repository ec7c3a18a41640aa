package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chordring/internal/chord"
	"chordring/internal/config"
	"chordring/internal/coord"
	"chordring/internal/domain"
	"chordring/internal/driver"
	"chordring/internal/logger"
	zapfactory "chordring/internal/logger/zap"
	"chordring/internal/observer"
	"chordring/internal/telemetry"
)

var defaultConfigPath = "config/chordsim/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewAdapter(zapLog)
	} else {
		lgr = logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	tracer, shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "chordsim", os.Stdout)
	defer func() { _ = shutdownTracer(context.Background()) }()

	space, err := domain.NewSpace(cfg.Ring.Bits)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err))
		os.Exit(1)
	}
	lgr.Debug("identifier space initialized",
		logger.F("bits", space.Bits), logger.F("byte_len", space.ByteLen))

	periods := chord.Periods{
		Stabilize:        cfg.Ring.StabilizePeriod,
		FixFingers:       cfg.Ring.FixFingersPeriod,
		CheckPredecessor: cfg.Ring.CheckPredecessorPeriod,
	}
	coordinator := coord.New(space, cfg.Ring.Replication, cfg.Ring.Seed, periods, lgr.Named("coordinator"), tracer)
	defer coordinator.Close()

	obs := observer.New(coordinator)
	drv := driver.New(space, coordinator, obs, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		drv.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
		lgr.Info("driver session ended")
	case <-ctx.Done():
		lgr.Info("shutdown signal received")
	}
}

