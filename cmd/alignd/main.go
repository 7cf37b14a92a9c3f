package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/llamasearchai/OpenManufacturing/internal/align"
	"github.com/llamasearchai/OpenManufacturing/internal/alignd"
	"github.com/llamasearchai/OpenManufacturing/internal/calibration"
	"github.com/llamasearchai/OpenManufacturing/internal/metrics"
	"github.com/llamasearchai/OpenManufacturing/internal/stage"
	"github.com/llamasearchai/OpenManufacturing/pkg/config"
	"github.com/llamasearchai/OpenManufacturing/pkg/logger"
)

func main() {
	var configPath string
	var httpAddr string
	var logLevel string

	flag.StringVar(&configPath, "config", "config/config.yaml", "path to configuration file")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; overrides config)")
	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using system environment")
	}
	if env := os.Getenv("ALIGND_CONFIG"); env != "" && configPath == "config/config.yaml" {
		configPath = env
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if httpAddr == "" {
		httpAddr = cfg.HTTPAddr
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger.SetDefault(logger.NewText(logLevel, os.Stdout))

	store := alignd.NewJobStore()
	collector := metrics.NewCollector()

	var notifier *alignd.Notifier
	if cfg.Callback != nil {
		notifier = alignd.NewNotifier(cfg.Callback.URL, cfg.Callback.Secret)
		logger.Info("completion callback enabled", "url", cfg.Callback.URL)
	}

	defaults := align.Parameters{
		PositionToleranceUm: cfg.Engine.PositionToleranceUm,
		OpticalThresholdDbm: cfg.Engine.OpticalThresholdDbm,
		MaxIterations:       cfg.Engine.MaxIterations,
	}
	executor := alignd.NewExecutor(store, collector, notifier, defaults, cfg.Strategies)

	for _, devCfg := range cfg.Devices {
		profile := calibration.DefaultProfile()
		if devCfg.CalibrationFile != "" {
			profile, err = calibration.Load(devCfg.CalibrationFile)
			if err != nil {
				logger.Error("failed to load calibration",
					"device_id", devCfg.ID, "path", devCfg.CalibrationFile, "error", err)
				os.Exit(1)
			}
		}

		dev := &alignd.Device{
			ID:          devCfg.ID,
			Hardware:    stage.NewSimulatedFromConfig(devCfg.Simulation),
			Calibration: profile,
		}
		if err := executor.RegisterDevice(dev); err != nil {
			logger.Error("failed to register device", "device_id", devCfg.ID, "error", err)
			os.Exit(1)
		}
		logger.Info("device registered",
			"device_id", devCfg.ID,
			"calibrated", devCfg.CalibrationFile != "",
			"noise_sigma_dbm", devCfg.Simulation.NoiseSigmaDbm)
	}

	tuner := alignd.NewTuner(collector, cfg.Strategies)
	api := alignd.NewHTTPServer(store, executor, collector, tuner)

	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("daemon stopped")
}
