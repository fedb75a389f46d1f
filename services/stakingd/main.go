package stakingd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tuturu-tech/nft-staking/config"
	"github.com/tuturu-tech/nft-staking/observability/logging"
	telemetry "github.com/tuturu-tech/nft-staking/observability/otel"
)

// Main initialises and runs the staking daemon.
func Main() error {
	var cfgPath, initPath string
	flag.StringVar(&cfgPath, "config", "stakingd.toml", "path to stakingd configuration (TOML or YAML)")
	flag.StringVar(&initPath, "init", "", "write a default configuration to this path and exit")
	flag.Parse()

	if initPath != "" {
		if err := config.Write(initPath, config.Default()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithFile("stakingd", cfg.Logging.Env, logging.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() { _ = logCloser.Close() }()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakingd",
		Environment: cfg.Logging.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	svc, err := Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("stakingd: close stores", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      svc.Server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("stakingd listening",
			"address", cfg.ListenAddress,
			"stakingToken", cfg.Ledger.StakingToken,
			"rewardToken", cfg.Ledger.RewardToken,
			"rewardRate", cfg.Ledger.RewardRate,
			logging.Secret("hmacSecret", cfg.Auth.HMACSecret))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
