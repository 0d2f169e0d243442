// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package daemon turns the file/env configuration into a running relay and
// owns its signal-driven lifecycle
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundlabs-io/chainrelay"
	"github.com/fundlabs-io/chainrelay/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "daemon")

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}
	sweepInterval, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil {
		return fmt.Errorf("invalid sweep interval: %w", err)
	}
	broadcastTimeout, err := time.ParseDuration(cfg.BroadcastTimeout)
	if err != nil {
		return fmt.Errorf("invalid broadcast timeout: %w", err)
	}

	relay, err := chainrelay.New(
		chainrelay.NewConfig(
			chainrelay.WithLogger(logger),
			chainrelay.WithChainID(big.NewInt(cfg.ChainID)),
			chainrelay.WithNodeURL(cfg.NodeURL),
			chainrelay.WithDatabasePath(cfg.DatabasePath),
			chainrelay.WithApiListenAddress(
				fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ApiPort),
			),
			chainrelay.WithMetricsPort(cfg.MetricsPort),
			chainrelay.WithPlatformOperator(
				common.HexToAddress(cfg.PlatformOperator),
			),
			chainrelay.WithOperatorKey(cfg.OperatorKey),
			chainrelay.WithSweepInterval(sweepInterval),
			chainrelay.WithSweepWorkers(cfg.SweepWorkers),
			chainrelay.WithBroadcastTimeout(broadcastTimeout),
			chainrelay.WithShutdownTimeout(shutdownTimeout),
			chainrelay.WithTracing(cfg.TracingEnabled),
			chainrelay.WithTracingStdout(cfg.TracingStdout),
			// Enable metrics with default prometheus registry
			chainrelay.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run relay in goroutine
	errChan := make(chan error, 1)
	go func() {
		err := relay.Run()
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		if err := relay.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		if err == nil {
			logger.Info("relay stopped")
			if stopErr := relay.Stop(); stopErr != nil {
				logger.Error("shutdown errors occurred", "error", stopErr)
				return stopErr
			}
			return nil
		}
		logger.Error("relay error", "error", err)
		signalCtxStop()
		if stopErr := relay.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		return err
	}
}
