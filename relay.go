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

package chainrelay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fundlabs-io/chainrelay/api"
	"github.com/fundlabs-io/chainrelay/chainclient"
	"github.com/fundlabs-io/chainrelay/confirm"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/fundlabs-io/chainrelay/event"
	"github.com/fundlabs-io/chainrelay/txsubmit"
	"github.com/fundlabs-io/chainrelay/txsweep"
	"github.com/fundlabs-io/chainrelay/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay wires the submission pipeline, the reconciliation sweeper, and the
// HTTP boundary around a shared transaction store and ledger client
type Relay struct {
	eventBus      *event.EventBus
	db            *database.Database
	client        chainclient.Client
	guard         *wallet.Guard
	resolver      *wallet.Resolver
	finalizer     *confirm.Finalizer
	submitter     *txsubmit.Submitter
	sweeper       *txsweep.Sweeper
	api           *api.Api
	metricsServer *http.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Relay, error) {
	eventBus := event.NewEventBus(cfg.promRegistry)
	r := &Relay{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := r.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return r, nil
}

func (r *Relay) Run() error {
	// Configure tracing
	if r.config.tracing {
		if err := r.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir: r.config.dataDir,
		Logger:  r.config.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	// Connect ledger client
	if r.config.client != nil {
		r.client = r.config.client
	} else {
		client, err := chainclient.NewEthereumClient(
			context.Background(),
			chainclient.EthereumClientConfig{
				Logger:  r.config.logger,
				NodeURL: r.config.nodeURL,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ledger node: %w", err)
		}
		r.client = client
	}
	// Authorization guard
	r.guard, err = wallet.NewGuard(wallet.GuardConfig{
		Logger:           r.config.logger,
		Database:         r.db,
		PlatformOperator: r.config.platformOperator,
		OperatorKeyHex:   r.config.operatorKeyHex,
	})
	if err != nil {
		return fmt.Errorf("failed to configure authorization guard: %w", err)
	}
	// Shared finalizer for both confirmation paths
	r.finalizer = confirm.NewFinalizer(confirm.FinalizerConfig{
		PromRegistry: r.config.promRegistry,
		Logger:       r.config.logger,
		EventBus:     r.eventBus,
		Database:     r.db,
	})
	// Log terminal transitions regardless of which path produced them
	r.eventBus.SubscribeFunc(
		confirm.TransactionMinedEventType,
		r.handleFinalizedEvent,
	)
	r.eventBus.SubscribeFunc(
		confirm.TransactionFailedEventType,
		r.handleFinalizedEvent,
	)
	// Submission pipeline
	r.submitter = txsubmit.NewSubmitter(txsubmit.SubmitterConfig{
		PromRegistry:     r.config.promRegistry,
		Logger:           r.config.logger,
		Database:         r.db,
		Client:           r.client,
		Guard:            r.guard,
		Finalizer:        r.finalizer,
		ChainID:          r.config.chainID,
		BroadcastTimeout: r.config.broadcastTimeout,
	})
	// Wallet address resolution
	r.resolver = wallet.NewResolver(wallet.ResolverConfig{
		Logger:   r.config.logger,
		Database: r.db,
		Client:   r.client,
	})
	// Reconciliation sweeper
	r.sweeper = txsweep.NewSweeper(txsweep.SweeperConfig{
		PromRegistry: r.config.promRegistry,
		Logger:       r.config.logger,
		Database:     r.db,
		Client:       r.client,
		Finalizer:    r.finalizer,
		Interval:     r.config.sweepInterval,
		Workers:      r.config.sweepWorkers,
	})
	r.sweeper.Start()
	// HTTP API
	if r.config.apiListenAddr != "" {
		r.api = api.New(api.Config{
			Logger:     r.config.logger,
			Database:   r.db,
			Submitter:  r.submitter,
			Resolver:   r.resolver,
			ListenAddr: r.config.apiListenAddr,
		})
		go func() {
			if err := r.api.Start(); err != nil {
				r.config.logger.Error(
					"api listener failed",
					"component", "relay",
					"error", err,
				)
			}
		}()
	}
	// Metrics listener
	if r.config.metricsPort > 0 {
		r.startMetricsListener()
	}

	// Wait for shutdown signal
	<-r.done
	return nil
}

func (r *Relay) startMetricsListener() {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	r.metricsServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", r.config.metricsPort),
		Handler:      metricsMux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	r.config.logger.Info(
		fmt.Sprintf(
			"serving prometheus metrics on port %d",
			r.config.metricsPort,
		),
		"component", "relay",
	)
	go func() {
		err := r.metricsServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.config.logger.Error(
				"metrics listener failed",
				"component", "relay",
				"error", err,
			)
		}
	}()
}

func (r *Relay) handleFinalizedEvent(evt event.Event) {
	e, ok := evt.Data.(confirm.TransactionFinalizedEvent)
	if !ok {
		return
	}
	r.config.logger.Info(
		"transaction reached terminal state",
		"component", "relay",
		"tx_hash", e.Hash,
		"state", string(e.State),
	)
}

// Submitter exposes the submission pipeline for embedding callers
func (r *Relay) Submitter() *txsubmit.Submitter {
	return r.submitter
}

// Resolver exposes wallet address resolution for embedding callers
func (r *Relay) Resolver() *wallet.Resolver {
	return r.resolver
}

// Database exposes the transaction store for embedding callers
func (r *Relay) Database() *database.Database {
	return r.db
}

func (r *Relay) Stop() error {
	var err error
	r.shutdownOnce.Do(func() {
		err = r.shutdown()
	})
	return err
}

func (r *Relay) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if r.config.shutdownTimeout > 0 {
		shutdownTimeout = r.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	r.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	r.config.logger.Debug("shutdown phase 1: stopping new work")

	if r.api != nil {
		if stopErr := r.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}
	if r.metricsServer != nil {
		if stopErr := r.metricsServer.Shutdown(ctx); stopErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("metrics listener shutdown: %w", stopErr),
			)
		}
	}

	// Phase 2: Stop confirmation paths
	r.config.logger.Debug("shutdown phase 2: stopping confirmation paths")

	if r.sweeper != nil {
		r.sweeper.Stop()
	}
	if r.submitter != nil {
		r.submitter.Stop()
	}
	if r.client != nil {
		r.client.Close()
	}

	// Phase 3: Flush state and close database
	r.config.logger.Debug("shutdown phase 3: flushing state")

	if r.db != nil {
		if closeErr := r.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	r.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range r.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	r.shutdownFuncs = nil

	if r.eventBus != nil {
		r.eventBus.Stop()
	}

	r.config.logger.Debug("graceful shutdown complete")
	close(r.done)
	return err
}
