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

package txsweep

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundlabs-io/chainrelay/chainclient"
	"github.com/fundlabs-io/chainrelay/confirm"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultSweepWorkers  = 5
)

type SweeperConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	Database     *database.Database
	Client       chainclient.Client
	Finalizer    *confirm.Finalizer
	Interval     time.Duration
	Workers      int
}

// Sweeper is the guaranteed confirmation path: on a fixed interval it
// re-queries the ledger for every record still pending and promotes those
// with a receipt to a terminal state. A record with no receipt is left
// untouched for the next tick; there is no expiry.
type Sweeper struct {
	logger    *slog.Logger
	db        *database.Database
	client    chainclient.Client
	finalizer *confirm.Finalizer
	interval  time.Duration
	workers   int
	metrics   struct {
		sweepsTotal  prometheus.Counter
		sweepErrors  prometheus.Counter
		pendingCount prometheus.Gauge
	}
	cancel    context.CancelFunc
	loopWg    sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSweeper(cfg SweeperConfig) *Sweeper {
	s := &Sweeper{
		logger:    cfg.Logger,
		db:        cfg.Database,
		client:    cfg.Client,
		finalizer: cfg.Finalizer,
		interval:  cfg.Interval,
		workers:   cfg.Workers,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	if s.workers <= 0 {
		s.workers = DefaultSweepWorkers
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	s.metrics.sweepsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "chainrelay_sweeps_total",
			Help: "total reconciliation sweeps run",
		},
	)
	s.metrics.sweepErrors = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "chainrelay_sweep_errors_total",
			Help: "total per-record receipt query failures during sweeps",
		},
	)
	s.metrics.pendingCount = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainrelay_pending_transactions",
			Help: "pending transactions observed by the last sweep",
		},
	)
	return s
}

// Start launches the sweep loop. The ticker is owned by the sweeper and
// stopped deterministically by Stop.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		var ctx context.Context
		ctx, s.cancel = context.WithCancel(context.Background())
		s.loopWg.Add(1)
		go func() {
			defer s.loopWg.Done()
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := s.Sweep(ctx); err != nil {
						s.logger.Error(
							"sweep failed",
							"component", "txsweep",
							"error", err,
						)
					}
				}
			}
		}()
	})
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.loopWg.Wait()
	})
}

// Sweep runs a single reconciliation pass. Receipt queries are issued
// concurrently, bounded by the worker cap, and each record is processed
// independently: one record's failure never aborts the sweep of the others.
func (s *Sweeper) Sweep(ctx context.Context) error {
	pending, err := s.db.GetPendingTransactions(nil)
	if err != nil {
		return err
	}
	s.metrics.sweepsTotal.Inc()
	s.metrics.pendingCount.Set(float64(len(pending)))
	if len(pending) == 0 {
		return nil
	}
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, record := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func(txHash string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			s.sweepRecord(ctx, txHash)
		}(record.Hash)
	}
	wg.Wait()
	return nil
}

func (s *Sweeper) sweepRecord(ctx context.Context, txHash string) {
	hash := common.HexToHash(txHash)
	receipt, err := s.client.TransactionReceipt(ctx, hash)
	if err != nil {
		// Transient failure: leave the record for the next tick
		s.metrics.sweepErrors.Inc()
		s.logger.Warn(
			"receipt query failed, will retry next sweep",
			"component", "txsweep",
			"tx_hash", txHash,
			"error", err,
		)
		return
	}
	if receipt == nil {
		// Not included yet
		return
	}
	if _, err := s.finalizer.HandleReceipt(hash, receipt); err != nil {
		s.metrics.sweepErrors.Inc()
		s.logger.Error(
			"failed to apply swept receipt",
			"component", "txsweep",
			"tx_hash", txHash,
			"error", err,
		)
	}
}
