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

package confirm

import (
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/fundlabs-io/chainrelay/database/models"
	"github.com/fundlabs-io/chainrelay/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	TransactionMinedEventType  event.EventType = "tx.mined"
	TransactionFailedEventType event.EventType = "tx.failed"
)

// TransactionFinalizedEvent is published when a pending record reaches a
// terminal state
type TransactionFinalizedEvent struct {
	Hash  string
	State models.TxState
}

type FinalizerConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Database     *database.Database
}

// Finalizer applies ledger receipts to pending transaction records. It is
// shared by the fast-path receipt subscription and the reconciliation
// sweeper; the underlying terminal write is a per-row compare-and-swap, so
// the two completers can race on the same record without double-applying.
type Finalizer struct {
	logger   *slog.Logger
	eventBus *event.EventBus
	db       *database.Database
	metrics  struct {
		minedTotal  prometheus.Counter
		failedTotal prometheus.Counter
	}
}

func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	f := &Finalizer{
		logger:   cfg.Logger,
		eventBus: cfg.EventBus,
		db:       cfg.Database,
	}
	if f.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		f.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	f.metrics.minedTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "chainrelay_transactions_mined_total",
		Help: "total transactions confirmed as mined",
	})
	f.metrics.failedTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "chainrelay_transactions_failed_total",
		Help: "total transactions confirmed as failed",
	})
	return f
}

// HandleReceipt maps a receipt to a terminal state and persists it. Returns
// true if this call performed the transition; re-observing an already
// terminal record returns false with no error.
func (f *Finalizer) HandleReceipt(
	txHash common.Hash,
	receipt *types.Receipt,
) (bool, error) {
	state := models.TxStateFailed
	eventType := TransactionFailedEventType
	if receipt.Status == types.ReceiptStatusSuccessful {
		state = models.TxStateMined
		eventType = TransactionMinedEventType
	}
	transitioned, err := f.db.FinalizeTransaction(txHash.Hex(), state, nil)
	if err != nil {
		return false, err
	}
	if !transitioned {
		return false, nil
	}
	f.logger.Info(
		"transaction finalized",
		"component", "confirm",
		"tx_hash", txHash.Hex(),
		"state", string(state),
	)
	if state == models.TxStateMined {
		f.metrics.minedTotal.Inc()
	} else {
		f.metrics.failedTotal.Inc()
	}
	if f.eventBus != nil {
		f.eventBus.Publish(
			eventType,
			event.NewEvent(
				eventType,
				TransactionFinalizedEvent{
					Hash:  txHash.Hex(),
					State: state,
				},
			),
		)
	}
	return true, nil
}
