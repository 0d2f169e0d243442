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

package txsubmit

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fundlabs-io/chainrelay/calldata"
	"github.com/fundlabs-io/chainrelay/chainclient"
	"github.com/fundlabs-io/chainrelay/confirm"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/fundlabs-io/chainrelay/database/models"
	"github.com/fundlabs-io/chainrelay/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultBroadcastTimeout bounds the ledger round trip for a single
// broadcast call
const DefaultBroadcastTimeout = 30 * time.Second

type SubmitterConfig struct {
	PromRegistry     prometheus.Registerer
	Logger           *slog.Logger
	Database         *database.Database
	Client           chainclient.Client
	Guard            *wallet.Guard
	Finalizer        *confirm.Finalizer
	ChainID          *big.Int
	BroadcastTimeout time.Duration
}

// Submitter is the submission pipeline: it authorizes the recovered sender,
// classifies the encoded call, records the transaction as pending, and only
// then broadcasts it to the ledger
type Submitter struct {
	logger    *slog.Logger
	db        *database.Database
	client    chainclient.Client
	guard     *wallet.Guard
	finalizer *confirm.Finalizer
	signer    types.Signer
	metrics   struct {
		submittedTotal     *prometheus.CounterVec
		broadcastFailures  prometheus.Counter
		rejectedSubmission prometheus.Counter
	}
	broadcastTimeout time.Duration
	subCtx           context.Context
	subCancel        context.CancelFunc
	subWg            sync.WaitGroup
}

func NewSubmitter(cfg SubmitterConfig) *Submitter {
	s := &Submitter{
		logger:           cfg.Logger,
		db:               cfg.Database,
		client:           cfg.Client,
		guard:            cfg.Guard,
		finalizer:        cfg.Finalizer,
		signer:           types.LatestSignerForChainID(cfg.ChainID),
		broadcastTimeout: cfg.BroadcastTimeout,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.broadcastTimeout <= 0 {
		s.broadcastTimeout = DefaultBroadcastTimeout
	}
	s.subCtx, s.subCancel = context.WithCancel(context.Background())
	promautoFactory := promauto.With(cfg.PromRegistry)
	s.metrics.submittedTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainrelay_transactions_submitted_total",
			Help: "total transactions accepted for broadcast by kind",
		},
		[]string{"kind"},
	)
	s.metrics.broadcastFailures = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "chainrelay_broadcast_failures_total",
			Help: "total broadcast transport failures",
		},
	)
	s.metrics.rejectedSubmission = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "chainrelay_rejected_submissions_total",
			Help: "total submissions rejected before broadcast",
		},
	)
	return s
}

// Stop cancels outstanding fast-path receipt subscriptions and waits for
// them to exit
func (s *Submitter) Stop() {
	s.subCancel()
	s.subWg.Wait()
}

// Submit relays a pre-signed transaction whose declared kind must match the
// operation encoded in its call data. The pending record (and the derived
// wallet record for wallet creations) is durably committed before the
// broadcast call is made; the returned record may therefore outlive a failed
// broadcast as a spurious pending row, which is preferred over losing track
// of a broadcast transaction.
func (s *Submitter) Submit(
	ctx context.Context,
	signedHex string,
	declaredKind calldata.OperationKind,
) (*models.Transaction, error) {
	ethTx, sender, err := s.decodePayload(signedHex)
	if err != nil {
		s.metrics.rejectedSubmission.Inc()
		return nil, err
	}
	// Authorization runs against the signature-recovered sender only
	if err := s.guard.Authorize(sender); err != nil {
		s.metrics.rejectedSubmission.Inc()
		return nil, err
	}
	kind, args, err := calldata.ClassifyData(ethTx.Data())
	if err != nil {
		s.metrics.rejectedSubmission.Inc()
		return nil, err
	}
	if kind != declaredKind {
		s.metrics.rejectedSubmission.Inc()
		return nil, &TypeMismatchError{Declared: declaredKind, Actual: kind}
	}
	record, err := s.buildRecord(ethTx, sender, kind, args)
	if err != nil {
		s.metrics.rejectedSubmission.Inc()
		return nil, err
	}
	// Persist the pending record (and any derived wallet record) in a single
	// database transaction, committed before the broadcast call
	txn := s.db.Transaction()
	if err := s.persistPending(record, kind, txn); err != nil {
		_ = txn.Rollback()
		return nil, err
	}
	if result := txn.Commit(); result.Error != nil {
		return nil, fmt.Errorf("commit pending record: %w", result.Error)
	}
	// Broadcast. The record identity is the hash returned by the ledger; if
	// it differs from the locally computed one, correct the persisted row.
	broadcastCtx, cancel := context.WithTimeout(ctx, s.broadcastTimeout)
	defer cancel()
	txHash, err := s.client.SendRawTransaction(broadcastCtx, signedHex)
	if err != nil {
		s.metrics.broadcastFailures.Inc()
		s.logger.Error(
			"broadcast failed, leaving pending record for operator review",
			"component", "txsubmit",
			"tx_hash", record.Hash,
			"error", err,
		)
		return nil, &BroadcastFailedError{Err: err}
	}
	if !strings.EqualFold(txHash.Hex(), record.Hash) {
		s.logger.Warn(
			"broadcast returned different hash, correcting record identity",
			"component", "txsubmit",
			"local_hash", record.Hash,
			"ledger_hash", txHash.Hex(),
		)
		if err := s.db.UpdateTransactionHash(
			record.Hash,
			txHash.Hex(),
			nil,
		); err != nil {
			return nil, err
		}
		record.Hash = strings.ToLower(txHash.Hex())
	}
	s.metrics.submittedTotal.WithLabelValues(string(kind)).Inc()
	s.logger.Info(
		"transaction broadcast",
		"component", "txsubmit",
		"tx_hash", record.Hash,
		"kind", string(kind),
		"sender", record.FromAddress,
	)
	// Best-effort fast path: a one-shot receipt subscription racing the
	// reconciliation sweeper. The terminal write is idempotent, so the race
	// cannot double-apply.
	s.subWg.Add(1)
	go s.awaitReceipt(txHash)
	return record, nil
}

// decodePayload decodes a signed transaction and recovers its sender from
// the signature
func (s *Submitter) decodePayload(
	signedHex string,
) (*types.Transaction, common.Address, error) {
	if !strings.HasPrefix(signedHex, "0x") {
		signedHex = "0x" + signedHex
	}
	raw, err := hexutil.Decode(signedHex)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf(
			"%w: %s",
			ErrMalformedPayload,
			err,
		)
	}
	ethTx := &types.Transaction{}
	if err := ethTx.UnmarshalBinary(raw); err != nil {
		return nil, common.Address{}, fmt.Errorf(
			"%w: %s",
			ErrMalformedPayload,
			err,
		)
	}
	sender, err := types.Sender(s.signer, ethTx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf(
			"%w: sender recovery: %s",
			ErrMalformedPayload,
			err,
		)
	}
	return ethTx, sender, nil
}

// buildRecord constructs the pending record for a classified call. For
// kinds carrying an (address, amount) pair the decoded beneficiary becomes
// the record's target address; for wallet creation it is the decoded wallet
// owner; otherwise the called contract.
func (s *Submitter) buildRecord(
	ethTx *types.Transaction,
	sender common.Address,
	kind calldata.OperationKind,
	args []byte,
) (*models.Transaction, error) {
	record := &models.Transaction{
		Hash:        strings.ToLower(ethTx.Hash().Hex()),
		FromAddress: strings.ToLower(sender.Hex()),
		Input:       hex.EncodeToString(ethTx.Data()),
		Kind:        string(kind),
	}
	if to := ethTx.To(); to != nil {
		record.ToAddress = strings.ToLower(to.Hex())
	}
	argsHex := hex.EncodeToString(args)
	switch {
	case kind.CarriesAmount():
		target, amount, err := calldata.DecodeAddressAndAmount(argsHex)
		if err != nil {
			return nil, err
		}
		record.ToAddress = strings.ToLower(target.Hex())
		record.Amount = decimal.NewNullDecimal(
			decimal.NewFromBigInt(amount, 0),
		)
	case kind == calldata.KindWalletCreation:
		target, err := calldata.DecodeAddress(argsHex)
		if err != nil {
			return nil, err
		}
		record.ToAddress = strings.ToLower(target.Hex())
	}
	return record, nil
}

func (s *Submitter) persistPending(
	record *models.Transaction,
	kind calldata.OperationKind,
	txn *gorm.DB,
) error {
	if err := s.db.AddTransaction(record, txn); err != nil {
		return err
	}
	if kind == calldata.KindWalletCreation {
		if err := s.db.AddWallet(
			&models.Wallet{TxHash: record.Hash},
			txn,
		); err != nil {
			return err
		}
	}
	return nil
}

// awaitReceipt waits on a one-shot receipt subscription and applies the
// terminal state when it fires. The subscription has no timeout of its own;
// if it never fires, the sweeper is the sole source of truth.
func (s *Submitter) awaitReceipt(txHash common.Hash) {
	defer s.subWg.Done()
	receiptCh := s.client.SubscribeReceipt(s.subCtx, txHash)
	receipt, ok := <-receiptCh
	if !ok || receipt == nil {
		return
	}
	if _, err := s.finalizer.HandleReceipt(txHash, receipt); err != nil {
		s.logger.Error(
			"failed to apply subscribed receipt",
			"component", "txsubmit",
			"tx_hash", txHash.Hex(),
			"error", err,
		)
	}
}
