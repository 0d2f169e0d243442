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

package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fundlabs-io/chainrelay/calldata"
	"github.com/fundlabs-io/chainrelay/chainclient"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/fundlabs-io/chainrelay/database/models"
)

var (
	// ErrNotYetMined is returned when address resolution is attempted while
	// the wallet creation transaction is still pending
	ErrNotYetMined = errors.New("wallet creation transaction not yet mined")
	// ErrTransactionFailed is returned when the wallet creation transaction
	// was rejected by the ledger
	ErrTransactionFailed = errors.New("wallet creation transaction failed")
)

// walletAddedTopic is the event topic emitted by the cooperative contract
// when a wallet is registered; its first indexed argument is the wallet
// address
var walletAddedTopic = crypto.Keccak256Hash([]byte("WalletAdded(address)"))

type ResolverConfig struct {
	Logger   *slog.Logger
	Database *database.Database
	Client   chainclient.Client
}

// Resolver resolves the on-ledger address for a wallet record from its
// creation transaction receipt, caching it on the record. The cached value
// is derived deterministically from immutable on-ledger data, so concurrent
// cache fills always agree.
type Resolver struct {
	logger *slog.Logger
	db     *database.Database
	client chainclient.Client
}

func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		logger: cfg.Logger,
		db:     cfg.Database,
		client: cfg.Client,
	}
	if r.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return r
}

// ResolveAddress returns the on-ledger address for the wallet created by
// the given transaction hash
func (r *Resolver) ResolveAddress(
	ctx context.Context,
	creationTxHash string,
) (common.Address, error) {
	wallet, err := r.db.GetWalletByTxHash(creationTxHash, nil)
	if err != nil {
		return common.Address{}, err
	}
	if wallet.Address != nil {
		return common.HexToAddress(*wallet.Address), nil
	}
	tx, err := r.db.GetTransactionByHash(creationTxHash, nil)
	if err != nil {
		return common.Address{}, err
	}
	switch tx.State {
	case models.TxStatePending:
		return common.Address{}, ErrNotYetMined
	case models.TxStateFailed:
		return common.Address{}, ErrTransactionFailed
	}
	receipt, err := r.client.TransactionReceipt(
		ctx,
		common.HexToHash(tx.Hash),
	)
	if err != nil {
		return common.Address{}, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		// Mined locally but the node no longer returns a receipt; leave the
		// cache unfilled and let the caller retry
		return common.Address{}, ErrNotYetMined
	}
	addr, err := addressFromReceipt(receipt.Logs)
	if err != nil {
		return common.Address{}, err
	}
	if err := r.db.SetWalletAddress(tx.Hash, addr.Hex(), nil); err != nil {
		return common.Address{}, err
	}
	r.logger.Info(
		"resolved wallet address",
		"component", "wallet",
		"tx_hash", tx.Hash,
		"address", addr.Hex(),
	)
	return addr, nil
}

// addressFromReceipt decodes the wallet address from the WalletAdded log
// topic
func addressFromReceipt(
	logs []*types.Log,
) (common.Address, error) {
	for _, log := range logs {
		if len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] != walletAddedTopic {
			continue
		}
		return calldata.DecodeAddress(log.Topics[1].Hex())
	}
	return common.Address{}, errors.New(
		"no wallet address found in receipt logs",
	)
}
