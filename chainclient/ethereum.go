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

package chainclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	// DefaultReceiptPollInterval is how often a receipt subscription polls
	// the node for inclusion
	DefaultReceiptPollInterval = 2 * time.Second
)

type EthereumClientConfig struct {
	Logger              *slog.Logger
	NodeURL             string
	ReceiptPollInterval time.Duration
}

// EthereumClient implements Client over a JSON-RPC connection to an
// Ethereum-style node. Receipt subscriptions are implemented by polling,
// which works over plain HTTP endpoints as well as websockets.
type EthereumClient struct {
	logger       *slog.Logger
	rpcClient    *rpc.Client
	ethClient    *ethclient.Client
	pollInterval time.Duration
}

// NewEthereumClient dials the configured node and returns a ledger client
func NewEthereumClient(
	ctx context.Context,
	cfg EthereumClientConfig,
) (*EthereumClient, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.NodeURL)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	pollInterval := cfg.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultReceiptPollInterval
	}
	return &EthereumClient{
		logger:       logger,
		rpcClient:    rpcClient,
		ethClient:    ethclient.NewClient(rpcClient),
		pollInterval: pollInterval,
	}, nil
}

func (c *EthereumClient) SendRawTransaction(
	ctx context.Context,
	signedHex string,
) (common.Hash, error) {
	if !strings.HasPrefix(signedHex, "0x") {
		signedHex = "0x" + signedHex
	}
	var txHash common.Hash
	if err := c.rpcClient.CallContext(
		ctx,
		&txHash,
		"eth_sendRawTransaction",
		signedHex,
	); err != nil {
		return common.Hash{}, err
	}
	return txHash, nil
}

func (c *EthereumClient) TransactionReceipt(
	ctx context.Context,
	hash common.Hash,
) (*types.Receipt, error) {
	receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
	if err != nil {
		// Not yet included is not an error, just an absent receipt
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return receipt, nil
}

func (c *EthereumClient) SubscribeReceipt(
	ctx context.Context,
	hash common.Hash,
) <-chan *types.Receipt {
	receiptCh := make(chan *types.Receipt, 1)
	go func() {
		defer close(receiptCh)
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				receipt, err := c.TransactionReceipt(ctx, hash)
				if err != nil {
					c.logger.Debug(
						"receipt subscription query failed",
						"component", "chainclient",
						"tx_hash", hash.Hex(),
						"error", err,
					)
					continue
				}
				if receipt == nil {
					continue
				}
				receiptCh <- receipt
				return
			}
		}
	}()
	return receiptCh
}

func (c *EthereumClient) PendingNonceAt(
	ctx context.Context,
	addr common.Address,
) (uint64, error) {
	return c.ethClient.PendingNonceAt(ctx, addr)
}

func (c *EthereumClient) SuggestGasPrice(
	ctx context.Context,
) (*big.Int, error) {
	return c.ethClient.SuggestGasPrice(ctx)
}

func (c *EthereumClient) Close() {
	c.ethClient.Close()
}
