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

// Package chainmock provides an in-memory ledger client for tests
package chainmock

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// MockClient implements chainclient.Client against in-memory state
type MockClient struct {
	mu sync.Mutex
	// SendHook runs inside SendRawTransaction before it returns, letting
	// tests observe state at the moment of broadcast
	SendHook func(signedHex string)
	// SendErr, when set, makes SendRawTransaction fail
	SendErr error
	// SendHash, when set, overrides the returned hash
	SendHash *common.Hash
	receipts map[common.Hash]*types.Receipt
	// receiptErrs simulates per-hash receipt query failures
	receiptErrs map[common.Hash]error
	sent        []string
	nonce       uint64
	gasPrice    *big.Int
}

func NewMockClient() *MockClient {
	return &MockClient{
		receipts:    make(map[common.Hash]*types.Receipt),
		receiptErrs: make(map[common.Hash]error),
		gasPrice:    big.NewInt(1000000000),
	}
}

// SetReceipt makes a receipt available for a transaction hash
func (m *MockClient) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[hash] = receipt
}

// SetReceiptErr makes receipt queries for a hash fail with the given error
func (m *MockClient) SetReceiptErr(hash common.Hash, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiptErrs[hash] = err
}

// Sent returns the raw payloads broadcast so far
func (m *MockClient) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]string, len(m.sent))
	copy(ret, m.sent)
	return ret
}

func (m *MockClient) SendRawTransaction(
	_ context.Context,
	signedHex string,
) (common.Hash, error) {
	m.mu.Lock()
	sendHook := m.SendHook
	sendErr := m.SendErr
	sendHash := m.SendHash
	m.mu.Unlock()
	if sendHook != nil {
		sendHook(signedHex)
	}
	if sendErr != nil {
		return common.Hash{}, sendErr
	}
	m.mu.Lock()
	m.sent = append(m.sent, signedHex)
	m.mu.Unlock()
	if sendHash != nil {
		return *sendHash, nil
	}
	return common.BytesToHash(crypto.Keccak256([]byte(signedHex))), nil
}

func (m *MockClient) TransactionReceipt(
	_ context.Context,
	hash common.Hash,
) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.receiptErrs[hash]; ok {
		return nil, err
	}
	return m.receipts[hash], nil
}

func (m *MockClient) SubscribeReceipt(
	ctx context.Context,
	hash common.Hash,
) <-chan *types.Receipt {
	receiptCh := make(chan *types.Receipt, 1)
	go func() {
		defer close(receiptCh)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				receipt, err := m.TransactionReceipt(ctx, hash)
				if err != nil || receipt == nil {
					continue
				}
				receiptCh <- receipt
				return
			}
		}
	}()
	return receiptCh
}

func (m *MockClient) PendingNonceAt(
	_ context.Context,
	_ common.Address,
) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonce, nil
}

func (m *MockClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *MockClient) Close() {}
