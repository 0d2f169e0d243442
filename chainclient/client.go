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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the minimal contract consumed from the ledger node. The
// production implementation wraps a JSON-RPC connection; tests use a mock.
type Client interface {
	// SendRawTransaction broadcasts a signed transaction and returns the
	// hash assigned by the ledger
	SendRawTransaction(
		ctx context.Context,
		signedHex string,
	) (common.Hash, error)
	// TransactionReceipt returns the receipt for a transaction hash, or
	// nil if the transaction has not been included yet
	TransactionReceipt(
		ctx context.Context,
		hash common.Hash,
	) (*types.Receipt, error)
	// SubscribeReceipt registers a one-shot receipt subscription for a
	// transaction hash. At most one receipt is delivered on the returned
	// channel, which is closed afterwards. The subscription is best effort
	// and may never fire; it ends when the context is cancelled.
	SubscribeReceipt(
		ctx context.Context,
		hash common.Hash,
	) <-chan *types.Receipt
	// PendingNonceAt and SuggestGasPrice are consumed by the per-contract
	// call builders, not by the relay core directly
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Close tears down the underlying connection
	Close()
}
