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

package wallet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/fundlabs-io/chainrelay/database/models"
	"github.com/fundlabs-io/chainrelay/internal/chainmock"
	"github.com/fundlabs-io/chainrelay/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver(
	t *testing.T,
) (*wallet.Resolver, *database.Database, *chainmock.MockClient) {
	t.Helper()
	db := testDatabase(t)
	client := chainmock.NewMockClient()
	resolver := wallet.NewResolver(wallet.ResolverConfig{
		Database: db,
		Client:   client,
	})
	return resolver, db, client
}

func addWalletCreation(
	t *testing.T,
	db *database.Database,
	hash string,
	state models.TxState,
) {
	t.Helper()
	require.NoError(t, db.AddTransaction(&models.Transaction{
		Hash:        hash,
		FromAddress: "0x000000000000000000000000000000000000dead",
		Kind:        "WALLET_CREATION",
	}, nil))
	require.NoError(t, db.AddWallet(&models.Wallet{TxHash: hash}, nil))
	if state != models.TxStatePending {
		_, err := db.FinalizeTransaction(hash, state, nil)
		require.NoError(t, err)
	}
}

// walletAddedReceipt builds a successful receipt carrying a WalletAdded log
// with the given address as its indexed argument
func walletAddedReceipt(addr common.Address) *types.Receipt {
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{
			{
				Topics: []common.Hash{
					crypto.Keccak256Hash([]byte("WalletAdded(address)")),
					common.BytesToHash(addr.Bytes()),
				},
			},
		},
	}
}

func TestResolveAddressFromReceipt(t *testing.T) {
	resolver, db, client := testResolver(t)
	addWalletCreation(t, db, "0x01", models.TxStateMined)
	want := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	client.SetReceipt(common.HexToHash("0x01"), walletAddedReceipt(want))

	got, err := resolver.ResolveAddress(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The address is now cached on the wallet record
	walletRecord, err := db.GetWalletByTxHash("0x01", nil)
	require.NoError(t, err)
	require.NotNil(t, walletRecord.Address)
}

func TestResolveAddressServedFromCache(t *testing.T) {
	resolver, db, client := testResolver(t)
	addWalletCreation(t, db, "0x01", models.TxStateMined)
	want := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	client.SetReceipt(common.HexToHash("0x01"), walletAddedReceipt(want))
	_, err := resolver.ResolveAddress(context.Background(), "0x01")
	require.NoError(t, err)

	// Once cached, resolution works even with the ledger unreachable
	client.SetReceiptErr(
		common.HexToHash("0x01"),
		errors.New("node unavailable"),
	)
	got, err := resolver.ResolveAddress(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolveAddressPending(t *testing.T) {
	resolver, db, _ := testResolver(t)
	addWalletCreation(t, db, "0x01", models.TxStatePending)
	_, err := resolver.ResolveAddress(context.Background(), "0x01")
	require.ErrorIs(t, err, wallet.ErrNotYetMined)
}

func TestResolveAddressFailedCreation(t *testing.T) {
	resolver, db, _ := testResolver(t)
	addWalletCreation(t, db, "0x01", models.TxStateFailed)
	_, err := resolver.ResolveAddress(context.Background(), "0x01")
	require.ErrorIs(t, err, wallet.ErrTransactionFailed)
}

func TestResolveAddressUnknownWallet(t *testing.T) {
	resolver, _, _ := testResolver(t)
	_, err := resolver.ResolveAddress(context.Background(), "0xffff")
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestResolveAddressReceiptWithoutWalletLog(t *testing.T) {
	resolver, db, client := testResolver(t)
	addWalletCreation(t, db, "0x01", models.TxStateMined)
	client.SetReceipt(
		common.HexToHash("0x01"),
		&types.Receipt{Status: types.ReceiptStatusSuccessful},
	)
	_, err := resolver.ResolveAddress(context.Background(), "0x01")
	require.Error(t, err)

	// No address was cached
	walletRecord, err := db.GetWalletByTxHash("0x01", nil)
	require.NoError(t, err)
	assert.Nil(t, walletRecord.Address)
}
