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

package txsubmit_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fundlabs-io/chainrelay/calldata"
	"github.com/fundlabs-io/chainrelay/confirm"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/fundlabs-io/chainrelay/database/models"
	"github.com/fundlabs-io/chainrelay/internal/chainmock"
	"github.com/fundlabs-io/chainrelay/txsubmit"
	"github.com/fundlabs-io/chainrelay/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(1337)

type testEnv struct {
	db        *database.Database
	client    *chainmock.MockClient
	submitter *txsubmit.Submitter
	senderKey *ecdsa.PrivateKey
	sender    common.Address
}

// newTestEnv builds a submitter whose sender key is privileged via the
// derived operator address
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	senderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	guard, err := wallet.NewGuard(wallet.GuardConfig{
		Database:       db,
		OperatorKeyHex: hexutil.Encode(crypto.FromECDSA(senderKey))[2:],
	})
	require.NoError(t, err)
	client := chainmock.NewMockClient()
	finalizer := confirm.NewFinalizer(confirm.FinalizerConfig{
		Database: db,
	})
	submitter := txsubmit.NewSubmitter(txsubmit.SubmitterConfig{
		Database:  db,
		Client:    client,
		Guard:     guard,
		Finalizer: finalizer,
		ChainID:   testChainID,
	})
	t.Cleanup(submitter.Stop)
	return &testEnv{
		db:        db,
		client:    client,
		submitter: submitter,
		senderKey: senderKey,
		sender:    crypto.PubkeyToAddress(senderKey.PublicKey),
	}
}

// signedPayload builds a signed transaction carrying the given call data
func signedPayload(
	t *testing.T,
	key *ecdsa.PrivateKey,
	data []byte,
) (string, common.Hash) {
	t.Helper()
	contract := common.HexToAddress("0x000000000000000000000000000000000000c0de")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &contract,
		Gas:      100000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	signed, err := types.SignTx(
		tx,
		types.LatestSignerForChainID(testChainID),
		key,
	)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return hexutil.Encode(raw), signed.Hash()
}

// callData encodes selector + left-padded argument words
func callData(signature string, words ...[]byte) []byte {
	data := crypto.Keccak256([]byte(signature))[:4]
	for _, w := range words {
		word := make([]byte, 32)
		copy(word[32-len(w):], w)
		data = append(data, word...)
	}
	return data
}

func TestSubmitPersistsPendingBeforeBroadcast(t *testing.T) {
	env := newTestEnv(t)
	beneficiary := common.HexToAddress("0x0000000000000000000000000000000000000123")
	payload, localHash := signedPayload(
		t,
		env.senderKey,
		callData(
			"transfer(address,uint256)",
			beneficiary.Bytes(),
			big.NewInt(42).Bytes(),
		),
	)
	var rowAtBroadcast *models.Transaction
	env.client.SendHook = func(string) {
		row, err := env.db.GetTransactionByHash(localHash.Hex(), nil)
		require.NoError(t, err)
		rowAtBroadcast = row
	}
	record, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	require.NoError(t, err)
	// The pending row was durably committed at the moment broadcast was called
	require.NotNil(t, rowAtBroadcast)
	assert.Equal(t, models.TxStatePending, rowAtBroadcast.State)
	assert.Equal(t, models.TxStatePending, record.State)
	assert.Equal(t, strings.ToLower(env.sender.Hex()), record.FromAddress)
	assert.Equal(t, strings.ToLower(beneficiary.Hex()), record.ToAddress)
	assert.Equal(t, string(calldata.KindTransfer), record.Kind)
	require.True(t, record.Amount.Valid)
	assert.Equal(t, "42", record.Amount.Decimal.String())
	assert.Len(t, env.client.Sent(), 1)
}

func TestSubmitTypeMismatchPersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	payload, _ := signedPayload(
		t,
		env.senderKey,
		callData(
			"mint(address,uint256)",
			common.Address{}.Bytes(),
			big.NewInt(1).Bytes(),
		),
	)
	_, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	var mismatchErr *txsubmit.TypeMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Equal(t, calldata.KindTransfer, mismatchErr.Declared)
	assert.Equal(t, calldata.KindDeposit, mismatchErr.Actual)

	pending, err := env.db.GetPendingTransactions(nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, env.client.Sent())
}

func TestSubmitForbiddenSender(t *testing.T) {
	env := newTestEnv(t)
	// A different key: not privileged, no wallet record
	strangerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	payload, _ := signedPayload(
		t,
		strangerKey,
		callData(
			"transfer(address,uint256)",
			common.Address{}.Bytes(),
			big.NewInt(1).Bytes(),
		),
	)
	_, err = env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	require.ErrorIs(t, err, wallet.ErrForbidden)
	pending, err := env.db.GetPendingTransactions(nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmitWalletOwnerAuthorized(t *testing.T) {
	env := newTestEnv(t)
	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(ownerKey.PublicKey)
	// Register a resolved wallet record for the sender
	require.NoError(
		t,
		env.db.AddWallet(&models.Wallet{TxHash: "0xbeef"}, nil),
	)
	require.NoError(t, env.db.SetWalletAddress("0xbeef", owner.Hex(), nil))

	payload, _ := signedPayload(
		t,
		ownerKey,
		callData(
			"transfer(address,uint256)",
			common.Address{}.Bytes(),
			big.NewInt(1).Bytes(),
		),
	)
	_, err = env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	require.NoError(t, err)
}

func TestSubmitUnknownOperation(t *testing.T) {
	env := newTestEnv(t)
	payload, _ := signedPayload(
		t,
		env.senderKey,
		callData("selfDestructAll()"),
	)
	_, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	var unknownErr *calldata.UnknownOperationError
	require.ErrorAs(t, err, &unknownErr)
}

func TestSubmitMalformedPayload(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.submitter.Submit(
		context.Background(),
		"0xzz",
		calldata.KindTransfer,
	)
	require.ErrorIs(t, err, txsubmit.ErrMalformedPayload)
}

func TestSubmitBroadcastFailedKeepsPendingRow(t *testing.T) {
	env := newTestEnv(t)
	env.client.SendErr = errors.New("connection refused")
	payload, localHash := signedPayload(
		t,
		env.senderKey,
		callData(
			"transfer(address,uint256)",
			common.Address{}.Bytes(),
			big.NewInt(1).Bytes(),
		),
	)
	_, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	var broadcastErr *txsubmit.BroadcastFailedError
	require.ErrorAs(t, err, &broadcastErr)
	// The spurious pending row is kept rather than losing track of a
	// possibly broadcast transaction
	row, err := env.db.GetTransactionByHash(localHash.Hex(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatePending, row.State)
}

func TestSubmitCorrectsHashFromLedger(t *testing.T) {
	env := newTestEnv(t)
	ledgerHash := common.HexToHash("0x1111")
	env.client.SendHash = &ledgerHash
	payload, localHash := signedPayload(
		t,
		env.senderKey,
		callData(
			"transfer(address,uint256)",
			common.Address{}.Bytes(),
			big.NewInt(1).Bytes(),
		),
	)
	record, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(ledgerHash.Hex()), record.Hash)
	_, err = env.db.GetTransactionByHash(localHash.Hex(), nil)
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestSubmitWalletCreationCreatesWalletRecord(t *testing.T) {
	env := newTestEnv(t)
	owner := common.HexToAddress("0x0000000000000000000000000000000000000456")
	payload, _ := signedPayload(
		t,
		env.senderKey,
		callData("addWallet(address)", owner.Bytes()),
	)
	record, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindWalletCreation,
	)
	require.NoError(t, err)
	assert.False(t, record.Amount.Valid)
	assert.Equal(t, strings.ToLower(owner.Hex()), record.ToAddress)

	walletRecord, err := env.db.GetWalletByTxHash(record.Hash, nil)
	require.NoError(t, err)
	assert.Nil(t, walletRecord.Address)
}

func TestSubmitFastPathConfirmation(t *testing.T) {
	env := newTestEnv(t)
	payload, localHash := signedPayload(
		t,
		env.senderKey,
		callData(
			"transfer(address,uint256)",
			common.Address{}.Bytes(),
			big.NewInt(1).Bytes(),
		),
	)
	// Pin the broadcast hash to the local one so the receipt registered below
	// is the one the subscription observes
	env.client.SendHash = &localHash
	env.client.SetReceipt(
		localHash,
		&types.Receipt{Status: types.ReceiptStatusSuccessful},
	)
	_, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	require.NoError(t, err)
	// The one-shot subscription should promote the record without a sweep
	require.Eventually(t, func() bool {
		row, err := env.db.GetTransactionByHash(localHash.Hex(), nil)
		if err != nil {
			return false
		}
		return row.State == models.TxStateMined
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSubmitExactAmountMaxUint256(t *testing.T) {
	env := newTestEnv(t)
	maxUint256 := new(big.Int).Sub(
		new(big.Int).Lsh(big.NewInt(1), 256),
		big.NewInt(1),
	)
	payload, _ := signedPayload(
		t,
		env.senderKey,
		callData(
			"transfer(address,uint256)",
			common.Address{}.Bytes(),
			maxUint256.Bytes(),
		),
	)
	record, err := env.submitter.Submit(
		context.Background(),
		payload,
		calldata.KindTransfer,
	)
	require.NoError(t, err)
	require.True(t, record.Amount.Valid)
	assert.Equal(t, maxUint256.String(), record.Amount.Decimal.String())
}
