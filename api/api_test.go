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

package api_test

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fundlabs-io/chainrelay/api"
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

type testApi struct {
	api       *api.Api
	db        *database.Database
	client    *chainmock.MockClient
	senderKey *ecdsa.PrivateKey
}

func newTestApi(t *testing.T) *testApi {
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
		OperatorKeyHex: hex.EncodeToString(crypto.FromECDSA(senderKey)),
	})
	require.NoError(t, err)
	client := chainmock.NewMockClient()
	finalizer := confirm.NewFinalizer(confirm.FinalizerConfig{Database: db})
	submitter := txsubmit.NewSubmitter(txsubmit.SubmitterConfig{
		Database:  db,
		Client:    client,
		Guard:     guard,
		Finalizer: finalizer,
		ChainID:   testChainID,
	})
	t.Cleanup(submitter.Stop)
	resolver := wallet.NewResolver(wallet.ResolverConfig{
		Database: db,
		Client:   client,
	})
	return &testApi{
		api: api.New(api.Config{
			Database:  db,
			Submitter: submitter,
			Resolver:  resolver,
		}),
		db:        db,
		client:    client,
		senderKey: senderKey,
	}
}

func (ta *testApi) request(
	t *testing.T,
	method string,
	path string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	ta.api.Handler().ServeHTTP(recorder, req)
	return recorder
}

func transferPayload(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	data := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	data = append(data, make([]byte, 32)...)
	amountWord := make([]byte, 32)
	amountWord[31] = 7
	data = append(data, amountWord...)
	contract := common.HexToAddress("0x000000000000000000000000000000000000c0de")
	tx := types.NewTx(&types.LegacyTx{
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
	return hexutil.Encode(raw)
}

func TestHealthcheck(t *testing.T) {
	ta := newTestApi(t)
	resp := ta.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSubmitTransaction(t *testing.T) {
	ta := newTestApi(t)
	resp := ta.request(t, http.MethodPost, "/v1/transactions", jsonBody{
		"signed_payload": transferPayload(t, ta.senderKey),
		"kind":           "TRANSFER",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "PENDING", body["state"])
	assert.Equal(t, "TRANSFER", body["kind"])
	assert.Equal(t, "7", body["amount"])
}

func TestSubmitTransactionTypeMismatch(t *testing.T) {
	ta := newTestApi(t)
	resp := ta.request(t, http.MethodPost, "/v1/transactions", jsonBody{
		"signed_payload": transferPayload(t, ta.senderKey),
		"kind":           "DEPOSIT",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitTransactionForbidden(t *testing.T) {
	ta := newTestApi(t)
	strangerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	resp := ta.request(t, http.MethodPost, "/v1/transactions", jsonBody{
		"signed_payload": transferPayload(t, strangerKey),
		"kind":           "TRANSFER",
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestSubmitTransactionInvalidKind(t *testing.T) {
	ta := newTestApi(t)
	resp := ta.request(t, http.MethodPost, "/v1/transactions", jsonBody{
		"signed_payload": transferPayload(t, ta.senderKey),
		"kind":           "NOT_A_KIND",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetTransaction(t *testing.T) {
	ta := newTestApi(t)
	require.NoError(t, ta.db.AddTransaction(&models.Transaction{
		Hash:        "0x01",
		FromAddress: "0x000000000000000000000000000000000000dead",
		Kind:        "TRANSFER",
	}, nil))
	resp := ta.request(t, http.MethodGet, "/v1/transactions/0x01", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "PENDING", body["state"])
}

func TestGetTransactionNotFound(t *testing.T) {
	ta := newTestApi(t)
	resp := ta.request(t, http.MethodGet, "/v1/transactions/0xffff", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetWalletAddressNotFound(t *testing.T) {
	ta := newTestApi(t)
	resp := ta.request(t, http.MethodGet, "/v1/wallets/0xffff/address", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetWalletAddressPendingCreation(t *testing.T) {
	ta := newTestApi(t)
	require.NoError(t, ta.db.AddTransaction(&models.Transaction{
		Hash:        "0x01",
		FromAddress: "0x000000000000000000000000000000000000dead",
		Kind:        "WALLET_CREATION",
	}, nil))
	require.NoError(t, ta.db.AddWallet(&models.Wallet{TxHash: "0x01"}, nil))
	resp := ta.request(t, http.MethodGet, "/v1/wallets/0x01/address", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

// jsonBody is a convenience alias for request bodies
type jsonBody = map[string]any
