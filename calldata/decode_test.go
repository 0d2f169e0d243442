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

package calldata_test

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundlabs-io/chainrelay/calldata"
)

// encodeWord left-pads arbitrary bytes into a single 32-byte word
func encodeWord(b []byte) string {
	word := make([]byte, calldata.WordSize)
	copy(word[calldata.WordSize-len(b):], b)
	return hex.EncodeToString(word)
}

func TestDecodeAddressRoundTrip(t *testing.T) {
	testDefs := []struct {
		name    string
		address common.Address
	}{
		{
			name:    "zero address",
			address: common.Address{},
		},
		{
			name: "all ones address",
			address: common.HexToAddress(
				"0xffffffffffffffffffffffffffffffffffffffff",
			),
		},
		{
			name: "arbitrary address",
			address: common.HexToAddress(
				"0x7e5f4552091a69125d5dfcb7b8c2659029395bdf",
			),
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			blob := encodeWord(testDef.address.Bytes())
			addr, err := calldata.DecodeAddress(blob)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if addr != testDef.address {
				t.Fatalf(
					"did not get expected address: got %s, wanted %s",
					addr.Hex(),
					testDef.address.Hex(),
				)
			}
		})
	}
}

func TestDecodeAddressPrefixed(t *testing.T) {
	addr := common.HexToAddress("0x7e5f4552091a69125d5dfcb7b8c2659029395bdf")
	blob := "0x" + encodeWord(addr.Bytes())
	got, err := calldata.DecodeAddress(blob)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got != addr {
		t.Fatalf("did not get expected address: got %s", got.Hex())
	}
}

func TestDecodeAddressShortBlob(t *testing.T) {
	_, err := calldata.DecodeAddress("deadbeef")
	var payloadErr *calldata.MalformedPayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected MalformedPayloadError, got %T", err)
	}
	if payloadErr.Expected != calldata.WordSize {
		t.Fatalf(
			"unexpected expected length: got %d, wanted %d",
			payloadErr.Expected,
			calldata.WordSize,
		)
	}
}

func TestDecodeAddressAndAmount(t *testing.T) {
	maxUint256 := new(big.Int).Sub(
		new(big.Int).Lsh(big.NewInt(1), 256),
		big.NewInt(1),
	)
	testDefs := []struct {
		name   string
		amount *big.Int
	}{
		{name: "zero", amount: big.NewInt(0)},
		{name: "one", amount: big.NewInt(1)},
		{name: "max uint256", amount: maxUint256},
	}
	addr := common.HexToAddress("0x7e5f4552091a69125d5dfcb7b8c2659029395bdf")
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			blob := encodeWord(addr.Bytes()) + encodeWord(testDef.amount.Bytes())
			gotAddr, gotAmount, err := calldata.DecodeAddressAndAmount(blob)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if gotAddr != addr {
				t.Fatalf("did not get expected address: got %s", gotAddr.Hex())
			}
			if gotAmount.Cmp(testDef.amount) != 0 {
				t.Fatalf(
					"amount decoding not exact: got %s, wanted %s",
					gotAmount.String(),
					testDef.amount.String(),
				)
			}
		})
	}
}

func TestDecodeAddressAndAmountShortBlob(t *testing.T) {
	// Single word is not enough for an (address, amount) pair
	blob := encodeWord(common.Address{}.Bytes())
	_, _, err := calldata.DecodeAddressAndAmount(blob)
	var payloadErr *calldata.MalformedPayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected MalformedPayloadError, got %T", err)
	}
}

func TestDecodeInvalidHex(t *testing.T) {
	_, err := calldata.DecodeAddress(strings.Repeat("zz", 32))
	if err == nil {
		t.Fatalf("expected error for invalid hex input")
	}
}
