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

package calldata

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// WordSize is the length in bytes of an encoded argument word
const WordSize = 32

// MalformedPayloadError is returned when an encoded blob is too short for
// the fields being decoded out of it
type MalformedPayloadError struct {
	Expected int
	Actual   int
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf(
		"malformed payload: expected at least %d bytes, got %d",
		e.Expected,
		e.Actual,
	)
}

// decodeWords decodes a hex blob (with or without 0x prefix) into at least
// wordCount 32-byte words
func decodeWords(blob string, wordCount int) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(blob, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode hex blob: %w", err)
	}
	if len(raw) < wordCount*WordSize {
		return nil, &MalformedPayloadError{
			Expected: wordCount * WordSize,
			Actual:   len(raw),
		}
	}
	return raw, nil
}

// DecodeAddress decodes a 20-byte address out of a single left-zero-padded
// 32-byte word
func DecodeAddress(blob string) (common.Address, error) {
	raw, err := decodeWords(blob, 1)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw[:WordSize]), nil
}

// DecodeAddressAndAmount decodes an (address, uint256) argument pair out of
// two consecutive 32-byte words: first word address, second word amount.
// The amount covers the full unsigned 256-bit range.
func DecodeAddressAndAmount(blob string) (common.Address, *big.Int, error) {
	raw, err := decodeWords(blob, 2)
	if err != nil {
		return common.Address{}, nil, err
	}
	addr := common.BytesToAddress(raw[:WordSize])
	amount := new(big.Int).SetBytes(raw[WordSize : 2*WordSize])
	return addr, amount, nil
}
