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
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SelectorSize is the length in bytes of a function selector
const SelectorSize = 4

// UnknownOperationError is returned when a selector matches no registered
// operation signature
type UnknownOperationError struct {
	Selector string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation selector: %s", e.Selector)
}

// selectorKinds is the selector to operation kind lookup table. It is built
// once at package init and treated as read-only for the process lifetime.
//
// NOTE: classification trusts the 4-byte Keccak-256 prefix as a unique
// operation identifier. Two distinct signatures could in theory collide on
// their selector, in which case they are indistinguishable here. This is a
// known, accepted limitation.
var selectorKinds = func() map[string]OperationKind {
	ret := make(map[string]OperationKind, len(kindSignatures))
	for kind, sig := range kindSignatures {
		ret[Selector(sig)] = kind
	}
	return ret
}()

// Selector derives the lower-cased hex selector for a canonical function
// signature: the first 4 bytes of its Keccak-256 hash
func Selector(signature string) string {
	return hex.EncodeToString(
		crypto.Keccak256([]byte(signature))[:SelectorSize],
	)
}

// Classify maps a 4-byte hex selector to its operation kind
func Classify(selector string) (OperationKind, error) {
	kind, ok := selectorKinds[strings.ToLower(selector)]
	if !ok {
		return "", &UnknownOperationError{Selector: selector}
	}
	return kind, nil
}

// ClassifyData splits encoded call data into selector and argument bytes and
// classifies the selector
func ClassifyData(data []byte) (OperationKind, []byte, error) {
	if len(data) < SelectorSize {
		return "", nil, &MalformedPayloadError{
			Expected: SelectorSize,
			Actual:   len(data),
		}
	}
	kind, err := Classify(hex.EncodeToString(data[:SelectorSize]))
	if err != nil {
		return "", nil, err
	}
	return kind, data[SelectorSize:], nil
}
