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

package txsubmit

import (
	"errors"
	"fmt"

	"github.com/fundlabs-io/chainrelay/calldata"
)

// ErrMalformedPayload is returned when the signed payload cannot be decoded
var ErrMalformedPayload = errors.New("malformed signed payload")

// TypeMismatchError is returned when the caller's declared operation kind
// differs from the kind actually encoded in the call data
type TypeMismatchError struct {
	Declared calldata.OperationKind
	Actual   calldata.OperationKind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf(
		"transaction type mismatch: declared %s, encoded %s",
		e.Declared,
		e.Actual,
	)
}

// BroadcastFailedError is returned when the ledger client reports a
// transport error for the broadcast call. The relay does not retry locally;
// the caller owns retry with a fresh payload since nonce and gas price may
// have changed.
type BroadcastFailedError struct {
	Err error
}

func (e *BroadcastFailedError) Error() string {
	return fmt.Sprintf("broadcast failed: %s", e.Err)
}

func (e *BroadcastFailedError) Unwrap() error {
	return e.Err
}
