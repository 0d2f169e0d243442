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

package wallet

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fundlabs-io/chainrelay/database"
)

// ErrForbidden is returned when a sender is not authorized to broadcast
var ErrForbidden = errors.New("sender not authorized to broadcast")

type GuardConfig struct {
	Logger   *slog.Logger
	Database *database.Database
	// PlatformOperator is the platform-privileged account address
	PlatformOperator common.Address
	// OperatorKeyHex is an optional hex-encoded secp256k1 private key; the
	// address derived from it is privileged as well
	OperatorKeyHex string
}

// Guard decides whether a sender address may broadcast through the relay.
// Privileged platform accounts always pass; any other sender must already
// own a registered wallet record with a resolved address.
type Guard struct {
	logger     *slog.Logger
	db         *database.Database
	privileged map[common.Address]struct{}
}

func NewGuard(cfg GuardConfig) (*Guard, error) {
	g := &Guard{
		logger:     cfg.Logger,
		db:         cfg.Database,
		privileged: make(map[common.Address]struct{}),
	}
	if g.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		g.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.PlatformOperator != (common.Address{}) {
		g.privileged[cfg.PlatformOperator] = struct{}{}
	}
	if cfg.OperatorKeyHex != "" {
		key, err := crypto.HexToECDSA(cfg.OperatorKeyHex)
		if err != nil {
			return nil, fmt.Errorf("parse operator key: %w", err)
		}
		g.privileged[crypto.PubkeyToAddress(key.PublicKey)] = struct{}{}
	}
	return g, nil
}

// Authorize checks whether the sender recovered from a signed payload may
// broadcast. It must only ever be called with a signature-recovered address,
// never with a caller-asserted one.
func (g *Guard) Authorize(sender common.Address) error {
	if _, ok := g.privileged[sender]; ok {
		return nil
	}
	_, err := g.db.GetWalletByAddress(sender.Hex(), nil)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			g.logger.Debug(
				"rejected sender without wallet record",
				"component", "wallet",
				"sender", sender.Hex(),
			)
			return ErrForbidden
		}
		return err
	}
	return nil
}
