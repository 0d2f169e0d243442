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

package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fundlabs-io/chainrelay/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddWallet adds a wallet record for a wallet-creation transaction. At most
// one wallet record exists per transaction hash; re-adding is a no-op.
func (d *Database) AddWallet(
	wallet *models.Wallet,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	wallet.TxHash = strings.ToLower(wallet.TxHash)
	if wallet.Type == "" {
		wallet.Type = models.WalletTypeUser
	}
	result := txn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Create(wallet)
	if result.Error != nil {
		return fmt.Errorf("create wallet: %w", result.Error)
	}
	return nil
}

// GetWalletByTxHash returns the wallet record owned by the given
// wallet-creation transaction hash
func (d *Database) GetWalletByTxHash(
	txHash string,
	txn *gorm.DB,
) (*models.Wallet, error) {
	if txn == nil {
		txn = d.DB()
	}
	ret := &models.Wallet{}
	result := txn.First(ret, "tx_hash = ?", strings.ToLower(txHash))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetWalletByAddress returns the wallet record with the given resolved
// on-ledger address
func (d *Database) GetWalletByAddress(
	address string,
	txn *gorm.DB,
) (*models.Wallet, error) {
	if txn == nil {
		txn = d.DB()
	}
	ret := &models.Wallet{}
	result := txn.First(ret, "address = ?", strings.ToLower(address))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetWalletAddress fills the resolved on-ledger address for a wallet record.
// The address is derived deterministically from immutable on-ledger data, so
// concurrent writers always agree and last-write-wins is safe.
func (d *Database) SetWalletAddress(
	txHash string,
	address string,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	result := txn.Model(&models.Wallet{}).
		Where("tx_hash = ?", strings.ToLower(txHash)).
		Update("address", strings.ToLower(address))
	if result.Error != nil {
		return fmt.Errorf("set wallet address: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
