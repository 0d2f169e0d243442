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
	"time"

	"github.com/fundlabs-io/chainrelay/database/models"
	"gorm.io/gorm"
)

// AddTransaction adds a new pending transaction record. The hash is
// normalized to lower case before insert.
func (d *Database) AddTransaction(
	tx *models.Transaction,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	tx.Hash = strings.ToLower(tx.Hash)
	tx.State = models.TxStatePending
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if result := txn.Create(tx); result.Error != nil {
		return fmt.Errorf("create transaction: %w", result.Error)
	}
	return nil
}

// GetTransactionByHash returns a transaction record by its hash
func (d *Database) GetTransactionByHash(
	hash string,
	txn *gorm.DB,
) (*models.Transaction, error) {
	if txn == nil {
		txn = d.DB()
	}
	ret := &models.Transaction{}
	result := txn.First(ret, "hash = ?", strings.ToLower(hash))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetPendingTransactions returns all transaction records still awaiting a
// terminal state, oldest first
func (d *Database) GetPendingTransactions(
	txn *gorm.DB,
) ([]models.Transaction, error) {
	if txn == nil {
		txn = d.DB()
	}
	var ret []models.Transaction
	result := txn.
		Where("state = ?", models.TxStatePending).
		Order("created_at").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// FinalizeTransaction writes a terminal state for a pending record. The
// write is a per-row compare-and-swap: it only applies while the record is
// still PENDING, so racing completers (the receipt subscription and the
// sweeper) can both call it safely. Returns true if this call performed the
// transition, false if the record was already terminal.
func (d *Database) FinalizeTransaction(
	hash string,
	state models.TxState,
	txn *gorm.DB,
) (bool, error) {
	if !state.Terminal() {
		return false, fmt.Errorf("not a terminal state: %s", state)
	}
	if txn == nil {
		txn = d.DB()
	}
	hash = strings.ToLower(hash)
	result := txn.Model(&models.Transaction{}).
		Where("hash = ? AND state = ?", hash, models.TxStatePending).
		Updates(map[string]any{
			"state":        state,
			"processed_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("finalize transaction: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	// No row transitioned: either the record is already terminal or it
	// doesn't exist at all
	existing, err := d.GetTransactionByHash(hash, txn)
	if err != nil {
		return false, err
	}
	if !existing.State.Terminal() {
		return false, fmt.Errorf(
			"finalize transaction: unexpected state %s for %s",
			existing.State,
			hash,
		)
	}
	return false, nil
}

// UpdateTransactionHash corrects a record's identity when the broadcast call
// returns a different hash than the one computed locally. Any wallet record
// keyed by the old hash is re-keyed as well. Both re-keys happen in a single
// database transaction; a wallet row must never be left keyed by a dead hash.
func (d *Database) UpdateTransactionHash(
	oldHash string,
	newHash string,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.Transaction()
		if err := d.updateTransactionHash(oldHash, newHash, txn); err != nil {
			_ = txn.Rollback()
			return err
		}
		if result := txn.Commit(); result.Error != nil {
			return fmt.Errorf("commit hash update: %w", result.Error)
		}
		return nil
	}
	return d.updateTransactionHash(oldHash, newHash, txn)
}

func (d *Database) updateTransactionHash(
	oldHash string,
	newHash string,
	txn *gorm.DB,
) error {
	oldHash = strings.ToLower(oldHash)
	newHash = strings.ToLower(newHash)
	result := txn.Model(&models.Transaction{}).
		Where("hash = ?", oldHash).
		Update("hash", newHash)
	if result.Error != nil {
		return fmt.Errorf("update transaction hash: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	result = txn.Model(&models.Wallet{}).
		Where("tx_hash = ?", oldHash).
		Update("tx_hash", newHash)
	if result.Error != nil {
		return fmt.Errorf("update wallet tx hash: %w", result.Error)
	}
	return nil
}
