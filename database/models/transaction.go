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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxState is the lifecycle state of a relayed transaction
type TxState string

const (
	TxStatePending TxState = "PENDING"
	TxStateMined   TxState = "MINED"
	TxStateFailed  TxState = "FAILED"
)

// Terminal returns true if no further state transitions are allowed
func (s TxState) Terminal() bool {
	return s == TxStateMined || s == TxStateFailed
}

// Transaction represents a relayed transaction record. Identity is the
// ledger transaction hash, lower-cased and immutable once assigned by the
// broadcast call.
type Transaction struct {
	Hash        string              `gorm:"primaryKey;size:66"`
	FromAddress string              `gorm:"size:42;index"`
	ToAddress   string              `gorm:"size:42"`
	Input       string              `gorm:"type:text"`
	Kind        string              `gorm:"size:32;index"`
	State       TxState             `gorm:"size:8;index"`
	Amount      decimal.NullDecimal `gorm:"type:decimal(78,0)"`
	CreatedAt   time.Time
	ProcessedAt time.Time
}

func (Transaction) TableName() string {
	return "transaction"
}
