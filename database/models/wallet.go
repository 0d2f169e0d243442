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

// WalletTypeUser is the default wallet type assigned at creation
const WalletTypeUser = "USER"

// Wallet represents a wallet record derived from a wallet-creation
// transaction. The on-ledger address is unresolved (null) until the creation
// transaction is mined and its receipt decoded; once set it is immutable.
type Wallet struct {
	ID        uint    `gorm:"primaryKey"`
	TxHash    string  `gorm:"uniqueIndex;size:66"`
	Address   *string `gorm:"size:42;index"`
	PublicKey *string `gorm:"size:132"`
	Type      string  `gorm:"size:16"`
}

func (Wallet) TableName() string {
	return "wallet"
}
