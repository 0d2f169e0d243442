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

// OperationKind identifies a platform operation encoded in a contract call
type OperationKind string

const (
	KindWalletCreation            OperationKind = "WALLET_CREATION"
	KindOrganizationCreation      OperationKind = "ORGANIZATION_CREATION"
	KindDeposit                   OperationKind = "DEPOSIT"
	KindWithdrawal                OperationKind = "WITHDRAWAL"
	KindPendingWithdrawalApproval OperationKind = "PENDING_WITHDRAWAL_APPROVAL"
	KindOrgFundWithdrawal         OperationKind = "ORG_FUND_WITHDRAWAL"
	KindProjectFundWithdrawal     OperationKind = "PROJECT_FUND_WITHDRAWAL"
	KindTransfer                  OperationKind = "TRANSFER"
	KindInvestment                OperationKind = "INVESTMENT"
	KindPendingInvestmentApproval OperationKind = "PENDING_INVESTMENT_APPROVAL"
	KindInvestmentCancellation    OperationKind = "INVESTMENT_CANCELLATION"
	KindOrgMembershipAdd          OperationKind = "ORG_MEMBERSHIP_ADD"
	KindProjectAdd                OperationKind = "PROJECT_ADD"
	KindOrgActivation             OperationKind = "ORG_ACTIVATION"
)

// Valid returns true if the OperationKind is a known kind
func (k OperationKind) Valid() bool {
	_, ok := kindSignatures[k]
	return ok
}

// String returns the string representation of the OperationKind
func (k OperationKind) String() string {
	return string(k)
}

// CarriesAmount returns true for kinds whose call data encodes an
// (address, uint256) argument pair
func (k OperationKind) CarriesAmount() bool {
	switch k {
	case KindDeposit,
		KindWithdrawal,
		KindPendingWithdrawalApproval,
		KindOrgFundWithdrawal,
		KindProjectFundWithdrawal,
		KindTransfer,
		KindInvestment,
		KindPendingInvestmentApproval,
		KindInvestmentCancellation:
		return true
	default:
		return false
	}
}

// kindSignatures maps each operation kind to the canonical function
// signature used to derive its selector
var kindSignatures = map[OperationKind]string{
	KindWalletCreation:            "addWallet(address)",
	KindOrganizationCreation:      "createOrganization()",
	KindDeposit:                   "mint(address,uint256)",
	KindWithdrawal:                "burnFrom(address,uint256)",
	KindPendingWithdrawalApproval: "approve(address,uint256)",
	KindOrgFundWithdrawal:         "withdrawOrganizationFunds(address,uint256)",
	KindProjectFundWithdrawal:     "withdrawProjectFunds(address,uint256)",
	KindTransfer:                  "transfer(address,uint256)",
	KindInvestment:                "invest(address,uint256)",
	KindPendingInvestmentApproval: "approveInvestment(address,uint256)",
	KindInvestmentCancellation:    "cancelInvestment(address,uint256)",
	KindOrgMembershipAdd:          "addOrganizationMember(address)",
	KindProjectAdd:                "addProject(address)",
	KindOrgActivation:             "activateOrganization(address)",
}

// Signature returns the canonical function signature for the OperationKind
func (k OperationKind) Signature() string {
	return kindSignatures[k]
}
