/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimSlot is one SIM send path configured on the device
type SimSlot struct {
	Id   int    `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// SignUpResult reports a created account plus any non-fatal warning
type SignUpResult struct {
	Account *Account `json:"account"`
	Warning string   `json:"warning,omitempty"`
}

// CheckInResult represents the result of a daily check-in
type CheckInResult struct {
	Reward     decimal.Decimal `json:"reward"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Spins      int             `json:"spinsAvailable"`
}

// SpinResult represents the outcome of one spin of the wheel
type SpinResult struct {
	Won        decimal.Decimal `json:"won"`
	NewBalance decimal.Decimal `json:"newBalance"`
	SpinsLeft  int             `json:"spinsAvailable"`
}

// BulkResult counts the outcome of a bulk inventory upload
type BulkResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// SettlementResult records which settlement steps succeeded for one send
type SettlementResult struct {
	RecordId         string          `json:"recordId"`
	ClosedOut        bool            `json:"closedOut"`
	SenderCredited   bool            `json:"senderCredited"`
	ReferrerCredited bool            `json:"referrerCredited"`
	Reward           decimal.Decimal `json:"reward"`
	Commission       decimal.Decimal `json:"commission"`
	SenderBalance    decimal.Decimal `json:"senderBalance"`
	Errors           []string        `json:"errors,omitempty"`
	SettledAt        time.Time       `json:"settledAt"`
}
