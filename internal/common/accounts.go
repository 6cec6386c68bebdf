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

package common

import (
	"context"
	"fmt"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"go.uber.org/zap"
)

// InitializeAccounts retrieves accounts based on an optional mobile filter.
// If mobileFilter is provided, returns a single account with that mobile number.
// If mobileFilter is empty, returns all accounts.
func InitializeAccounts(ctx context.Context, ledger store.LedgerStore, mobileFilter string) ([]models.Account, error) {
	if mobileFilter != "" {
		zap.L().Info("Looking up account by mobile", zap.String("mobile", mobileFilter))
		account, err := ledger.GetAccount(ctx, mobileFilter)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return []models.Account{*account}, nil
	}

	accounts, err := ledger.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	zap.L().Info("Loaded accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}
