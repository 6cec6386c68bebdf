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

package main

import (
	"context"
	"flag"
	"fmt"

	"sms-rupee-go/internal/common"
	"sms-rupee-go/internal/config"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const entryPageSize = 500

type reportStats struct {
	totalAccounts     int
	totalReferrals    int
	accountsReferring int
	totalCommission   decimal.Decimal
}

func printReferrerHeader(account models.Account, referees int, commission decimal.Decimal) {
	fmt.Printf("\n┌─ Referrer: %s (code %s)\n", account.Mobile, account.ReferralCode)
	fmt.Printf("│  Referred users: %d\n", referees)
	fmt.Printf("│  Commission earned: %s\n", common.Rupees(commission))
	common.PrintBoxSeparator(98)
}

func printReferee(referee models.Account, isLast bool) {
	fmt.Printf("%s %-12s → joined %s, balance %s\n", common.BoxPrefix(isLast),
		referee.Mobile, referee.CreatedAt.Format("2006-01-02"), common.Rupees(referee.Balance))
}

// commissionEarned sums every referral commission entry in the account's history.
func commissionEarned(ctx context.Context, ledger store.LedgerStore, mobile string) (decimal.Decimal, error) {
	total := decimal.Zero
	for offset := 0; ; offset += entryPageSize {
		entries, err := ledger.GetLedgerEntries(ctx, mobile, entryPageSize, offset)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to get ledger entries: %w", err)
		}
		for _, e := range entries {
			if e.Kind == models.EntryReferralCommission {
				total = total.Add(e.Amount)
			}
		}
		if len(entries) < entryPageSize {
			return total, nil
		}
	}
}

// refereesByReferrer groups every account under the mobile that referred it.
func refereesByReferrer(accounts []models.Account) map[string][]models.Account {
	grouped := make(map[string][]models.Account)
	for _, a := range accounts {
		if a.ReferrerMobile != "" {
			grouped[a.ReferrerMobile] = append(grouped[a.ReferrerMobile], a)
		}
	}
	return grouped
}

func processAccountsAndGenerateReport(ctx context.Context, accounts []models.Account, grouped map[string][]models.Account, ledger store.LedgerStore) reportStats {
	stats := reportStats{totalCommission: decimal.Zero}

	for _, account := range accounts {
		stats.totalAccounts++

		referees := grouped[account.Mobile]
		if len(referees) == 0 {
			continue
		}

		commission, err := commissionEarned(ctx, ledger, account.Mobile)
		if err != nil {
			zap.L().Error("Failed to process account",
				zap.String("mobile", account.Mobile),
				zap.Error(err))
			continue
		}

		printReferrerHeader(account, len(referees), commission)
		for i, r := range referees {
			printReferee(r, i == len(referees)-1)
		}

		stats.accountsReferring++
		stats.totalReferrals += len(referees)
		stats.totalCommission = stats.totalCommission.Add(commission)
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	mobileFlag := flag.String("mobile", "", "Filter by specific referrer mobile (optional)")
	flag.Parse()

	logger.Info("Starting referral report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	all, err := common.InitializeAccounts(ctx, dbService, "")
	if err != nil {
		logger.Fatal("Failed to initialize accounts", zap.Error(err))
	}
	accounts := all
	if *mobileFlag != "" {
		accounts, err = common.InitializeAccounts(ctx, dbService, *mobileFlag)
		if err != nil {
			logger.Fatal("Failed to initialize accounts", zap.Error(err))
		}
	}

	common.PrintHeader("REFERRAL REPORT", common.WideWidth)

	stats := processAccountsAndGenerateReport(ctx, accounts, refereesByReferrer(all), dbService)

	summary := fmt.Sprintf("SUMMARY: %d referrers, %d referred users, %s commission (%d accounts queried)",
		stats.accountsReferring, stats.totalReferrals, common.Rupees(stats.totalCommission), stats.totalAccounts)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Referral report completed",
		zap.Int("accounts_queried", stats.totalAccounts),
		zap.Int("referrers", stats.accountsReferring),
		zap.Int("referrals", stats.totalReferrals))
}
