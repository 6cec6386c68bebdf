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
	"sms-rupee-go/internal/database"
	"sms-rupee-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts        int
	accountsWithBalances int
	totalBalance         decimal.Decimal
	reconcileFailures    int
}

func formatReference(ref string) string {
	if ref == "" {
		return "none"
	}
	if len(ref) > 24 {
		return ref[:24] + "..."
	}
	return ref
}

func printEntry(entry models.LedgerEntry, isLast bool) {
	symbol := common.BoxPrefix(isLast)

	fmt.Printf("%s %-20s: %10s → %10s (%s, %s)\n",
		symbol,
		entry.Kind,
		entry.Amount.StringFixed(2),
		entry.BalanceAfter.StringFixed(2),
		formatReference(entry.Reference),
		entry.CreatedAt.Format("2006-01-02 15:04:05"))
}

func printAccountHeader(account models.Account) {
	fmt.Printf("\n┌─ Account: %s\n", account.Mobile)
	fmt.Printf("│  Balance: %s   Spins: %d\n", common.Rupees(account.Balance), account.SpinsAvailable)
	if account.ReferrerMobile != "" {
		fmt.Printf("│  Referred by: %s\n", account.ReferrerMobile)
	}
	if account.BankDetails != nil {
		fmt.Printf("│  Bank: %s %s (%s)\n",
			account.BankDetails.HolderName,
			common.MaskAccountNumber(account.BankDetails.AccountNumber),
			account.BankDetails.IFSC)
	}
	common.PrintBoxSeparator(78)
}

func processAccount(ctx context.Context, account models.Account, dbService *database.Service, entries int, reconcile bool) error {
	printAccountHeader(account)

	if entries > 0 {
		recent, err := dbService.GetLedgerEntries(ctx, account.Mobile, entries, 0)
		if err != nil {
			return fmt.Errorf("failed to get ledger entries: %w", err)
		}
		for i, e := range recent {
			printEntry(e, i == len(recent)-1)
		}
	}

	if reconcile {
		if err := dbService.ReconcileBalance(ctx, account.Mobile); err != nil {
			fmt.Printf("└  ✗ %v\n", err)
			return err
		}
		fmt.Printf("└  ✓ ledger reconciles\n")
	}
	return nil
}

func generateReport(ctx context.Context, accounts []models.Account, dbService *database.Service, entries int, reconcile bool) balanceStats {
	stats := balanceStats{totalBalance: decimal.Zero}

	for _, account := range accounts {
		stats.totalAccounts++
		if account.Balance.IsPositive() {
			stats.accountsWithBalances++
			stats.totalBalance = stats.totalBalance.Add(account.Balance)
		}

		if err := processAccount(ctx, account, dbService, entries, reconcile); err != nil {
			stats.reconcileFailures++
			zap.L().Error("Failed to process account",
				zap.String("mobile", account.Mobile),
				zap.Error(err))
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	mobileFlag := flag.String("mobile", "", "Filter by specific mobile number (optional)")
	entriesFlag := flag.Int("entries", 5, "Number of recent ledger entries to show per account")
	reconcileFlag := flag.Bool("reconcile", false, "Check each balance against the sum of its ledger entries")
	flag.Parse()

	logger.Info("Starting balance query")

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

	accounts, err := common.InitializeAccounts(ctx, dbService, *mobileFlag)
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := generateReport(ctx, accounts, dbService, *entriesFlag, *reconcileFlag)

	summary := fmt.Sprintf("SUMMARY: %d of %d accounts hold %s",
		stats.accountsWithBalances, stats.totalAccounts, common.Rupees(stats.totalBalance))
	if *reconcileFlag {
		summary += fmt.Sprintf(" | %d reconciliation failures", stats.reconcileFailures)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts_queried", stats.totalAccounts),
		zap.Int("accounts_with_balances", stats.accountsWithBalances),
		zap.String("total_balance", stats.totalBalance.StringFixed(2)))
}
