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
	"os"
	"time"

	"sms-rupee-go/internal/api"
	"sms-rupee-go/internal/common"
	"sms-rupee-go/internal/config"
	"sms-rupee-go/internal/device"
	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
)

const usage = `Usage: account <command> [flags]

Commands:
  signup    -mobile -password [-referral]
  login     -mobile -password
  checkin   -mobile
  spin      -mobile
  bank      -mobile -holder -number -ifsc
  withdraw  -mobile
  balance   -mobile
  history   -mobile [-limit] [-offset]

Every command accepts -device (default: DEVICE_ID or the hostname).`

type accountFlags struct {
	fs       *flag.FlagSet
	mobile   *string
	device   *string
	password *string
	referral *string
	holder   *string
	number   *string
	ifsc     *string
	limit    *int
	offset   *int
}

func parseFlags(command string, args []string, defaultDevice string) *accountFlags {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	f := &accountFlags{
		fs:       fs,
		mobile:   fs.String("mobile", "", "Mobile number (required)"),
		device:   fs.String("device", defaultDevice, "Device id"),
		password: fs.String("password", "", "Password"),
		referral: fs.String("referral", "", "Referral code of the inviting user"),
		holder:   fs.String("holder", "", "Account holder name"),
		number:   fs.String("number", "", "Bank account number"),
		ifsc:     fs.String("ifsc", "", "IFSC code"),
		limit:    fs.Int("limit", 20, "History entries to show"),
		offset:   fs.Int("offset", 0, "History entries to skip"),
	}
	_ = fs.Parse(args)
	if *f.mobile == "" {
		fmt.Fprintf(os.Stderr, "-mobile is required\n\n%s\n", usage)
		os.Exit(2)
	}
	return f
}

func printAccount(title string, account *models.Account) {
	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("Mobile:        %s\n", account.Mobile)
	fmt.Printf("Balance:       %s\n", common.Rupees(account.Balance))
	fmt.Printf("Spins:         %d\n", account.SpinsAvailable)
	fmt.Printf("Referral code: %s\n", account.ReferralCode)
	if account.ReferrerMobile != "" {
		fmt.Printf("Referred by:   %s\n", account.ReferrerMobile)
	}
	if account.BankDetails != nil {
		fmt.Printf("Bank:          %s %s (%s)\n", account.BankDetails.HolderName,
			common.MaskAccountNumber(account.BankDetails.AccountNumber), account.BankDetails.IFSC)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

// fail prints a policy rejection as the user would see it; anything else is fatal.
func fail(action string, err error) {
	if api.IsPolicy(err) {
		fmt.Printf("✗ %s\n", err)
		os.Exit(1)
	}
	zap.L().Fatal(action+" failed", zap.Error(err))
}

func run(ctx context.Context, svc *api.Service, command string, f *accountFlags) {
	mobile := *f.mobile

	switch command {
	case "signup":
		result, err := svc.SignUp(ctx, api.SignUpParams{
			Mobile: mobile, Password: *f.password, ReferralCode: *f.referral, DeviceId: *f.device,
		})
		if err != nil {
			fail("Sign up", err)
		}
		if result.Warning != "" {
			fmt.Printf("! %s\n", result.Warning)
		}
		printAccount("ACCOUNT CREATED", result.Account)
		return
	case "login":
		account, err := svc.Login(ctx, mobile, *f.password, *f.device)
		if err != nil {
			fail("Login", err)
		}
		printAccount("LOGGED IN", account)
		return
	}

	// Every other action is only allowed from the bound device.
	if _, err := svc.AuthorizeDevice(ctx, mobile, *f.device); err != nil {
		fail("Device check", err)
	}

	switch command {
	case "checkin":
		result, err := svc.CheckIn(ctx, mobile, time.Now())
		if err != nil {
			fail("Check-in", err)
		}
		fmt.Printf("✓ Checked in: +%s, balance %s, %d spins\n",
			common.Rupees(result.Reward), common.Rupees(result.NewBalance), result.Spins)
	case "spin":
		result, err := svc.Spin(ctx, mobile)
		if err != nil {
			fail("Spin", err)
		}
		if result.Won.IsPositive() {
			fmt.Printf("✓ You won %s! Balance %s, %d spins left\n",
				common.Rupees(result.Won), common.Rupees(result.NewBalance), result.SpinsLeft)
		} else {
			fmt.Printf("Better luck next time. %d spins left\n", result.SpinsLeft)
		}
	case "bank":
		err := svc.SaveBankDetails(ctx, mobile, models.BankDetails{
			HolderName: *f.holder, AccountNumber: *f.number, IFSC: *f.ifsc,
		})
		if err != nil {
			fail("Save bank details", err)
		}
		fmt.Println("✓ Bank details saved")
	case "withdraw":
		request, err := svc.RequestWithdrawal(ctx, mobile)
		if err != nil {
			fail("Withdrawal", err)
		}
		fmt.Printf("✓ Withdrawal of %s requested (id %s). Status: %s\n",
			common.Rupees(request.Amount), request.Id, request.Status)
	case "balance":
		account, err := svc.GetBalance(ctx, mobile)
		if err != nil {
			fail("Balance", err)
		}
		printAccount("ACCOUNT", account)
	case "history":
		entries, err := svc.GetHistory(ctx, mobile, *f.limit, *f.offset)
		if err != nil {
			fail("History", err)
		}
		common.PrintHeader("HISTORY "+mobile, common.DefaultWidth)
		for i, e := range entries {
			fmt.Printf("%s %-20s %10s → %10s  %s\n", common.BoxPrefix(i == len(entries)-1),
				e.Kind, e.Amount.StringFixed(2), e.BalanceAfter.StringFixed(2),
				e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		common.PrintFooter(fmt.Sprintf("%d entries", len(entries)), common.DefaultWidth)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	f := parseFlags(command, os.Args[2:], device.ResolveDeviceId(cfg.Device))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	run(ctx, services.ApiService, command, f)
}
