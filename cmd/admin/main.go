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
	"sms-rupee-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const usage = `Usage: admin <command> [flags]

Commands:
  add          -recipient -message
  bulk         -file (one "number,message" per line)
  withdrawals  [-status pending|approved|rejected]
  approve      -id
  reject       -id`

type adminRequest struct {
	command   string
	recipient string
	message   string
	file      string
	status    string
	id        string
}

func parseAndValidateFlags(args []string) (*adminRequest, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("command is required")
	}
	req := &adminRequest{command: args[0]}

	fs := flag.NewFlagSet(req.command, flag.ExitOnError)
	fs.StringVar(&req.recipient, "recipient", "", "Recipient mobile number")
	fs.StringVar(&req.message, "message", "", "Message body")
	fs.StringVar(&req.file, "file", "", "Bulk inventory file")
	fs.StringVar(&req.status, "status", models.WithdrawalPending, "Withdrawal status filter")
	fs.StringVar(&req.id, "id", "", "Withdrawal request id")
	_ = fs.Parse(args[1:])

	switch req.command {
	case "add":
		if req.recipient == "" || req.message == "" {
			return nil, fmt.Errorf("--recipient and --message are required")
		}
	case "bulk":
		if req.file == "" {
			return nil, fmt.Errorf("--file is required")
		}
	case "approve", "reject":
		if req.id == "" {
			return nil, fmt.Errorf("--id is required")
		}
	case "withdrawals":
	default:
		return nil, fmt.Errorf("unknown command %q", req.command)
	}
	return req, nil
}

func printWithdrawal(r models.WithdrawalRequest, isLast bool) {
	fmt.Printf("%s %s  %-10s %12s  %-8s %s\n", common.BoxPrefix(isLast),
		r.Id, r.UserMobile, common.Rupees(r.Amount), r.Status, r.RequestedAt.Format("2006-01-02 15:04"))
	fmt.Printf("%s %s, %s, %s\n", common.BoxDetailPrefix(isLast),
		r.BankDetails.HolderName, common.MaskAccountNumber(r.BankDetails.AccountNumber), r.BankDetails.IFSC)
}

func listWithdrawals(ctx context.Context, svc *api.Service, status string) error {
	requests, err := svc.ListWithdrawals(ctx, status)
	if err != nil {
		return err
	}

	common.PrintHeader("WITHDRAWAL REQUESTS ("+status+")", common.DefaultWidth)
	if len(requests) == 0 {
		fmt.Println("No requests.")
	}
	total := decimal.Zero
	for i, r := range requests {
		printWithdrawal(r, i == len(requests)-1)
		total = total.Add(r.Amount)
	}
	common.PrintFooter(fmt.Sprintf("%d requests, %s total", len(requests), common.Rupees(total)), common.DefaultWidth)
	return nil
}

func process(ctx context.Context, svc *api.Service, id, status string) error {
	request, err := svc.ProcessWithdrawal(ctx, id, status, time.Now())
	if err != nil {
		return err
	}

	common.PrintHeader("WITHDRAWAL "+status, common.DefaultWidth)
	fmt.Printf("Request:  %s\n", request.Id)
	fmt.Printf("User:     %s\n", request.UserMobile)
	fmt.Printf("Amount:   %s\n", common.Rupees(request.Amount))
	fmt.Printf("Bank:     %s %s (%s)\n", request.BankDetails.HolderName,
		common.MaskAccountNumber(request.BankDetails.AccountNumber), request.BankDetails.IFSC)
	common.PrintSeparator("=", common.DefaultWidth)
	return nil
}

func run(ctx context.Context, svc *api.Service, req *adminRequest) error {
	switch req.command {
	case "add":
		record, err := svc.AddSms(ctx, req.recipient, req.message)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added inventory record %s for %s\n", record.Id, record.RecipientNumber)
	case "bulk":
		data, err := os.ReadFile(req.file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", req.file, err)
		}
		result, err := svc.BulkAddSms(ctx, string(data))
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added %d records, skipped %d lines\n", result.Added, result.Skipped)
	case "withdrawals":
		return listWithdrawals(ctx, svc, req.status)
	case "approve":
		return process(ctx, svc, req.id, models.WithdrawalApproved)
	case "reject":
		return process(ctx, svc, req.id, models.WithdrawalRejected)
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := run(ctx, services.ApiService, req); err != nil {
		if api.IsPolicy(err) {
			fmt.Printf("✗ %s\n", err)
			return
		}
		zap.L().Fatal("Admin command failed", zap.String("command", req.command), zap.Error(err))
	}
}
