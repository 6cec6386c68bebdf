package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/shopspring/decimal"
)

var testBank = models.BankDetails{HolderName: "Asha", AccountNumber: "1234567890", IFSC: "SBIN0000001"}

func TestCreateWithdrawal(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	createTestAccount(t, s, "9000000001", "")
	fundAccount(t, s, "9000000001", "150.40", "sms:1")

	request, err := s.CreateWithdrawal(ctx, store.WithdrawalParams{
		Mobile:          "9000000001",
		ExpectedBalance: decimal.RequireFromString("150.40"),
		BankDetails:     testBank,
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}
	if request.Status != models.WithdrawalPending {
		t.Errorf("Expected pending status, got %s", request.Status)
	}
	if !request.Amount.Equal(decimal.RequireFromString("150.40")) {
		t.Errorf("Expected amount 150.40, got %s", request.Amount)
	}

	account, err := s.GetAccount(ctx, "9000000001")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.Balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", account.Balance)
	}
	if err := s.ReconcileBalance(ctx, "9000000001"); err != nil {
		t.Errorf("ReconcileBalance failed: %v", err)
	}

	pending, err := s.HasPendingWithdrawal(ctx, "9000000001")
	if err != nil {
		t.Fatalf("HasPendingWithdrawal failed: %v", err)
	}
	if !pending {
		t.Errorf("Expected pending withdrawal")
	}
}

func TestCreateWithdrawal_SecondPendingRejected(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	createTestAccount(t, s, "9000000001", "")
	fundAccount(t, s, "9000000001", "100", "sms:1")

	params := store.WithdrawalParams{Mobile: "9000000001", ExpectedBalance: decimal.NewFromInt(100), BankDetails: testBank}
	if _, err := s.CreateWithdrawal(ctx, params); err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	fundAccount(t, s, "9000000001", "120", "sms:2")
	params.ExpectedBalance = decimal.NewFromInt(120)
	_, err := s.CreateWithdrawal(ctx, params)
	if !errors.Is(err, store.ErrPendingWithdrawal) {
		t.Fatalf("Expected ErrPendingWithdrawal, got %v", err)
	}

	account, err := s.GetAccount(ctx, "9000000001")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.Balance.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Expected rejected withdrawal to leave balance at 120, got %s", account.Balance)
	}
}

func TestCreateWithdrawal_StaleBalance(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	createTestAccount(t, s, "9000000001", "")
	fundAccount(t, s, "9000000001", "100", "sms:1")

	_, err := s.CreateWithdrawal(ctx, store.WithdrawalParams{
		Mobile:          "9000000001",
		ExpectedBalance: decimal.NewFromInt(99),
		BankDetails:     testBank,
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}
}

func TestSetWithdrawalStatus(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	createTestAccount(t, s, "9000000001", "")
	fundAccount(t, s, "9000000001", "100", "sms:1")

	request, err := s.CreateWithdrawal(ctx, store.WithdrawalParams{
		Mobile:          "9000000001",
		ExpectedBalance: decimal.NewFromInt(100),
		BankDetails:     testBank,
	})
	if err != nil {
		t.Fatalf("CreateWithdrawal failed: %v", err)
	}

	processed, err := s.SetWithdrawalStatus(ctx, request.Id, models.WithdrawalApproved, time.Now())
	if err != nil {
		t.Fatalf("SetWithdrawalStatus failed: %v", err)
	}
	if processed.Status != models.WithdrawalApproved {
		t.Errorf("Expected approved, got %s", processed.Status)
	}
	if processed.ProcessedAt == nil {
		t.Errorf("Expected processedAt to be set")
	}

	_, err = s.SetWithdrawalStatus(ctx, request.Id, models.WithdrawalRejected, time.Now())
	if !errors.Is(err, store.ErrWithdrawalNotPending) {
		t.Errorf("Expected ErrWithdrawalNotPending, got %v", err)
	}

	_, err = s.SetWithdrawalStatus(ctx, "missing", models.WithdrawalApproved, time.Now())
	if !errors.Is(err, store.ErrWithdrawalNotFound) {
		t.Errorf("Expected ErrWithdrawalNotFound, got %v", err)
	}

	pending, err := s.ListWithdrawals(ctx, models.WithdrawalPending)
	if err != nil {
		t.Fatalf("ListWithdrawals failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending withdrawals, got %d", len(pending))
	}

	all, err := s.ListWithdrawals(ctx, "")
	if err != nil {
		t.Fatalf("ListWithdrawals failed: %v", err)
	}
	if len(all) != 1 || all[0].BankDetails != testBank {
		t.Errorf("Expected one withdrawal with bank snapshot, got %+v", all)
	}
}
