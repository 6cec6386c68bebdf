package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sms-rupee-go/internal/events"
	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"go.uber.org/zap"
)

const (
	reasonNoBankDetails     = "Please add your bank details before withdrawing."
	reasonPendingWithdrawal = "You already have a pending withdrawal request."
	reasonBalanceChanged    = "Your balance changed while processing. Please try again."
	reasonNotPending        = "This withdrawal request has already been processed."
)

// RequestWithdrawal moves the whole balance into a pending request. The amount
// and bank details are snapshotted at request time.
func (s *Service) RequestWithdrawal(ctx context.Context, mobile string) (*models.WithdrawalRequest, error) {
	account, err := s.store.GetAccount(ctx, mobile)
	if err != nil {
		return nil, err
	}

	if account.Balance.LessThan(s.rewards.MinWithdrawal) {
		return nil, policy(fmt.Sprintf("Minimum withdrawal amount is ₹%s. Your balance is ₹%s.",
			s.rewards.MinWithdrawal.StringFixed(2), account.Balance.StringFixed(2)))
	}
	if account.BankDetails == nil || !account.BankDetails.Complete() {
		return nil, policy(reasonNoBankDetails)
	}

	pending, err := s.store.HasPendingWithdrawal(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, policy(reasonPendingWithdrawal)
	}

	request, err := s.store.CreateWithdrawal(ctx, store.WithdrawalParams{
		Mobile:          mobile,
		ExpectedBalance: account.Balance,
		BankDetails:     *account.BankDetails,
		RequestedAt:     s.clock(),
	})
	switch {
	case errors.Is(err, store.ErrPendingWithdrawal):
		return nil, policyWrap(err, reasonPendingWithdrawal)
	case errors.Is(err, store.ErrConcurrentModification):
		return nil, policyWrap(err, reasonBalanceChanged)
	case err != nil:
		zap.L().Error("Withdrawal request failed",
			zap.String("mobile", mobile),
			zap.String("amount", account.Balance.StringFixed(2)),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Withdrawal requested",
		zap.String("id", request.Id),
		zap.String("mobile", mobile),
		zap.String("amount", request.Amount.StringFixed(2)))

	s.publish(ctx, events.KeyWithdrawalRequested, withdrawalEvent(request, request.RequestedAt))
	return request, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	switch status {
	case "", models.WithdrawalPending, models.WithdrawalApproved, models.WithdrawalRejected:
	default:
		return nil, policy(fmt.Sprintf("Unknown withdrawal status %q.", status))
	}
	return s.store.ListWithdrawals(ctx, status)
}

// ProcessWithdrawal approves or rejects a pending request. A rejected amount
// is not returned to the user's balance.
func (s *Service) ProcessWithdrawal(ctx context.Context, id, status string, now time.Time) (*models.WithdrawalRequest, error) {
	if status != models.WithdrawalApproved && status != models.WithdrawalRejected {
		return nil, policy(fmt.Sprintf("Unknown withdrawal status %q.", status))
	}
	if now.IsZero() {
		now = s.clock()
	}

	request, err := s.store.SetWithdrawalStatus(ctx, id, status, now)
	if errors.Is(err, store.ErrWithdrawalNotPending) {
		return nil, policyWrap(err, reasonNotPending)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal processed",
		zap.String("id", request.Id),
		zap.String("mobile", request.UserMobile),
		zap.String("status", request.Status),
		zap.String("amount", request.Amount.StringFixed(2)))

	s.publish(ctx, events.KeyWithdrawalProcessed, withdrawalEvent(request, now))
	return request, nil
}

func withdrawalEvent(r *models.WithdrawalRequest, at time.Time) events.WithdrawalEvent {
	return events.WithdrawalEvent{
		Id:        r.Id,
		Mobile:    r.UserMobile,
		Amount:    r.Amount.StringFixed(2),
		Status:    r.Status,
		Timestamp: at,
	}
}
