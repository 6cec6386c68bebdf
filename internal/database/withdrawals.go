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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateWithdrawal zeroes the balance and opens a pending request in one transaction.
// The debit only applies if the balance still equals ExpectedBalance.
func (s *Service) CreateWithdrawal(ctx context.Context, params store.WithdrawalParams) (*models.WithdrawalRequest, error) {
	requestedAt := params.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = s.clock()
	}
	amountMinor := toMinor(params.ExpectedBalance)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, queryDebitExactBalance, requestedAt, params.Mobile, amountMinor)
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		exists, err := accountExists(ctx, tx, params.Mobile)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, params.Mobile)
		}
		return nil, fmt.Errorf("balance changed before withdrawal - %w", store.ErrConcurrentModification)
	}

	request := &models.WithdrawalRequest{
		Id:          uuid.New().String(),
		UserMobile:  params.Mobile,
		Amount:      fromMinor(amountMinor),
		BankDetails: params.BankDetails,
		Status:      models.WithdrawalPending,
		RequestedAt: requestedAt,
	}

	_, err = tx.ExecContext(ctx, queryInsertWithdrawal,
		request.Id, params.Mobile, amountMinor,
		params.BankDetails.HolderName, params.BankDetails.AccountNumber, params.BankDetails.IFSC,
		requestedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrPendingWithdrawal
		}
		return nil, fmt.Errorf("failed to insert withdrawal request: %w", err)
	}

	if _, err := s.subledger.insertEntry(ctx, tx, entryParams{
		Mobile:      params.Mobile,
		Kind:        models.EntryWithdrawal,
		AmountMinor: -amountMinor,
		Reference:   "withdrawal:" + request.Id,
		At:          requestedAt,
	}, 0); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal request created",
		zap.String("id", request.Id),
		zap.String("mobile", params.Mobile),
		zap.String("amount", request.Amount.StringFixed(2)))

	s.feed.notifyAccount(params.Mobile)
	return request, nil
}

func (s *Service) HasPendingWithdrawal(ctx context.Context, mobile string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryHasPendingWithdrawal, mobile).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check pending withdrawals: %w", err)
	}
	return count > 0, nil
}

func scanWithdrawal(row rowScanner) (*models.WithdrawalRequest, error) {
	var (
		w           models.WithdrawalRequest
		amountMinor int64
		processedAt sql.NullTime
	)
	err := row.Scan(&w.Id, &w.UserMobile, &amountMinor,
		&w.BankDetails.HolderName, &w.BankDetails.AccountNumber, &w.BankDetails.IFSC,
		&w.Status, &w.RequestedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	w.Amount = fromMinor(amountMinor)
	w.ProcessedAt = nullTimePtr(processedAt)
	return &w, nil
}

// ListWithdrawals returns requests with the given status, or all when status is empty.
func (s *Service) ListWithdrawals(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryListWithdrawals, status, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer closeRows(rows)

	var requests []models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		requests = append(requests, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return requests, nil
}

// SetWithdrawalStatus moves a pending request to approved or rejected.
func (s *Service) SetWithdrawalStatus(ctx context.Context, id, status string, processedAt time.Time) (*models.WithdrawalRequest, error) {
	if status != models.WithdrawalApproved && status != models.WithdrawalRejected {
		return nil, fmt.Errorf("invalid withdrawal status %q", status)
	}

	result, err := s.db.ExecContext(ctx, querySetWithdrawalStatus, status, processedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update withdrawal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	w, err := scanWithdrawal(s.db.QueryRowContext(ctx, queryGetWithdrawal, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrWithdrawalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s is %s", store.ErrWithdrawalNotPending, id, w.Status)
	}

	zap.L().Info("Withdrawal processed",
		zap.String("id", id),
		zap.String("mobile", w.UserMobile),
		zap.String("status", status))
	return w, nil
}
