package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditBalance applies one idempotent balance increment
func (s *Service) CreditBalance(ctx context.Context, params store.CreditParams) (*models.LedgerEntry, error) {
	if params.Reference == "" {
		return nil, fmt.Errorf("credit reference cannot be empty")
	}

	entry, err := s.subledger.ProcessEntry(ctx, entryParams{
		Mobile:      params.Mobile,
		Kind:        params.Kind,
		AmountMinor: toMinor(params.Amount),
		Reference:   params.Reference,
		At:          s.clock(),
	})
	if err != nil {
		return nil, err
	}

	s.feed.notifyAccount(params.Mobile)
	return entry, nil
}

// CheckIn grants the daily reward and one spin, at most once per calendar day.
func (s *Service) CheckIn(ctx context.Context, mobile, day string, at time.Time, reward decimal.Decimal) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, queryCheckIn, at, day, at, mobile, day)
	if err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		exists, err := accountExists(ctx, tx, mobile)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, mobile)
		}
		return nil, store.ErrAlreadyCheckedIn
	}

	if _, err := s.subledger.applyEntry(ctx, tx, entryParams{
		Mobile:      mobile,
		Kind:        models.EntryCheckin,
		AmountMinor: toMinor(reward),
		Reference:   fmt.Sprintf("checkin:%s:%s", mobile, day),
		At:          at,
	}); err != nil {
		return nil, err
	}

	account, err := getAccount(ctx, tx, mobile)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.feed.notifyAccount(mobile)
	return account, nil
}

// Spin consumes one spin and credits the amount won in a single transaction.
func (s *Service) Spin(ctx context.Context, mobile, reference string, won decimal.Decimal) (*models.Account, error) {
	now := s.clock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, queryConsumeSpin, now, mobile)
	if err != nil {
		return nil, fmt.Errorf("failed to consume spin: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		exists, err := accountExists(ctx, tx, mobile)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, mobile)
		}
		return nil, store.ErrNoSpins
	}

	if _, err := s.subledger.applyEntry(ctx, tx, entryParams{
		Mobile:      mobile,
		Kind:        models.EntrySpin,
		AmountMinor: toMinor(won),
		Reference:   reference,
		At:          now,
	}); err != nil {
		return nil, err
	}

	account, err := getAccount(ctx, tx, mobile)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.feed.notifyAccount(mobile)
	return account, nil
}

func (s *Service) GetLedgerEntries(ctx context.Context, mobile string, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, queryGetLedgerEntries, mobile, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var amountMinor, balanceAfterMinor int64
		if err := rows.Scan(&e.Id, &e.Mobile, &e.Kind, &amountMinor, &balanceAfterMinor, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Amount = fromMinor(amountMinor)
		e.BalanceAfter = fromMinor(balanceAfterMinor)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return entries, nil
}

// ReconcileBalance checks the stored balance against the sum of ledger entries
func (s *Service) ReconcileBalance(ctx context.Context, mobile string) error {
	zap.L().Info("Reconciling balance", zap.String("mobile", mobile))

	var currentMinor int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, mobile).Scan(&currentMinor)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrAccountNotFound, mobile)
	}
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	var calculatedMinor int64
	if err := s.db.QueryRowContext(ctx, queryReconcileBalance, mobile).Scan(&calculatedMinor); err != nil {
		return fmt.Errorf("failed to calculate balance from ledger: %w", err)
	}

	current, calculated := fromMinor(currentMinor), fromMinor(calculatedMinor)
	if currentMinor != calculatedMinor {
		zap.L().Error("Balance reconciliation failed",
			zap.String("mobile", mobile),
			zap.String("current_balance", current.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", current.Sub(calculated).String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", current.String(), calculated.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("mobile", mobile),
		zap.String("balance", current.StringFixed(2)))
	return nil
}
