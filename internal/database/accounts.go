package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a            models.Account
		balanceMinor int64
		lastCheckin  sql.NullTime
		bank         models.BankDetails
	)
	err := row.Scan(&a.Mobile, &a.PasswordHash, &balanceMinor, &a.ReferralCode, &a.ReferrerMobile,
		&a.DeviceId, &a.SpinsAvailable, &lastCheckin, &a.LastCheckinDay,
		&bank.HolderName, &bank.AccountNumber, &bank.IFSC, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Balance = fromMinor(balanceMinor)
	a.LastCheckinAt = nullTimePtr(lastCheckin)
	if bank != (models.BankDetails{}) {
		a.BankDetails = &bank
	}
	return &a, nil
}

func getAccount(ctx context.Context, q querier, mobile string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, queryGetAccount, mobile))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, mobile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func accountExists(ctx context.Context, q querier, mobile string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, queryAccountExists, mobile).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return true, nil
}

func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	now := s.clock()
	_, err := s.db.ExecContext(ctx, queryInsertAccount,
		params.Mobile, params.PasswordHash, params.Mobile, params.ReferrerMobile, params.DeviceId,
		params.Spins, now, now)
	if err != nil {
		switch {
		case uniqueViolationOn(err, "accounts.device_id"):
			return nil, fmt.Errorf("%w: %s", store.ErrDeviceBound, params.DeviceId)
		case isUniqueViolation(err):
			return nil, fmt.Errorf("%w: %s", store.ErrAccountExists, params.Mobile)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	zap.L().Info("Account created",
		zap.String("mobile", params.Mobile),
		zap.String("referrer", params.ReferrerMobile))

	return getAccount(ctx, s.db, params.Mobile)
}

func (s *Service) GetAccount(ctx context.Context, mobile string) (*models.Account, error) {
	return getAccount(ctx, s.db, mobile)
}

func (s *Service) FindAccountByDevice(ctx context.Context, deviceId string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByDevice, deviceId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by device: %w", err)
	}
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryListAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// BindDevice sets the device on first login. Binding the same device again is a no-op;
// a different device is rejected.
func (s *Service) BindDevice(ctx context.Context, mobile, deviceId string) error {
	result, err := s.db.ExecContext(ctx, queryBindDevice, deviceId, s.clock(), mobile, deviceId)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDeviceBound, deviceId)
		}
		return fmt.Errorf("failed to bind device: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		exists, err := accountExists(ctx, s.db, mobile)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", store.ErrAccountNotFound, mobile)
		}
		return fmt.Errorf("%w: account %s", store.ErrDeviceBound, mobile)
	}
	s.feed.notifyAccount(mobile)
	return nil
}

func (s *Service) SaveBankDetails(ctx context.Context, mobile string, details models.BankDetails) error {
	result, err := s.db.ExecContext(ctx, querySaveBankDetails,
		details.HolderName, details.AccountNumber, details.IFSC, s.clock(), mobile)
	if err != nil {
		return fmt.Errorf("failed to save bank details: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", store.ErrAccountNotFound, mobile)
	}
	s.feed.notifyAccount(mobile)
	return nil
}

func (s *Service) AddSpins(ctx context.Context, mobile string, delta int) error {
	result, err := s.db.ExecContext(ctx, queryAddSpins, delta, s.clock(), mobile, delta)
	if err != nil {
		return fmt.Errorf("failed to add spins: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		exists, err := accountExists(ctx, s.db, mobile)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", store.ErrAccountNotFound, mobile)
		}
		return store.ErrNoSpins
	}
	s.feed.notifyAccount(mobile)
	return nil
}

func (s *Service) UpsertAdmin(ctx context.Context, username, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx, queryUpsertAdmin, username, passwordHash, s.clock()); err != nil {
		return fmt.Errorf("failed to store admin credential: %w", err)
	}
	return nil
}

func (s *Service) GetAdminHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, queryGetAdminHash, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrAdminNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get admin credential: %w", err)
	}
	return hash, nil
}
