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
	"strings"
	"time"

	"sms-rupee-go/internal/models"
	"sms-rupee-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Service struct {
	db        *sql.DB
	subledger *SubledgerService
	feed      *feedBroker
	clock     func() time.Time
}

func NewService(ctx context.Context, cfg models.DatabaseConfig, feedCfg models.FeedConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=%d&_txlock=immediate&_foreign_keys=1",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{
		db:        db,
		subledger: NewSubledgerService(db),
		clock:     func() time.Time { return time.Now().UTC() },
	}
	if err := service.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	if err := service.subledger.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to initialize subledger schema: %w", err)
	}

	service.feed = newFeedBroker(service, feedCfg.PollInterval)

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	s.feed.close()
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema() error {
	schema := `
	-- Accounts keyed by mobile number. Money is stored in paise.
	CREATE TABLE IF NOT EXISTS accounts (
		mobile TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		balance_minor INTEGER NOT NULL DEFAULT 0 CHECK (balance_minor >= 0),
		referral_code TEXT NOT NULL UNIQUE,
		referrer_mobile TEXT REFERENCES accounts(mobile),
		device_id TEXT UNIQUE,
		spins_available INTEGER NOT NULL DEFAULT 0 CHECK (spins_available >= 0),
		last_checkin_at TIMESTAMP,
		last_checkin_day TEXT NOT NULL DEFAULT '',
		bank_holder_name TEXT,
		bank_account_number TEXT,
		bank_ifsc TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_referrer ON accounts(referrer_mobile);

	-- Shared send queue. lease_expires_at is unix milliseconds.
	CREATE TABLE IF NOT EXISTS sms_inventory (
		id TEXT PRIMARY KEY,
		recipient_number TEXT NOT NULL,
		message_body TEXT NOT NULL,
		is_sent INTEGER NOT NULL DEFAULT 0,
		sent_by TEXT,
		sim_slot INTEGER,
		sent_at TIMESTAMP,
		added_at TIMESTAMP NOT NULL,
		claim_id TEXT,
		claimed_by TEXT,
		claim_slot INTEGER,
		lease_expires_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_unsent ON sms_inventory(is_sent, lease_expires_at);

	CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		user_mobile TEXT NOT NULL REFERENCES accounts(mobile),
		amount_minor INTEGER NOT NULL,
		bank_holder_name TEXT NOT NULL,
		bank_account_number TEXT NOT NULL,
		bank_ifsc TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		requested_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	);

	-- At most one pending request per user
	CREATE UNIQUE INDEX IF NOT EXISTS idx_withdrawals_one_pending
		ON withdrawal_requests(user_mobile) WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawal_requests(status);

	CREATE TABLE IF NOT EXISTS admin_credentials (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// toMinor converts rupees to paise, rounding half away from zero.
func toMinor(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// fromMinor converts paise to rupees.
func fromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func uniqueViolationOn(err error, column string) bool {
	return isUniqueViolation(err) && strings.Contains(err.Error(), column)
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
